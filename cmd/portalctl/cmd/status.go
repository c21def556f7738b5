package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hwlegacy/portalauth"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved session state",
	Long: `Run one initialization cycle against the stored session and print
the resulting phase, user and role.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print every session state change until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

// StateView is the printable form of portalauth.State.
type StateView struct {
	Phase     string     `json:"phase"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	IsAdmin   bool       `json:"is_admin"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func viewOf(st portalauth.State) StateView {
	v := StateView{Phase: st.Phase().String(), IsAdmin: st.IsAdmin}
	if st.User != nil {
		v.UserID = st.User.ID
		v.Email = st.User.Email
	}
	if st.Session != nil {
		exp := st.Session.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

func printState(out io.Writer, st portalauth.State) error {
	v := viewOf(st)
	if outputFormat == "json" {
		return writeJSON(out, v)
	}
	fmt.Fprintf(out, "  Phase:   %s\n", v.Phase)
	if v.UserID == "" {
		fmt.Fprintln(out, "  User:    (none)")
		return nil
	}
	fmt.Fprintf(out, "  User:    %s (%s)\n", v.Email, v.UserID)
	if v.IsAdmin {
		fmt.Fprintln(out, "  Role:    admin")
	} else {
		fmt.Fprintln(out, "  Role:    investor")
	}
	if v.ExpiresAt != nil {
		fmt.Fprintf(out, "  Expires: %s\n", v.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	rt, err := openRuntime(cmd.Context(), out, "/")
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.engine.Start(cmd.Context()); err != nil {
		return err
	}
	return printState(out, rt.engine.Store().State())
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	rt, err := openRuntime(ctx, out, "/")
	if err != nil {
		return err
	}
	defer rt.close()

	unsubscribe := rt.engine.Store().Subscribe(func(st portalauth.State) {
		fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.TimeOnly), describe(st))
	})
	defer unsubscribe()

	if err := rt.engine.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func describe(st portalauth.State) string {
	v := viewOf(st)
	if v.UserID == "" {
		return v.Phase
	}
	return fmt.Sprintf("%s %s admin=%t", v.Phase, v.Email, v.IsAdmin)
}
