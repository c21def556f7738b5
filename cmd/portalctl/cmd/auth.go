package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hwlegacy/portalauth"
	"github.com/spf13/cobra"
)

var passwordFlag string

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&passwordFlag, "password", "", "Password (read from the first line of stdin when empty)")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login EMAIL",
	Short: "Sign in and bootstrap the session",
	Long: `Sign in with email and password. Any existing session is ended first.
On success the session is resolved, the role looked up and the redirect
target for the account printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register EMAIL",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func runLogin(cmd *cobra.Command, args []string) error {
	pass, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	rt, err := openRuntime(cmd.Context(), out, "")
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.engine.Start(cmd.Context()); err != nil {
		return err
	}
	if err := rt.engine.SignIn(cmd.Context(), args[0], pass); err != nil {
		return userError(err)
	}
	return printState(out, rt.engine.Store().State())
}

func runRegister(cmd *cobra.Command, args []string) error {
	pass, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	rt, err := openRuntime(cmd.Context(), out, "/register")
	if err != nil {
		return err
	}
	defer rt.close()

	user, err := rt.engine.SignUp(cmd.Context(), args[0], pass)
	if err != nil {
		return userError(err)
	}
	if outputFormat == "json" {
		return writeJSON(out, user)
	}
	fmt.Fprintf(out, "registered %s (id %s)\n", user.Email, user.ID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	rt, err := openRuntime(cmd.Context(), out, "/")
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.engine.Start(cmd.Context()); err != nil {
		return err
	}
	if err := rt.engine.SignOut(cmd.Context()); err != nil {
		return userError(err)
	}
	fmt.Fprintln(out, "signed out")
	return nil
}

// userError replaces err's text with the inline message a portal user
// would see, keeping err reachable through errors.Is.
func userError(err error) error {
	return &messageError{msg: portalauth.FailureMessage(err), err: err}
}

type messageError struct {
	msg string
	err error
}

func (e *messageError) Error() string { return e.msg }
func (e *messageError) Unwrap() error { return e.err }

func readPassword(in io.Reader) (string, error) {
	if passwordFlag != "" {
		return passwordFlag, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
