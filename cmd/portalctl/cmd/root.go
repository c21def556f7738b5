// Package cmd implements the portalctl CLI commands.
package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hwlegacy/portalauth"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	outputFormat string
	stateDir     string
	redisAddr    string
	redisPrefix  string
	rolesDriver  string
	rolesDSN     string
	envPrefix    string
	auditLog     bool
	maxAttempts  int
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Investor portal session tool",
	Long: `portalctl bootstraps and inspects an investor portal session.

Accounts and the session are kept by a local identity provider whose state,
like the session store, lives in the state directory or in Redis when
--redis-addr is set. Administrator membership is read from a SQL database.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// pflag already applied the glog flags; mark the Go flag set parsed.
		return flag.CommandLine.Parse(nil)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "State directory (default: ~/.config/portalctl)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", `Redis address for durable state; "embedded" starts an in-process server`)
	rootCmd.PersistentFlags().StringVar(&redisPrefix, "redis-prefix", "portalctl:", "Key prefix in Redis")
	rootCmd.PersistentFlags().StringVar(&rolesDriver, "roles-driver", "sqlite3", "Role database driver: sqlite3, postgres")
	rootCmd.PersistentFlags().StringVar(&rolesDSN, "roles-dsn", "", "Role database DSN (default: roles.db in the state directory)")
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", portalauth.DefaultEnvPrefix, "Environment prefix for engine configuration")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "max-attempts", 5, "Failed sign-ins per email allowed in a 15 minute window")
	rootCmd.PersistentFlags().BoolVar(&auditLog, "audit", false, "Write audit events as JSON lines to stderr")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func resolveStateDir() (string, error) {
	if stateDir != "" {
		return stateDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(base, "portalctl"), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
