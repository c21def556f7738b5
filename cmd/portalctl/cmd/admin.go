package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminGrantCmd, adminRevokeCmd, adminCheckCmd)
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator membership",
	Long:  "Commands that edit the admin_users table consulted by the role lookup.",
}

var adminGrantCmd = &cobra.Command{
	Use:   "grant USER_ID",
	Short: "Grant administrator rights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRoles(cmd, func(rt *runtime) error {
			if err := rt.roles.Grant(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted admin to %s\n", args[0])
			return nil
		})
	},
}

var adminRevokeCmd = &cobra.Command{
	Use:   "revoke USER_ID",
	Short: "Revoke administrator rights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRoles(cmd, func(rt *runtime) error {
			if err := rt.roles.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked admin from %s\n", args[0])
			return nil
		})
	},
}

var adminCheckCmd = &cobra.Command{
	Use:   "check USER_ID",
	Short: "Report whether a user is an administrator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRoles(cmd, func(rt *runtime) error {
			isAdmin, err := rt.roles.IsAdmin(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"user_id": args[0], "is_admin": isAdmin})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s admin=%t\n", args[0], isAdmin)
			return nil
		})
	},
}

func withRoles(cmd *cobra.Command, fn func(*runtime) error) error {
	rt, err := openRuntime(cmd.Context(), cmd.OutOrStdout(), "/")
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(rt)
}
