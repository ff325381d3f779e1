package main

import (
	"github.com/spf13/cobra"

	"freshledger/pkg/domain"
)

func newRoleCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant, revoke and list roles",
	}
	change := func(use, short string, apply func(cmd *cobra.Command, p domain.Principal, k domain.RoleKind) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <admin|manufacturer|distributor|retailer> <principal>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				kind, err := domain.ParseRoleKind(args[0])
				if err != nil {
					return err
				}
				if err := apply(cmd, domain.Principal(args[1]), kind); err != nil {
					return err
				}
				return e.print(e.registry.Roles(cmd.Context()))
			},
		}
	}
	cmd.AddCommand(
		change("grant", "Grant a role to a principal", func(cmd *cobra.Command, p domain.Principal, k domain.RoleKind) error {
			return e.registry.AddRole(cmd.Context(), e.caller(), p, k)
		}),
		change("revoke", "Revoke a role from a principal", func(cmd *cobra.Command, p domain.Principal, k domain.RoleKind) error {
			return e.registry.RemoveRole(cmd.Context(), e.caller(), p, k)
		}),
		&cobra.Command{
			Use:   "list",
			Short: "Print the role table",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return e.print(e.registry.Roles(cmd.Context()))
			},
		},
	)
	return cmd
}
