package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"freshledger/pkg/domain"
)

func newDiscountCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discount",
		Short: "Manage the registry-wide discount",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <percentage>",
			Short: "Activate a discount of 1-99 percent (admin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pct, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("%w: percentage %q", domain.ErrInvalidArgument, args[0])
				}
				d, err := e.registry.SetDiscount(cmd.Context(), e.caller(), pct)
				if err != nil {
					return err
				}
				return e.print(d)
			},
		},
		&cobra.Command{
			Use:   "cancel",
			Short: "Deactivate the discount (admin)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := e.registry.CancelDiscount(cmd.Context(), e.caller()); err != nil {
					return err
				}
				return e.print(e.registry.Discount(cmd.Context()))
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the discount state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return e.print(e.registry.Discount(cmd.Context()))
			},
		},
	)
	return cmd
}
