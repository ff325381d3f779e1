package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"freshledger/pkg/domain"
)

func newQueryCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Look up product ids by attribute",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "category <name>",
			Short: "Ids of products in a category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := domain.ParseCategory(args[0])
				if err != nil {
					return err
				}
				ids, err := e.registry.Index().ByCategory(cmd.Context(), c)
				if err != nil {
					return err
				}
				return e.print(ids)
			},
		},
		&cobra.Command{
			Use:   "manufacturer <name>",
			Short: "Ids of products from a manufacturer (exact match)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := e.registry.Index().ByManufacturer(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return e.print(ids)
			},
		},
		&cobra.Command{
			Use:   "expiring <days>",
			Short: "Ids of unexpired products with at most <days> days left",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				days, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("%w: days %q", domain.ErrInvalidArgument, args[0])
				}
				ids, err := e.registry.Index().ExpiringWithin(cmd.Context(), days, e.now())
				if err != nil {
					return err
				}
				return e.print(ids)
			},
		},
	)
	return cmd
}

type analyticsView struct {
	AveragePrice         *int64 `json:"average_price,omitempty"`
	TotalInventoryValue  int64  `json:"total_inventory_value"`
	AverageShelfLifeDays *int64 `json:"average_shelf_life_days,omitempty"`
	Turnover             *int64 `json:"turnover,omitempty"`
}

func optional(v int64, err error) (*int64, error) {
	if errors.Is(err, domain.ErrNoProducts) || errors.Is(err, domain.ErrNoValidProducts) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func newAnalyticsCmd(e *env) *cobra.Command {
	var initial, final []int64
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Print inventory aggregates",
		Long: `Print average price, inventory value and average shelf life.

With --initial and --final (one value per product in creation order) the
turnover ratio is included as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, now, a := cmd.Context(), e.now(), e.registry.Analytics()
			var (
				out analyticsView
				err error
			)
			if out.AveragePrice, err = optional(a.AveragePrice(ctx, now)); err != nil {
				return err
			}
			if out.TotalInventoryValue, err = a.TotalInventoryValue(ctx, now); err != nil {
				return err
			}
			if out.AverageShelfLifeDays, err = optional(a.AverageShelfLifeDays(ctx)); err != nil {
				return err
			}
			if cmd.Flags().Changed("initial") || cmd.Flags().Changed("final") {
				ratio, err := a.InventoryTurnover(ctx, initial, final, now)
				if err != nil {
					return err
				}
				out.Turnover = &ratio
			}
			return e.print(out)
		},
	}
	cmd.Flags().Int64SliceVar(&initial, "initial", nil, "initial quantities, comma separated")
	cmd.Flags().Int64SliceVar(&final, "final", nil, "final quantities, comma separated")
	return cmd
}
