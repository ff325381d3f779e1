package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"freshledger/internal/core"
	"freshledger/pkg/domain"
)

type productView struct {
	domain.Product
	CategoryName  string `json:"category_name"`
	LocationName  string `json:"location_name"`
	Expired       bool   `json:"expired"`
	RemainingDays int64  `json:"remaining_days"`
}

func (e *env) view(p domain.Product) productView {
	now := e.now()
	return productView{
		Product:       p,
		CategoryName:  p.Category.String(),
		LocationName:  p.Location.String(),
		Expired:       p.IsExpired(now),
		RemainingDays: domain.DaysBetween(now, p.ExpiryDate),
	}
}

func (e *env) printProducts(products []domain.Product) error {
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, e.view(p))
	}
	return e.print(views)
}

func newProductCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Create, move, update and inspect products",
	}
	cmd.AddCommand(
		newProductCreateCmd(e),
		&cobra.Command{
			Use:   "move <id> <distributor|retailer|customer>",
			Short: "Advance a product along the supply chain",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				loc, err := domain.ParseLocation(args[1])
				if err != nil {
					return err
				}
				p, err := e.registry.UpdateLocation(cmd.Context(), e.caller(), args[0], loc)
				if err != nil {
					return err
				}
				return e.print(e.view(p))
			},
		},
		&cobra.Command{
			Use:   "quantity <id> <quantity>",
			Short: "Set the on-hand quantity (admin)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				qty, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("%w: quantity %q", domain.ErrInvalidArgument, args[1])
				}
				p, err := e.registry.UpdateQuantity(cmd.Context(), e.caller(), args[0], qty)
				if err != nil {
					return err
				}
				return e.print(e.view(p))
			},
		},
		&cobra.Command{
			Use:   "reprice <id>...",
			Short: "Recompute tier prices with the active discount",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 1 {
					p, err := e.registry.UpdatePrice(cmd.Context(), e.caller(), args[0])
					if err != nil {
						return err
					}
					return e.printProducts([]domain.Product{p})
				}
				products, err := e.registry.UpdatePricesBatch(cmd.Context(), e.caller(), args)
				if err != nil {
					return err
				}
				return e.printProducts(products)
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print one product",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				p, err := e.registry.GetProduct(args[0])
				if err != nil {
					return err
				}
				return e.print(e.view(p))
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every product in creation order",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return e.printProducts(e.registry.ListProducts())
			},
		},
	)
	return cmd
}

func newProductCreateCmd(e *env) *cobra.Command {
	var (
		in                     core.ProductInput
		category               string
		manufactured, expiries string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new product at the manufacturer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.Category, err = domain.ParseCategory(category); err != nil {
				return err
			}
			if in.ManufactureDate, err = parseInstant(manufactured); err != nil {
				return fmt.Errorf("--manufactured: %w", err)
			}
			if in.ExpiryDate, err = parseInstant(expiries); err != nil {
				return fmt.Errorf("--expires: %w", err)
			}
			p, err := e.registry.CreateProduct(cmd.Context(), e.caller(), in)
			if err != nil {
				return err
			}
			return e.print(e.view(p))
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.ID, "id", "", "product id (issued by the token ledger when empty)")
	f.StringVar(&in.Name, "name", "", "product name")
	f.StringVar(&in.Manufacturer, "manufacturer", "", "manufacturer name")
	f.StringVar(&manufactured, "manufactured", "", "manufacture date")
	f.StringVar(&expiries, "expires", "", "expiry date")
	f.StringVar(&category, "category", "", "food|beverage|pharmaceutical|cosmetic|other")
	f.Int64Var(&in.Quantity, "quantity", 0, "initial quantity")
	f.Int64Var(&in.Price, "price", 0, "initial price")
	f.BoolVar(&in.IsQualityProduct, "quality", false, "mark as a quality product")
	for _, name := range []string{"name", "manufacturer", "manufactured", "expires", "category", "quantity", "price"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
