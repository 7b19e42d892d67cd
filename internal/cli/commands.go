package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"milkbook/internal/core"
	"milkbook/internal/store"
)

// withSession opens the ledger for one command and closes it afterwards.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *Session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := opts.open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if s.Close != nil {
			_ = s.Close()
		}
	}()
	return fn(ctx, s)
}

func newViewCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view [date]",
		Short: "Show a day (today when no date is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := core.DateOf(time.Now()).String()
			if len(args) == 1 {
				date = args[0]
			}
			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				view, err := s.Ledger.ComputeView(ctx, date)
				if err != nil {
					return err
				}
				data := struct {
					core.View
					Summary core.Summary `json:"summary"`
				}{view, view.Summary()}
				return opts.formatter(cmd).Emit(data, func(w io.Writer) error { return writeDay(w, view) })
			})
		},
	}
}

func newSaveCommand(opts *RootOptions) *cobra.Command {
	var (
		items []string
		paid  string
	)
	cmd := &cobra.Command{
		Use:   "save <date>",
		Short: "Replace a day's items and total paid",
		Long: `Replace the whole record for a date. Each --item is
PRODUCT:QUANTITY:RATE or PRODUCT:QUANTITY:RATE:ID. The carry forward is
recomputed from the previous day.`,
		Example: `  milkbookctl save 2024-03-01 --item "Amul Gold:2:34" --item "Chhas:1:15" --paid 50`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineItems := make([]core.LineItem, 0, len(items))
			for _, spec := range items {
				it, err := parseItemSpec(spec)
				if err != nil {
					return err
				}
				lineItems = append(lineItems, it)
			}
			totalPaid, err := core.ParseMoney(paid)
			if err != nil {
				return fmt.Errorf("--paid: %w", err)
			}
			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				rec, err := s.Ledger.SaveDay(ctx, args[0], lineItems, totalPaid)
				if err != nil {
					return err
				}
				return emitRecord(cmd, opts, "Saved", rec)
			})
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "line item PRODUCT:QUANTITY:RATE[:ID] (repeatable)")
	cmd.Flags().StringVar(&paid, "paid", "0", "total paid for the day")
	return cmd
}

func newPayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pay <date> <amount>",
		Short: "Add a payment to a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseMoney(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				rec, err := s.Ledger.ApplyPayment(ctx, args[0], amount)
				if err != nil {
					return err
				}
				return emitRecord(cmd, opts, "Payment recorded", rec)
			})
		},
	}
}

func newRemoveItemCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-item <date> <item-id>",
		Short: "Delete one item from a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				rec, err := s.Ledger.DeleteItem(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return emitRecord(cmd, opts, "Item removed", rec)
			})
		},
	}
}

// ImportResult summarises an import run.
type ImportResult struct {
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped"`
	DryRun   bool     `json:"dryRun"`
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	var dryRun, overwrite bool
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load a ledger JSON document, including old JSONBin exports",
		Long: `Import writes each day of a ledger document as-is, stored carry
forward included. Days that already exist are skipped unless --overwrite
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			records, err := store.DecodeDocument(raw)
			if err != nil {
				return err
			}
			for _, rec := range records {
				if err := rec.Validate(); err != nil {
					return fmt.Errorf("day %s: %w", rec.Date, err)
				}
			}

			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				res, err := importRecords(ctx, s.Store, records, overwrite, dryRun)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Emit(res, func(w io.Writer) error {
					verb := "Imported"
					if dryRun {
						verb = "Would import"
					}
					_, err := fmt.Fprintf(w, "%s %d day(s), skipped %d existing\n", verb, len(res.Imported), len(res.Skipped))
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be written without writing")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace days that already exist")
	return cmd
}

func importRecords(ctx context.Context, st store.Store, records []core.DayRecord, overwrite, dryRun bool) (ImportResult, error) {
	res := ImportResult{Imported: []string{}, Skipped: []string{}, DryRun: dryRun}
	for _, rec := range records {
		if !overwrite {
			_, exists, err := st.Get(ctx, rec.Date)
			if err != nil {
				return res, fmt.Errorf("%w: get %s: %w", core.ErrStoreUnavailable, rec.Date, err)
			}
			if exists {
				res.Skipped = append(res.Skipped, rec.Date.String())
				continue
			}
		}
		if !dryRun {
			if err := st.Put(ctx, rec); err != nil {
				return res, fmt.Errorf("%w: put %s: %w", core.ErrStoreUnavailable, rec.Date, err)
			}
		}
		res.Imported = append(res.Imported, rec.Date.String())
	}
	return res, nil
}

func newProductsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the product catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				products := s.Catalog.Products()
				return opts.formatter(cmd).Emit(products, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tTYPE\tNAME")
					for _, p := range products {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Type, p.Name)
					}
					return tw.Flush()
				})
			})
		},
	}
}

func emitRecord(cmd *cobra.Command, opts *RootOptions, verb string, rec core.DayRecord) error {
	return opts.formatter(cmd).Emit(rec, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "%s %s\n\n", verb, rec.Date); err != nil {
			return err
		}
		return writeDay(w, core.ViewOf(rec))
	})
}

// parseItemSpec reads PRODUCT:QUANTITY:RATE[:ID].
func parseItemSpec(spec string) (core.LineItem, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return core.LineItem{}, fmt.Errorf("%w: item %q must be PRODUCT:QUANTITY:RATE[:ID]", core.ErrInvalidItem, spec)
	}
	qty, err := core.ParseQuantity(parts[1])
	if err != nil {
		return core.LineItem{}, fmt.Errorf("item %q quantity: %w", spec, err)
	}
	rate, err := core.ParseMoney(parts[2])
	if err != nil {
		return core.LineItem{}, fmt.Errorf("item %q rate: %w", spec, err)
	}
	id := ""
	if len(parts) == 4 {
		id = parts[3]
	}
	return core.NewLineItem(id, strings.TrimSpace(parts[0]), qty, rate), nil
}
