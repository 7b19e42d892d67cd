package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"milkbook/internal/core"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Emit writes data as indented JSON, or calls text for the text format.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return text(f.Writer)
}

// writeDay prints items followed by the summary block.
func writeDay(w io.Writer, v core.View) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Date\t%s\n", v.Date)
	if !v.Stored {
		fmt.Fprintln(tw, "Stored\tno")
	}
	if len(v.Items) > 0 {
		fmt.Fprintln(tw, "\nID\tPRODUCT\tQTY\tRATE\tTOTAL")
		for _, it := range v.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.ProductType, it.Quantity, it.Rate, it.Total)
		}
		fmt.Fprintln(tw)
	}
	s := v.Summary()
	fmt.Fprintf(tw, "Total billed\t%s\n", s.TotalBilled)
	fmt.Fprintf(tw, "Paid\t%s\n", s.TotalPaid)
	fmt.Fprintf(tw, "Remaining\t%s\n", s.Remaining)
	fmt.Fprintf(tw, "Carry forward\t%s\n", s.CarryForward)
	fmt.Fprintf(tw, "Grand remaining\t%s\n", s.GrandRemaining)
	return tw.Flush()
}
