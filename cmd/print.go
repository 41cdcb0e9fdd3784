package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/equity-map/internal/race"
	"github.com/sells-group/equity-map/internal/registry"
	"github.com/sells-group/equity-map/internal/state"
)

func printRaceTable(out io.Writer, res *race.Result) {
	_, _ = fmt.Fprintf(out, "\n%s by dominant race\n", res.Label)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GROUP\tTRACTS\tMEDIAN\tIQR\tMEAN")
	_, _ = fmt.Fprintln(w, "-----\t------\t------\t---\t----")
	for _, r := range res.Table() {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", r.Group, r.Count, r.Median, r.IQR, r.Mean)
	}
	_ = w.Flush()
}

func printSlot(out io.Writer, s state.Slot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Index:\t%s\n", s.FieldName)
	_, _ = fmt.Fprintf(w, "Type:\t%s\n", s.Kind)
	if s.Description != "" {
		_, _ = fmt.Fprintf(w, "Description:\t%s\n", s.Description)
	}
	_, _ = fmt.Fprintf(w, "Variables:\t%d\n", len(s.Variables))
	_ = w.Flush()
}

func printCatalog(out io.Writer, reg *registry.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tFIELD\tNAME")
	_, _ = fmt.Fprintln(w, "--------\t-----\t----")
	for _, c := range reg.Categories() {
		for _, f := range c.Fields {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, f.ID, f.Name)
		}
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out, "\nRace groups:")
	for _, g := range reg.RaceGroups() {
		_, _ = fmt.Fprintf(out, "  %-10s %s\n", g.Key, g.Label)
	}
}

func printIndexGroups(out io.Writer, groups []registry.IndexGroup) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tVARIABLE\tNAME")
	_, _ = fmt.Fprintln(w, "--------\t--------\t----")
	for _, g := range groups {
		for _, v := range g.Variables {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", g.Category, v.ID, v.Name)
		}
	}
	_ = w.Flush()
}
