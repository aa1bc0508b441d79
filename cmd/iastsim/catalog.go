package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/lcx/iast/telemetry"
)

// Run prints one line per catalog metric.
func (c *CatalogCmd) Run() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tSCOPE\tTAG")
	for _, m := range telemetry.Metrics() {
		tag := m.TagDimension
		if tag == "" {
			tag = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, m.Scope, tag)
	}
	return w.Flush()
}
