// Package report renders allocation results as text, GeoJSON and XLSX.
package report

import (
	"fmt"
	"io"
	"strconv"

	"freightplan/internal/opt"
)

func supplierLabel(p opt.Problem, i int) string {
	if i < len(p.Supply) && p.Supply[i].Name != "" {
		return p.Supply[i].Name
	}
	return fmt.Sprintf("Supplier %d", i+1)
}

func clientLabel(p opt.Problem, j int) string {
	if j < len(p.Demand) && p.Demand[j].Name != "" {
		return p.Demand[j].Name
	}
	return fmt.Sprintf("Client %d", j+1)
}

func driverLabel(p opt.Problem, k int) string {
	if k < len(p.Drivers) && p.Drivers[k].Name != "" {
		return p.Drivers[k].Name
	}
	return fmt.Sprintf("Driver %d", k+1)
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Text writes the plain report: status, allocations, total cost, duals and
// slacks, and diagnostics when the run is not optimal.
func Text(w io.Writer, p opt.Problem, res opt.Result) error {
	ew := &errWriter{w: w}
	ew.printf("Status: %s\n", res.Status)
	for _, a := range res.Allocations {
		ew.printf("%s delivers %s units from %s to %s\n", driverLabel(p, a.Driver), num(a.Quantity), supplierLabel(p, a.Supply), clientLabel(p, a.Demand))
	}
	if res.Objective != nil {
		ew.printf("Total Cost: %s\n", num(*res.Objective))
	}
	if len(res.Constraints) > 0 {
		ew.printf("\nDuals and Slacks:\n")
		for _, c := range res.Constraints {
			ew.printf("%s: Dual = %s, Slack = %s\n", c.Name, num(c.Dual), num(c.Slack))
		}
	}
	if res.DualNote != "" {
		ew.printf("Note: %s\n", res.DualNote)
	}
	if len(res.Diagnostics) > 0 {
		ew.printf("\nDiagnostics:\n")
		for _, d := range res.Diagnostics {
			ew.printf("- [%s] %s\n", d.Kind, d.Message)
		}
	}
	if res.Reason != "" && res.Status != opt.StatusOptimal {
		ew.printf("Reason: %s\n", res.Reason)
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
