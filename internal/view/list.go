// Package view builds renderable models from review state.
//
// Adapters are pure: session snapshots and highlight flags in, view
// models and text out. Rendering decisions (what is shown, and when)
// live here; workflow rules stay in the session.
package view

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/opensource-utility/dipper/internal/domain"
	"github.com/opensource-utility/dipper/internal/highlight"
)

// ListRow is one anomaly in the list view.
type ListRow struct {
	Nomen string `json:"nomen"`
	Name  string `json:"name"`

	// Tags carries every backend status tag, not just the first.
	Tags []string `json:"tags"`

	Usage int `json:"usage"`

	// Negative marks regressed usage for visual distinction.
	Negative bool `json:"negative"`

	// Flags are the display flags from the highlight engine.
	Flags []string `json:"flags,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// BuildList maps anomalies to list rows in the order received.
func BuildList(anomalies []domain.Anomaly, eng *highlight.Engine) []ListRow {
	rows := make([]ListRow, 0, len(anomalies))
	for i := range anomalies {
		a := &anomalies[i]
		row := ListRow{
			Nomen:    a.Nomen,
			Name:     a.Name,
			Tags:     append([]string(nil), a.Status...),
			Usage:    a.Usage,
			Negative: a.Usage < 0,
		}
		if eng != nil {
			row.Flags = eng.FlagAnomaly(a)
		}
		if a.Details != nil {
			row.Reason = a.Details.AnomalyReason
		}
		rows = append(rows, row)
	}
	return rows
}

// RenderListText renders the list as an aligned text table.
func RenderListText(rows []ListRow) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "NOMEN\tNAME\tUSAGE\tTAGS\tFLAGS")
	for _, r := range rows {
		usage := fmt.Sprintf("%d m3", r.Usage)
		if r.Negative {
			usage = "! " + usage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Nomen,
			r.Name,
			usage,
			strings.Join(r.Tags, ","),
			strings.Join(r.Flags, ","),
		)
	}
	w.Flush()
	return b.String()
}
