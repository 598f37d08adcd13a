package view

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/opensource-utility/dipper/internal/highlight"
	"github.com/opensource-utility/dipper/internal/session"
)

// HistoryRow is one billing period in the detective table.
type HistoryRow struct {
	Date            string   `json:"date"`
	PreviousReading int      `json:"previousReading"`
	CurrentReading  int      `json:"currentReading"`
	Delta           int      `json:"delta"`
	SkipCode        string   `json:"skipCode,omitempty"`
	TroubleCode     string   `json:"troubleCode,omitempty"`
	SpecialMessage  string   `json:"specialMessage,omitempty"`
	Flags           []string `json:"flags,omitempty"`
}

// StatusChoice is one mutually exclusive audit status option.
type StatusChoice struct {
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

// AuditForm is the renderable audit panel.
type AuditForm struct {
	Statuses []StatusChoice `json:"statuses"`
	Remark   string         `json:"remark"`

	// CanSubmit mirrors the remark precondition so the form can
	// disable its submit control.
	CanSubmit bool `json:"canSubmit"`

	Error string `json:"error,omitempty"`
}

// Detail is the detective-mode view model.
type Detail struct {
	State        session.State `json:"state"`
	Nomen        string        `json:"nomen,omitempty"`
	Name         string        `json:"name,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	CustomerName string        `json:"customerName,omitempty"`
	Tariff       string        `json:"tariff,omitempty"`
	HistoryError string        `json:"historyError,omitempty"`
	History      []HistoryRow  `json:"history"`
	Form         *AuditForm    `json:"form,omitempty"`
}

// BuildDetail maps a session snapshot to the detective view model.
// The history keeps the backend's row order; the audit form is present
// whenever an anomaly is selected, even if the history failed to load.
func BuildDetail(snap session.Snapshot, eng *highlight.Engine) Detail {
	d := Detail{
		State:   snap.State,
		History: []HistoryRow{},
	}
	if snap.Selected == nil {
		return d
	}

	d.Nomen = snap.Selected.Nomen
	d.Name = snap.Selected.Name
	d.Tags = append([]string(nil), snap.Selected.Status...)
	d.HistoryError = snap.HistoryErr

	if snap.History != nil {
		if snap.History.Customer != nil {
			d.CustomerName = snap.History.Customer.Name
			d.Tariff = snap.History.Customer.Tariff
		}
		for i := range snap.History.Entries {
			e := &snap.History.Entries[i]
			row := HistoryRow{
				Date:            e.Date,
				PreviousReading: e.PreviousReading,
				CurrentReading:  e.CurrentReading,
				Delta:           e.UsageDelta(),
				SkipCode:        e.SkipCode,
				TroubleCode:     e.TroubleCode,
				SpecialMessage:  e.SpecialMessage,
			}
			if eng != nil {
				row.Flags = eng.FlagEntry(e)
			}
			d.History = append(d.History, row)
		}
	}

	form := &AuditForm{
		Remark:    snap.AuditRemark,
		CanSubmit: strings.TrimSpace(snap.AuditRemark) != "",
		Error:     snap.LastError,
	}
	for _, s := range snap.Statuses {
		form.Statuses = append(form.Statuses, StatusChoice{
			Value:    s,
			Selected: s == snap.AuditStatus,
		})
	}
	d.Form = form
	return d
}

// RenderDetailText renders the detail view as text.
func RenderDetailText(d Detail) string {
	var b strings.Builder

	if d.Nomen == "" {
		b.WriteString("no anomaly selected\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s  #%s  [%s]\n", d.Name, d.Nomen, strings.Join(d.Tags, ","))
	if d.CustomerName != "" {
		fmt.Fprintf(&b, "customer: %s  tariff: %s\n", d.CustomerName, d.Tariff)
	}
	if d.HistoryError != "" {
		fmt.Fprintf(&b, "history unavailable: %s\n", d.HistoryError)
	}

	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tPREV\tCURR\tDELTA\tCODES\tMESSAGE")
	for _, r := range d.History {
		delta := fmt.Sprintf("%d m3", r.Delta)
		if len(r.Flags) > 0 {
			delta += " (" + strings.Join(r.Flags, ",") + ")"
		}
		codes := r.SkipCode
		if r.TroubleCode != "" {
			if codes != "" {
				codes += "/"
			}
			codes += r.TroubleCode
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			r.Date, r.PreviousReading, r.CurrentReading, delta, codes, r.SpecialMessage)
	}
	w.Flush()

	if d.Form != nil {
		var choices []string
		for _, c := range d.Form.Statuses {
			if c.Selected {
				choices = append(choices, "["+c.Value+"]")
			} else {
				choices = append(choices, c.Value)
			}
		}
		fmt.Fprintf(&b, "status: %s\n", strings.Join(choices, " "))
		fmt.Fprintf(&b, "remark: %s\n", d.Form.Remark)
		if !d.Form.CanSubmit {
			b.WriteString("submit disabled: remark required\n")
		}
		if d.Form.Error != "" {
			fmt.Fprintf(&b, "error: %s\n", d.Form.Error)
		}
	}
	return b.String()
}
