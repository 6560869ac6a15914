package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/zero-day-ai/aviator/allocation"
	"github.com/zero-day-ai/aviator/engine"
)

// outcomeJSON is the machine-readable form of an Outcome.
type outcomeJSON struct {
	*engine.Outcome
	ResultTag  string                     `json:"result_tag"`
	Categories []allocation.CategoryStats `json:"categories,omitempty"`
	Skips      []skipJSON                 `json:"skips,omitempty"`
}

type skipJSON struct {
	InstanceID string `json:"instance_id"`
	Category   string `json:"category"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

func printOutcome(w io.Writer, out *engine.Outcome, asJSON bool) error {
	if asJSON {
		doc := outcomeJSON{Outcome: out, ResultTag: out.ResultTag.Name}
		if out.Plan != nil {
			doc.Categories = out.Plan.Categories
			for _, s := range out.Plan.Skipped {
				doc.Skips = append(doc.Skips, skipJSON{
					InstanceID: s.Finding.InstanceID,
					Category:   s.Finding.Category,
					Reason:     s.Reason.String(),
					Message:    s.Message(),
				})
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	if out.Status != "" {
		fmt.Fprintf(w, "Status:      %s\n", out.Status)
	}
	fmt.Fprintf(w, "Result tag:  %s\n", out.ResultTag.Name)
	fmt.Fprintf(w, "Eligible:    %d (%d after filtering)\n", out.Eligible, out.Filtered)
	fmt.Fprintf(w, "Included:    %d\n", out.Included)
	fmt.Fprintf(w, "Skipped:     %d\n", out.Skipped)
	if out.Status != "" {
		fmt.Fprintf(w, "Succeeded:   %d\n", out.Succeeded)
		fmt.Fprintf(w, "Merged:      %d (+%d annotated)\n", out.Merged, out.Annotated)
		fmt.Fprintf(w, "Failed:      %d\n", out.Failed)
	}

	if out.Plan == nil || len(out.Plan.Categories) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tELIGIBLE\tINCLUDED\tPER-CATEGORY\tPER-TOTAL")
	for _, cat := range out.Plan.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n",
			cat.Name, cat.Eligible, cat.Included, cat.SkippedPerCategory, cat.SkippedPerTotal)
	}
	return tw.Flush()
}
