package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/martinscooper/lighteval/internal/aggregate"
	"github.com/martinscooper/lighteval/internal/store"
)

func printReport(w io.Writer, rep *aggregate.Report) {
	if rep == nil {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tMETRIC\tVALUE\tEXAMPLES")

	taskIDs := make([]string, 0, len(rep.Results))
	for id := range rep.Results {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)

	for _, id := range taskIDs {
		tr := rep.Results[id]
		if tr.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR\t%s\t%d\n", id, tr.Error, tr.Examples)
			continue
		}

		metrics := make([]string, 0, len(tr.Metrics))
		for name := range tr.Metrics {
			metrics = append(metrics, name)
		}
		sort.Strings(metrics)
		for _, name := range metrics {
			fmt.Fprintf(tw, "%s\t%s\t%.4f\t%d\n", id, name, tr.Metrics[name], tr.Examples)
		}
	}
	_ = tw.Flush()

	if rep.Partial {
		fmt.Fprintln(w, "\nWARNING: report is partial; some tasks or workers did not complete")
	}
	if rep.MaxSamples > 0 {
		fmt.Fprintf(w, "\nNOTE: examples capped at %d per task; numbers are not comparable to full runs\n", rep.MaxSamples)
	}
}

func printRuns(w io.Writer, runs []*store.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tPROVIDER\tCREATED\tPARTIAL\tTASKS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%d\n",
			r.ID, r.Model, r.Provider, r.CreatedAt.Format("2006-01-02 15:04"), r.Partial, len(r.Tasks))
	}
	_ = tw.Flush()
}
