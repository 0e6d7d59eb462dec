package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/martinscooper/lighteval/internal/aggregate"
	"github.com/martinscooper/lighteval/internal/suites"
)

type aggregateOptions struct {
	dir    string
	noSave bool
}

// newAggregateCmd merges rank partial files written by a multi-process run
// into the final report.
func newAggregateCmd(st *cliState) *cobra.Command {
	var opts aggregateOptions

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Merge rank partial results into a report",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "run output directory holding manifest.json and partials_rank*.json")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "skip saving the run to storage")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

func runAggregate(cmd *cobra.Command, st *cliState, opts *aggregateOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("aggregate: missing config (internal error)")
	}
	dir := strings.TrimSpace(opts.dir)
	if dir == "" {
		return fmt.Errorf("aggregate: --dir is required")
	}

	manifest, err := aggregate.LoadManifest(dir)
	if err != nil {
		return err
	}
	descs, err := manifest.Descriptors()
	if err != nil {
		return err
	}
	partials, err := aggregate.LoadPartials(dir)
	if err != nil {
		return err
	}

	registry := suites.Builtin()
	rep, err := aggregate.Aggregate(aggregate.Input{
		Descriptors: descs,
		Expected:    manifest.Expected,
		Partials:    partials,
		MaxSamples:  manifest.MaxSamples,
		TaskErrors:  manifest.TaskErrors,
	}, registry)
	if err != nil {
		return err
	}

	path, err := aggregate.WriteReport(dir, rep)
	if err != nil {
		return err
	}

	if !opts.noSave {
		if err := saveRun(cmd.Context(), st.cfg, manifest, rep); err != nil {
			logrus.WithError(err).Warn("could not save run to storage")
		}
	}

	printReport(cmd.OutOrStdout(), rep)
	fmt.Fprintf(cmd.OutOrStdout(), "\nreport written to %s\n", path)
	return nil
}
