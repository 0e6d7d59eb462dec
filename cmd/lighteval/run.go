package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/martinscooper/lighteval/internal/aggregate"
	"github.com/martinscooper/lighteval/internal/batch"
	"github.com/martinscooper/lighteval/internal/config"
	"github.com/martinscooper/lighteval/internal/coordinator"
	"github.com/martinscooper/lighteval/internal/dataset"
	"github.com/martinscooper/lighteval/internal/provider"
	"github.com/martinscooper/lighteval/internal/store"
	"github.com/martinscooper/lighteval/internal/suites"
	"github.com/martinscooper/lighteval/internal/task"
	"github.com/martinscooper/lighteval/internal/topology"
)

type runOptions struct {
	tasks              string
	model              string
	providerName       string
	batchSize          int
	dataParallel       int
	tensorParallel     int
	pipelineParallel   int
	allowModelParallel bool
	maxSamples         int
	outputDir          string
	noSave             bool
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an evaluation",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.tasks, "tasks", "", "comma-separated task descriptors (suite|task|num_few_shot|auto_reduce) or a file path with one per line")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name (overrides config)")
	cmd.Flags().StringVar(&opts.providerName, "provider", "", "execution provider: openai|anthropic (overrides config)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "per-device batch size (overrides config)")
	cmd.Flags().IntVar(&opts.dataParallel, "data-parallel", 0, "data-parallel degree")
	cmd.Flags().IntVar(&opts.tensorParallel, "tensor-parallel", 0, "tensor-parallel degree")
	cmd.Flags().IntVar(&opts.pipelineParallel, "pipeline-parallel", 0, "pipeline-parallel degree")
	cmd.Flags().BoolVar(&opts.allowModelParallel, "allow-model-parallel", false, "resolve model parallelism automatically when degrees are unset")
	cmd.Flags().IntVar(&opts.maxSamples, "max-samples", 0, "cap examples per task (numbers become partial, not comparable)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "directory for report and rank files (overrides config)")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "skip saving the run to storage")
	_ = cmd.MarkFlagRequired("tasks")

	return cmd
}

func runEvaluation(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}
	cfg := st.cfg
	applyRunOverrides(cfg, opts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	registry := suites.Builtin()
	data := dataset.Dir{Root: cfg.Evaluation.DataDir}

	descs, err := parseTasksArg(opts.tasks, registry)
	if err != nil {
		return err
	}

	env, err := topology.FromEnv()
	if err != nil {
		return err
	}
	topo, err := topology.Resolve(topology.Degrees{
		Data:               cfg.Parallelism.DataParallel,
		Tensor:             cfg.Parallelism.TensorParallel,
		Pipeline:           cfg.Parallelism.PipelineParallel,
		AllowModelParallel: cfg.Parallelism.AllowModelParallel,
	}, env)
	if err != nil {
		return err
	}

	requests, err := task.ExpandAll(descs, registry, data, cfg.Evaluation.MaxSamples)
	if err != nil {
		return err
	}

	fitted, taskErrs := batch.Fit(requests, registry, batch.CharLimit(cfg.Model.MaxInputLength))
	plan, err := batch.Build(fitted, topo, cfg.Evaluation.BatchSize)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"tasks":                len(descs),
		"requests":             plan.Requests(),
		"topology":             topo.String(),
		"effective_batch_size": plan.EffectiveBatchSize(),
	}).Info("execution plan ready")

	prov, err := provider.FromConfig(cfg)
	if err != nil {
		return err
	}

	outDir := cfg.Evaluation.OutputDir
	manifest := &aggregate.Manifest{
		Tasks:      descriptorStrings(descs),
		Expected:   plan.ExpectedCounts(),
		TaskErrors: errorStrings(taskErrs),
		MaxSamples: cfg.Evaluation.MaxSamples,
		Topology:   topo,
		Model:      cfg.Model.Name,
		Provider:   prov.Name(),
	}

	if env.WorldSize > 1 {
		return runRank(ctx, cmd, env, plan, prov, manifest, outDir)
	}

	partials, workerErrs := coordinator.RunAll(ctx, plan, prov)
	for _, werr := range workerErrs {
		logrus.WithError(werr).Error("worker aborted")
	}

	rep, err := aggregate.Aggregate(aggregate.Input{
		Descriptors: descs,
		Expected:    plan.ExpectedCounts(),
		Partials:    partials,
		Incomplete:  len(workerErrs) > 0,
		MaxSamples:  cfg.Evaluation.MaxSamples,
		TaskErrors:  errorStrings(taskErrs),
	}, registry)
	if err != nil {
		return err
	}

	path, err := aggregate.WriteReport(outDir, rep)
	if err != nil {
		return err
	}

	if !opts.noSave {
		if err := saveRun(ctx, cfg, manifest, rep); err != nil {
			logrus.WithError(err).Warn("could not save run to storage")
		}
	}

	printReport(cmd.OutOrStdout(), rep)
	fmt.Fprintf(cmd.OutOrStdout(), "\nreport written to %s\n", path)
	return nil
}

// runRank is the multi-process path: execute only this rank's shard and
// leave the merge to the aggregate command once every rank has written its
// partials. Rank 0 also writes the manifest the merge step reads.
func runRank(ctx context.Context, cmd *cobra.Command, env topology.ExecContext, plan *batch.Plan, prov coordinator.Provider, manifest *aggregate.Manifest, outDir string) error {
	if env.Rank == 0 {
		if err := aggregate.WriteManifest(outDir, manifest); err != nil {
			return err
		}
	}

	partials, err := coordinator.RunWorker(ctx, env.Rank, plan.Shards[env.Rank], prov)
	if err != nil {
		// The worker aborted but its partials still count; sibling ranks
		// keep running and aggregation reports the holes per task.
		logrus.WithError(err).Error("worker aborted")
	}
	if err := aggregate.SavePartials(outDir, env.Rank, partials); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rank %d/%d wrote %d partial results to %s\n", env.Rank, env.WorldSize, len(partials), outDir)
	if env.Rank == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "run `lighteval aggregate --dir %s` once all ranks have finished\n", outDir)
	}
	return nil
}

func applyRunOverrides(cfg *config.Config, opts *runOptions) {
	if v := strings.TrimSpace(opts.model); v != "" {
		cfg.Model.Name = v
	}
	if v := strings.TrimSpace(opts.providerName); v != "" {
		cfg.Model.Provider = v
	}
	if opts.batchSize > 0 {
		cfg.Evaluation.BatchSize = opts.batchSize
	}
	if opts.dataParallel > 0 {
		cfg.Parallelism.DataParallel = opts.dataParallel
	}
	if opts.tensorParallel > 0 {
		cfg.Parallelism.TensorParallel = opts.tensorParallel
	}
	if opts.pipelineParallel > 0 {
		cfg.Parallelism.PipelineParallel = opts.pipelineParallel
	}
	if opts.allowModelParallel {
		cfg.Parallelism.AllowModelParallel = true
	}
	if opts.maxSamples > 0 {
		cfg.Evaluation.MaxSamples = opts.maxSamples
	}
	if v := strings.TrimSpace(opts.outputDir); v != "" {
		cfg.Evaluation.OutputDir = v
	}
}

// parseTasksArg treats the argument as a file path when one exists, and as a
// comma-separated descriptor list otherwise.
func parseTasksArg(arg string, registry task.Resolver) ([]task.Descriptor, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("run: --tasks is required")
	}
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return task.ParseFile(arg, registry)
	}
	return task.ParseList(arg, registry)
}

func descriptorStrings(descs []task.Descriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.String())
	}
	return out
}

func errorStrings(errs map[string]error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for id, err := range errs {
		out[id] = err.Error()
	}
	return out
}

func saveRun(ctx context.Context, cfg *config.Config, manifest *aggregate.Manifest, rep *aggregate.Report) error {
	stor, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer stor.Close()

	topo := manifest.Topology
	return stor.SaveRun(ctx, &store.Run{
		ID:               newRunID(),
		Model:            manifest.Model,
		Provider:         manifest.Provider,
		CreatedAt:        time.Now().UTC(),
		Partial:          rep.Partial,
		DataParallel:     topo.DataParallel,
		TensorParallel:   topo.TensorParallel,
		PipelineParallel: topo.PipelineParallel,
		WorldSize:        topo.WorldSize,
		Tasks:            manifest.Tasks,
		Report:           rep,
	})
}

func newRunID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return "run-" + hex.EncodeToString(b[:])
}
