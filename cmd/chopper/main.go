// Package main provides the chopper command line tool, which cuts an audio
// file into harmonic chops and picks the representatives.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maauso/chopper/internal/analysis"
	"github.com/maauso/chopper/internal/audio"
	"github.com/maauso/chopper/internal/chop"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chopper",
		Short:         "Cut audio into timbrally distinct chops",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newChopCmd())
	return root
}

type chopOptions struct {
	input      string
	outdir     string
	sampleRate int
	workers    int
	verbose    bool
	params     chop.Params
}

func newChopCmd() *cobra.Command {
	opts := chopOptions{params: chop.DefaultParams()}

	cmd := &cobra.Command{
		Use:   "chop",
		Short: "Chop a track into harmonic segments and select representatives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChop(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "input audio file")
	f.StringVarP(&opts.outdir, "outdir", "o", "./chops", "output directory")
	f.IntVar(&opts.sampleRate, "sr", 44100, "decode sample rate for non-WAV input")
	f.IntVar(&opts.workers, "workers", 4, "parallel feature extraction workers")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	p := &opts.params
	f.IntVar(&p.Onset.HopLength, "hop_length", p.Onset.HopLength, "onset analysis hop in samples")
	f.Float64Var(&p.DefaultLength, "default_len", p.DefaultLength, "default chop length in seconds")
	f.Float64Var(&p.MinDuration, "min_duration", p.MinDuration, "minimum chop duration in seconds")
	f.IntVar(&p.NClusters, "n_clusters", p.NClusters, "number of timbral groups")
	f.IntVar(&p.MaxChops, "max_chops", p.MaxChops, "maximum number of representatives")
	f.BoolVar(&p.Onset.Backtrack, "backtrack", p.Onset.Backtrack, "move onsets back to the preceding energy minimum")
	f.IntVar(&p.Onset.PreMax, "pre_max", p.Onset.PreMax, "frames before a peak for the max filter")
	f.IntVar(&p.Onset.PostMax, "post_max", p.Onset.PostMax, "frames after a peak for the max filter")
	f.IntVar(&p.Onset.PreAvg, "pre_avg", p.Onset.PreAvg, "frames before a peak for the mean filter")
	f.IntVar(&p.Onset.PostAvg, "post_avg", p.Onset.PostAvg, "frames after a peak for the mean filter")
	f.Float64Var(&p.Onset.Delta, "delta", p.Onset.Delta, "peak threshold over the local mean")
	f.IntVar(&p.Onset.Wait, "wait", p.Onset.Wait, "frames to wait after an onset")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runChop(ctx context.Context, stdout, stderr io.Writer, opts chopOptions) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := opts.params.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(opts.input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	decoder := audio.NewAutoDecoder(audio.NewFFmpegDecoder("", opts.sampleRate))
	wf, err := decoder.Decode(ctx, data, opts.input)
	if err != nil {
		return fmt.Errorf("%w: %w", chop.ErrDecode, err)
	}
	logger.Info("audio loaded",
		slog.String("input", opts.input),
		slog.Float64("duration", wf.Duration()),
		slog.Int("sample_rate", wf.SampleRate),
	)

	store, err := newDirStore(filepath.Join(opts.outdir, "harmonic"))
	if err != nil {
		return err
	}
	local := analysis.NewLocal(analysis.WithLocalLogger(logger))
	pipeline := chop.NewPipeline(store, decoder, local, local,
		chop.WithWorkers(opts.workers),
		chop.WithLogger(logger),
	)

	source := filepath.Base(opts.input)
	result, err := pipeline.Chop(ctx, wf, source, opts.params)
	if err != nil {
		return err
	}

	metaPath := filepath.Join(opts.outdir, "chops_metadata.json")
	if err := store.WriteMetadata(metaPath); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Wrote %d harmonic chops to %s\n", result.TotalSegments, store.dir)
	if result.ClusterStatus != chop.ClusterStatusClustered {
		fmt.Fprintf(stdout, "Clustering: %s %s\n", result.ClusterStatus, result.ClusterReason)
	}
	printRepresentatives(stdout, result.Representatives)
	return nil
}

func printRepresentatives(w io.Writer, reps []chop.ChopSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tCLUSTER\tNAME\tSTART\tEND\tDESCRIPTOR")
	for _, r := range reps {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%.3f\t%.3f\t%s\n", r.Rank, r.Cluster, r.Name, r.Start, r.End, r.Descriptor)
	}
	_ = tw.Flush()
}
