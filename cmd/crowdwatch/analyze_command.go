package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crowdwatch/internal/analysis"
	"crowdwatch/internal/annotate"
	"crowdwatch/internal/logging"
	"crowdwatch/internal/notifications"
	"crowdwatch/internal/source"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var samples int
	var variant string
	var jsonOutput bool
	var annotateDir string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "analyze <file|s3://bucket/key>",
		Short: "Estimate crowd density for a video clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.session()
			if err != nil {
				return err
			}
			adapter, err := rt.adapter(variant)
			if err != nil {
				return err
			}

			resolver := source.Resolver{TempDir: rt.cfg.Paths.CacheDir}
			store, err := source.NewMinioStore(rt.cfg.Storage)
			if err != nil {
				return err
			}
			if store != nil {
				resolver.Store = store
			}
			input, err := resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer input.Close()

			req := analysis.Request{
				Path:        input.Path,
				Label:       input.Label,
				SampleCount: samples,
			}
			if !quiet {
				stderr := cmd.ErrOrStderr()
				req.Progress = func(status string) { fmt.Fprintln(stderr, status) }
			}
			dir := strings.TrimSpace(annotateDir)
			if dir == "" {
				dir = rt.cfg.Paths.AnnotateDir
			}
			if dir != "" {
				req.Annotator = annotate.New(dir)
			}

			report, err := rt.analyzer(adapter).Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			notifyCrowd(cmd.Context(), rt, report)

			if jsonOutput {
				return writeJSON(cmd, report)
			}
			renderReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	cmd.Flags().IntVarP(&samples, "samples", "n", 0, "Frames to sample (default from config)")
	cmd.Flags().StringVar(&variant, "variant", "", "Detector model variant (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the report as JSON")
	cmd.Flags().StringVar(&annotateDir, "annotate-dir", "", "Write annotated PNGs of each sampled frame to this directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress messages")
	return cmd
}

func notifyCrowd(ctx context.Context, rt *session, report *analysis.Report) {
	notifier := notifications.NewService(rt.cfg.Notifications)
	sent, err := notifier.NotifyCrowd(ctx, notifications.Crowd{
		RunID:          report.RunID,
		Source:         report.Source,
		PeopleEstimate: report.Result.PeopleEstimate,
		Peak:           report.Result.Peak,
		Density:        report.Result.Density,
	})
	if err != nil {
		logging.WarnWithContext(rt.logger, "crowd notification failed", "notify_failed",
			logging.String("run_id", report.RunID),
			logging.Error(err),
		)
		return
	}
	if sent {
		rt.logger.Info("crowd notification sent", logging.Args(
			logging.String("run_id", report.RunID),
			logging.String("density", string(report.Result.Density)),
		)...)
	}
}

func renderReport(out io.Writer, report *analysis.Report, colorize bool) {
	for _, line := range renderSectionHeader("Crowd estimate", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Source:   %s (%s, %.1fs, %dx%d)\n", report.Source, report.MIME, report.Duration, report.Width, report.Height)
	fmt.Fprintf(out, "Run:      %s\n", report.RunID)
	fmt.Fprintf(out, "Model:    %s\n", report.Variant)
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(report.Counts))
	for _, s := range report.Samples() {
		rows = append(rows, []string{
			strconv.Itoa(s.Index + 1),
			fmt.Sprintf("%.2fs", s.Timestamp),
			strconv.Itoa(s.Count),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Frame", "Time", "People"}, rows, []columnAlignment{alignRight, alignRight, alignRight}))
	fmt.Fprintln(out)

	result := report.Result
	fmt.Fprintln(out, renderStatusLine("People estimate", statusInfo, strconv.Itoa(result.PeopleEstimate), colorize))
	fmt.Fprintln(out, renderStatusLine("Density", densityKind(result.Density), string(result.Density), colorize))
	fmt.Fprintln(out, renderStatusLine("Peak / mean", statusInfo, fmt.Sprintf("%d / %d", result.Peak, result.Mean), colorize))
	fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, report.Elapsed.Round(time.Millisecond).String(), colorize))
	if len(report.Annotations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Annotated frames:")
		for _, path := range report.Annotations {
			fmt.Fprintf(out, "  %s\n", path)
		}
	}
}
