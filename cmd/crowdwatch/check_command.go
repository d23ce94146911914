package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"crowdwatch/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify binaries, directories, and the detector service",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.session()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), rt.cfg, rt.client)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			renderPreflight(out, results, colorize)

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			return nil
		},
	}
}

func renderPreflight(out io.Writer, results []preflight.Result, colorize bool) {
	for _, res := range results {
		kind := statusOK
		switch {
		case res.Passed:
		case res.Optional:
			kind = statusWarn
		default:
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(res.Name, kind, res.Detail, colorize))
	}
}
