package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"crowdwatch/internal/analysis"
	"crowdwatch/internal/media/player"
)

type probeOutput struct {
	Path string `json:"path"`
	MIME string `json:"mime"`
	player.Metadata
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Show container and video stream details for a clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(args[0])
			mime, err := analysis.SniffFile(path)
			if err != nil {
				return err
			}
			meta, err := player.Probe(cmd.Context(), cfg.FFprobeBinary(), path)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, probeOutput{Path: path, MIME: mime, Metadata: meta})
			}
			rows := [][]string{
				{"Type", mime},
				{"Format", emptyDash(meta.Format)},
				{"Codec", emptyDash(meta.Codec)},
				{"Resolution", fmt.Sprintf("%dx%d", meta.Width, meta.Height)},
				{"Duration", fmt.Sprintf("%.2fs", meta.Duration)},
				{"Frame rate", fmt.Sprintf("%.3g fps", meta.FrameRate)},
				{"Size", humanize.IBytes(uint64(max(meta.SizeBytes, 0)))},
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Property", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit metadata as JSON")
	return cmd
}

func emptyDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
