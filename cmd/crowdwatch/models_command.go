package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crowdwatch/internal/detector"
	"crowdwatch/internal/detector/remote"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and prefetch detector models",
	}
	modelsCmd.AddCommand(newModelsListCommand(ctx))
	modelsCmd.AddCommand(newModelsPullCommand(ctx))
	return modelsCmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List supported variants and cached manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cached, err := remote.ListCached(cfg.ModelCacheDir())
			if err != nil {
				return err
			}
			byVariant := make(map[string]remote.CachedManifest, len(cached))
			for _, m := range cached {
				byVariant[m.Variant] = m
			}

			configured, _ := detector.NormalizeVariant(cfg.Detector.Variant)
			rows := make([][]string, 0, len(detector.Variants()))
			for _, variant := range detector.Variants() {
				name := variant
				if variant == configured {
					name += " *"
				}
				m, ok := byVariant[variant]
				if !ok {
					rows = append(rows, []string{name, "-", "-", "-", "not cached"})
					continue
				}
				rows = append(rows, []string{
					name,
					emptyDash(m.Architecture),
					fmt.Sprintf("%dx%d", m.Width, m.Height),
					strconv.Itoa(len(m.Classes)),
					m.Path,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Variant", "Architecture", "Input", "Classes", "Manifest"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintln(out, "* configured variant")
			return nil
		},
	}
}

func newModelsPullCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [variant]",
		Short: "Load a model from the detector service and cache its manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.session()
			if err != nil {
				return err
			}
			var variant string
			if len(args) == 1 {
				variant = strings.TrimSpace(args[0])
			}
			adapter, err := rt.adapter(variant)
			if err != nil {
				return err
			}

			loadCtx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.LoadTimeout())
			defer cancel()
			if _, err := adapter.Load(loadCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s ready from %s\n", adapter.Variant(), rt.client.Endpoint())
			return nil
		},
	}
}
