package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"crowdwatch/internal/annotate"
	"crowdwatch/internal/logging"
	"crowdwatch/internal/notifications"
	"crowdwatch/internal/preflight"
	"crowdwatch/internal/server"
	"crowdwatch/internal/tracing"
)

const serveLockName = "crowdwatch-serve.lock"

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis API",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.session()
			if err != nil {
				return err
			}

			lockPath := filepath.Join(rt.cfg.Paths.LogDir, serveLockName)
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire serve lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another crowdwatch serve instance holds %s", lockPath)
			}
			defer func() { _ = lock.Unlock() }()

			if endpoint := rt.cfg.Tracing.OTLPEndpoint; endpoint != "" {
				tp, err := tracing.InitTracer(cmd.Context(), endpoint, rt.cfg.Tracing.ServiceName)
				if err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := tp.Shutdown(shutdownCtx); err != nil {
						logging.WarnWithContext(rt.logger, "tracer shutdown failed", "tracing_shutdown", logging.Error(err))
					}
				}()
			}

			if !skipPreflight {
				results := preflight.RunAll(cmd.Context(), rt.cfg, rt.client)
				if failed := preflight.Failed(results); len(failed) > 0 {
					renderPreflight(cmd.ErrOrStderr(), results, false)
					return fmt.Errorf("%d required check(s) failed; fix them or pass --skip-preflight", len(failed))
				}
			}

			adapter, err := rt.adapter("")
			if err != nil {
				return err
			}
			opts := server.Options{
				Bind:           rt.cfg.Server.Bind,
				MaxUploadBytes: rt.cfg.MaxUploadBytes(),
				TempDir:        filepath.Join(rt.cfg.Paths.CacheDir, "uploads"),
				Token:          rt.cfg.Server.Token,
				Notifier:       notifications.NewService(rt.cfg.Notifications),
				Logger:         rt.logger,
			}
			if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
				return fmt.Errorf("create upload dir: %w", err)
			}
			if bind != "" {
				opts.Bind = bind
			}
			if dir := rt.cfg.Paths.AnnotateDir; dir != "" {
				opts.Annotator = annotate.New(dir)
			}

			srv := server.New(rt.analyzer(adapter), opts)
			out := cmd.OutOrStdout()
			return srv.ListenAndServe(cmd.Context(), func(addr net.Addr) {
				fmt.Fprintf(out, "Listening on http://%s (model %s)\n", addr, adapter.Variant())
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start even when preflight checks fail")
	return cmd
}
