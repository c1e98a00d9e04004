package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/api"
	"github.com/JakeFAU/trainlog/internal/replay"
	"github.com/JakeFAU/trainlog/internal/stats"
)

type replayOptions struct {
	events string
	listen string
	window int
}

func newReplayCmd() *cobra.Command {
	opts := replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded training session through the configured backends",
		Long: `replay reads a JSON Lines event log (log, info, hyperparams, config,
metrics, loss, epoch_end, val_results and finalize records) and drives the
configured sink with it, exactly as a live training loop would. With --listen
the monitor API is served while the replay runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.events, "events", "", "JSON Lines event log (- for stdin)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "monitor API address (default server.addr)")
	cmd.Flags().IntVar(&opts.window, "window", stats.DefaultWindow, "moving average window for loss records")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

func runReplay(ctx context.Context, opts replayOptions) (err error) {
	e, err := resolveEnv(ctx)
	if err != nil {
		return err
	}
	logger := e.logger

	in := os.Stdin
	if opts.events != "-" {
		f, openErr := os.Open(opts.events)
		if openErr != nil {
			return fmt.Errorf("open events: %w", openErr)
		}
		defer f.Close() //nolint:errcheck // read-only
		in = f
	}

	a, err := newApp(ctx, e.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		err = multierr.Append(err, a.Close(context.WithoutCancel(ctx)))
	}()

	addr := opts.listen
	if addr == "" {
		addr = e.cfg.Server.Addr
	}
	serveCtx, stopServe := context.WithCancel(ctx)
	serveErr := make(chan error, 1)
	if addr != "" && a.Coordinator() {
		go func() { serveErr <- api.Serve(serveCtx, addr, a.Server().Handler(), logger) }()
	} else {
		serveErr <- nil
	}

	driver, err := replay.NewDriver(replay.Config{
		Sink:       a.Sink(),
		Board:      a.Board(),
		Split:      e.cfg.Data.Val,
		ClassNames: e.cfg.ClassNames,
		Window:     opts.window,
		Logger:     logger,
	})
	if err != nil {
		stopServe()
		<-serveErr
		return err
	}

	logger.Info("replay started",
		zap.String("events", opts.events),
		zap.String("run", a.Session().Name),
		zap.String("version", a.Session().Version),
		zap.Int("rank", a.Rank()),
	)
	runErr := driver.Run(ctx, in)
	if ctx.Err() != nil {
		logger.Warn("replay interrupted")
	}

	stopServe()
	if sErr := <-serveErr; sErr != nil && !errors.Is(sErr, context.Canceled) {
		runErr = multierr.Append(runErr, fmt.Errorf("monitor api: %w", sErr))
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("replay finished", zap.String("version", a.Session().Version))
	return nil
}
