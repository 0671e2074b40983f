package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/plent/internal/audit"
	"github.com/roach88/plent/internal/discord"
	"github.com/roach88/plent/internal/metrics"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/router"
	"github.com/roach88/plent/internal/server"
	"github.com/roach88/plent/internal/tracker"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	HTTPAddr string
	NoHTTP   bool

	// IDs overrides the correlation id generator (for testing). If nil,
	// defaults to UUIDv7Generator.
	IDs router.IDGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Connect to the chat gateway and keep the configured repositories in
step with the configured channels until interrupted.

Working trees missing under repos_dir are cloned from their remote; existing
ones are pulled. The read-only HTTP surface (files, blame, search, metrics)
listens on --http or the http_addr config key.

Example:
  plent serve --config ./plent.yaml
  plent serve -c ./plent.cue --http :8080 --log-format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.HTTPAddr, "http", "", "HTTP listen address (overrides http_addr)")
	cmd.Flags().BoolVar(&opts.NoHTTP, "no-http", false, "disable the HTTP surface")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	a, err := openApp(ctx, opts.RootOptions, appOptions{
		prepare: true,
		repo:    []repo.Option{repo.WithPushFailureHook(m.PushFailed)},
	})
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	token, err := cfg.Token()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read token", err)
	}
	notifier, err := buildNotifier(a, m)
	if err != nil {
		return err
	}

	client := discord.NewClient(token)
	trk := tracker.New(tracker.SystemClock)
	rt := router.New(router.Config{
		BotName:         cfg.BotName,
		SuperAdmin:      platform.UserID(cfg.SuperAdmin),
		AcceptEmoji:     platform.Emoji(cfg.AcceptEmoji),
		DenyReaction:    platform.Emoji(cfg.DenyReaction),
		OperatorGuild:   platform.GuildID(cfg.OperatorGuild),
		OperatorChannel: platform.ChannelID(cfg.OperatorChannel),
		Workers:         cfg.Workers,
	}, router.Deps{
		Client:   client,
		Registry: a.reg,
		Repos:    a.repos,
		Codec:    a.codec,
		Tracker:  trk,
		Audit:    notifier,
		Store:    a.store,
		Metrics:  m,
		IDs:      opts.IDs,
	})
	gw := discord.NewGateway(token, client, rt.Enqueue)

	index := a.index()
	if err := index.Watch(ctx); err != nil {
		slog.Warn("search cache disabled, searches will scan disk", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		trk.Run(gctx, tracker.SweepInterval)
		return nil
	})
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return gw.Run(gctx) })

	addr := cfg.HTTPAddr
	if opts.HTTPAddr != "" {
		addr = opts.HTTPAddr
	}
	if addr != "" && !opts.NoHTTP {
		srv := server.New(a.repos, index, promReg)
		g.Go(func() error { return srv.Run(gctx, addr) })
	}

	slog.Info("plent starting", "repos", len(a.repos), "workers", cfg.Workers, "http", addr)
	fmt.Fprintln(cmd.OutOrStdout(), "plent started. Press Ctrl-C to stop.")

	err = g.Wait()
	rt.Stop()
	rt.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "bot stopped", err)
	}
	slog.Info("plent stopped gracefully")
	return nil
}

// buildNotifier posts audits to the configured webhook, or to the log
// when none is set.
func buildNotifier(a *app, m *metrics.Metrics) (*audit.Notifier, error) {
	url, err := a.cfg.WebhookURL()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read webhook", err)
	}
	var sink audit.Sink = audit.LogSink{}
	if url != "" {
		sink = audit.NewWebhookSink(url, a.cfg.Audit.PerMinute, nil)
	} else {
		slog.Info("no audit webhook configured, audits go to the log")
	}
	return audit.New(sink, a.cfg.Audit.Username, platform.Emoji(a.cfg.DenyReaction), audit.WithFailureHook(m.AuditFailed)), nil
}
