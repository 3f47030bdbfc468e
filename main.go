package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/ttacon/chalk"
	"google.golang.org/grpc"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/bots"
	"robotarena/server/internal/config"
	"robotarena/server/internal/events"
	grpcstream "robotarena/server/internal/grpc"
	httpapi "robotarena/server/internal/http"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/match"
	"robotarena/server/internal/networking"
	"robotarena/server/internal/render"
	"robotarena/server/internal/replay"
	"robotarena/server/internal/simulation"
)

const (
	telemetryRetention  = 4096
	spectatorBandwidth  = 256 * 1024
	spectatorBurst      = 512 * 1024
	flushWindow         = time.Minute
	flushLimit          = 6
	replaySweepInterval = time.Hour
	shutdownGracePeriod = 5 * time.Second
	readHeaderTimeout   = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprint(os.Stderr, chalk.Red)
		fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		fmt.Fprint(os.Stderr, chalk.Reset)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Logging.Quiet = cfg.Terminal
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	setup := config.DefaultBattle()
	if cfg.BattleFile != "" {
		if setup, err = config.LoadBattleFile(cfg.BattleFile); err != nil {
			return err
		}
	}

	var screen tcell.Screen
	if cfg.Terminal {
		if screen, err = tcell.NewScreen(); err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("init terminal: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(cfg, setup, logger, os.Stdout, screen)
	if err != nil {
		if screen != nil {
			screen.Fini()
		}
		return err
	}
	return app.run(ctx)
}

// application wires one battle to its spectators, recorders and operational surfaces.
type application struct {
	cfg    *config.Config
	logger *logging.Logger
	out    io.Writer

	id        string
	server    *battleServer
	loop      *simulation.Loop
	ticks     *simulation.TickMonitor
	stream    *events.Stream
	publisher *networking.SnapshotPublisher
	bandwidth *networking.BandwidthRegulator
	hub       *spectatorHub
	frames    *frameBridge
	recorder  *replay.Recorder
	cleaner   *replay.Cleaner
	progress  *roundProgress
	screen    tcell.Screen
	view      *render.View
	handlers  *httpapi.HandlerSet
}

func newApplication(cfg *config.Config, setup config.Battle, logger *logging.Logger, out io.Writer, screen tcell.Screen) (*application, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	session, err := match.NewSession()
	if err != nil {
		return nil, err
	}
	app := &application{
		cfg:    cfg,
		out:    out,
		id:     session.ID(),
		ticks:  simulation.NewTickMonitor(),
		stream: events.NewStream(events.Config{Retain: telemetryRetention}),
		frames: newFrameBridge(logger),
		screen: screen,
	}
	app.logger = logger.With(logging.String("battle_id", app.id))

	//1.- Every spectator shares one bandwidth budget per connection.
	app.bandwidth = networking.NewBandwidthRegulator(spectatorBandwidth, spectatorBurst, nil)
	app.publisher = networking.NewSnapshotPublisher(app.bandwidth, networking.NewSnapshotMetrics())
	authenticator, err := newSpectatorAuthenticator(cfg.WSAuthSecret, app.id)
	if err != nil {
		return nil, fmt.Errorf("spectator auth: %w", err)
	}
	app.hub = newSpectatorHub(app.publisher,
		withAuthenticator(authenticator),
		withPingInterval(cfg.PingInterval),
		withMaxClients(cfg.MaxClients),
		withAllowedOrigins(cfg.AllowedOrigins),
		withHubLogger(app.logger),
	)

	//2.- Recording is optional; the bundle being written is never swept.
	if cfg.ReplayDir != "" {
		writer, _, err := replay.NewWriter(cfg.ReplayDir, app.id, nil)
		if err != nil {
			return nil, fmt.Errorf("replay writer: %w", err)
		}
		app.recorder = replay.NewRecorder(writer, app.logger, nil)
		app.cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{MaxBundles: cfg.ReplayMaxBundles, MaxAge: cfg.ReplayMaxAge}, app.logger)
		app.cleaner.Protect(writer.Directory())
	}

	//3.- Random seeds are fixed up front so the replay header can reproduce the battle.
	if setup.Seed == 0 {
		setup.Seed = time.Now().UnixNano()
	}
	roster, err := assembleRoster(setup, session, bots.Default(), app.logger)
	if err != nil {
		return nil, err
	}
	robots := make([]*arena.Robot, 0, len(roster))
	for _, c := range roster {
		robots = append(robots, c.robot)
	}

	opts := []match.BattleOption{
		match.WithRounds(setup.Rounds),
		match.WithSeed(setup.Seed),
		match.WithBattleID(app.id),
		match.WithLogger(logger),
		match.WithStream(app.stream),
		match.WithObserver(app.hub),
		match.WithObserver(app.frames),
	}
	if app.recorder != nil {
		opts = append(opts, match.WithObserver(app.recorder))
	}
	if screen != nil {
		app.view = render.NewView(screen, render.WithLogger(app.logger))
		opts = append(opts, match.WithObserver(app.view))
	} else if out != nil {
		app.progress = newRoundProgress(out, setup.Rounds)
		opts = append(opts, match.WithObserver(app.progress))
	}
	world := arena.NewWorld(setup.Width, setup.Height, arena.WithLogger(app.logger))
	battle, err := match.NewBattle(world, robots, opts...)
	if err != nil {
		return nil, err
	}
	app.server = newBattleServer(app.id, setup, battle, roster, app.recorder, app.logger)
	app.loop = simulation.NewLoop(cfg.TurnRate, app.server.turn, simulation.WithMonitor(app.ticks))
	app.handlers = app.newHandlers()
	return app, nil
}

func (a *application) newHandlers() *httpapi.HandlerSet {
	opts := httpapi.Options{
		Logger:      a.logger,
		Battle:      a.server,
		Spectators:  a.hub,
		Telemetry:   a.stream,
		Ticks:       a.ticks,
		Snapshots:   a.publisher.Metrics(),
		Bandwidth:   a.bandwidth,
		Spectate:    a.hub,
		AdminToken:  a.cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(flushWindow, flushLimit, nil),
	}
	if a.recorder != nil {
		opts.Replay = a.server
		opts.ReplayStats = a.recorder.Snapshot
		opts.StorageStats = a.cleaner.Stats
	}
	return httpapi.NewHandlerSet(opts)
}

// run fights the battle, serving spectators until it ends or ctx is cancelled.
func (a *application) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	httpServer := a.serveHTTP(&wg)
	grpcServer := a.serveGRPC(&wg)
	if a.cleaner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.cleaner.Run(ctx, replaySweepInterval)
		}()
	}
	if a.view != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.view.Run(ctx, cancel)
		}()
	}

	a.logger.Info("battle starting", logging.Int("rounds", a.server.battle.Rounds()),
		logging.Int("robots", len(a.server.roster)), logging.Bool("headless", a.loop.Headless()))
	a.loop.Start(ctx)
	select {
	case <-a.loop.Done():
	case <-ctx.Done():
		a.loop.Stop()
	}

	//1.- Close the bundle and the live feeds before reporting the standings.
	err := a.server.finish()
	if err != nil {
		a.logger.Error("replay bundle not closed", logging.Error(err))
	}
	a.frames.Close()
	a.progress.Finish()

	//2.- Listeners and the terminal keep showing the final results until interrupted.
	if ctx.Err() == nil && (httpServer != nil || grpcServer != nil || a.view != nil) {
		a.logger.Info("battle over, serving results until interrupted")
		<-ctx.Done()
	}
	cancel()
	a.hub.Close()
	a.shutdown(httpServer, grpcServer)
	wg.Wait()
	if a.screen != nil {
		a.screen.Fini()
	}
	if a.out != nil {
		printResults(a.out, a.id, a.server.Results())
	}
	return err
}

func (a *application) serveHTTP(wg *sync.WaitGroup) *http.Server {
	if a.cfg.Address == "" {
		return nil
	}
	server := &http.Server{
		Addr:              a.cfg.Address,
		Handler:           a.handlers.NewRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("http listening", logging.String("url", listenerURL(a.cfg.Address, false)),
			logging.String("spectate", spectatorURL(a.cfg.Address, false)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.server.setStartupError(fmt.Errorf("http listener: %w", err))
			a.logger.Error("http server stopped", logging.Error(err))
		}
	}()
	return server
}

// spectatorService serves turn frames, acknowledged telemetry and results over gRPC.
func (a *application) spectatorService() *grpcstream.Service {
	return grpcstream.NewService(a.frames,
		grpcstream.WithResults(a.server),
		grpcstream.WithTelemetry(a.stream),
		grpcstream.WithLogger(a.logger),
	)
}

func (a *application) serveGRPC(wg *sync.WaitGroup) *grpc.Server {
	if a.cfg.GRPCAddress == "" {
		return nil
	}
	opts, cleanup, err := configureGRPCSecurity(a.cfg, a.logger)
	if err != nil {
		a.server.setStartupError(fmt.Errorf("grpc security: %w", err))
		a.logger.Error("grpc disabled", logging.Error(err))
		return nil
	}
	listener, err := net.Listen("tcp", a.cfg.GRPCAddress)
	if err != nil {
		cleanup()
		a.server.setStartupError(fmt.Errorf("grpc listener: %w", err))
		a.logger.Error("grpc disabled", logging.Error(err))
		return nil
	}
	server := grpc.NewServer(opts...)
	grpcstream.RegisterSpectatorServer(server, a.spectatorService())
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cleanup()
		a.logger.Info("grpc listening", logging.String("address", normaliseHostPort(a.cfg.GRPCAddress)))
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			a.logger.Error("grpc server stopped", logging.Error(err))
		}
	}()
	return server
}

func (a *application) shutdown(httpServer *http.Server, grpcServer *grpc.Server) {
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		if err := httpServer.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown", logging.Error(err))
		}
		cancel()
	}
	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownGracePeriod):
			grpcServer.Stop()
		}
	}
}
