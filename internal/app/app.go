package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alex65536/tourney/internal/adminapi"
	"github.com/alex65536/tourney/internal/advance"
	"github.com/alex65536/tourney/internal/announce"
	"github.com/alex65536/tourney/internal/apitoken"
	"github.com/alex65536/tourney/internal/artifact"
	"github.com/alex65536/tourney/internal/gateway"
	"github.com/alex65536/tourney/internal/interpreter"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/registration"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/slogx"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Tournament  tournament.Options  `toml:"tournament"`
	Match       match.Options       `toml:"match"`
	Queue       queue.Options       `toml:"queue"`
	Scheduler   scheduler.Options   `toml:"scheduler"`
	Announce    announce.Options    `toml:"announce"`
	Artifact    artifact.Options    `toml:"artifact"`
	Interpreter interpreter.Options `toml:"interpreter"`
	Tokens      apitoken.Options    `toml:"tokens"`
	Gateway     gateway.Options     `toml:"gateway"`
	API         adminapi.Options    `toml:"api"`
}

func (o Options) Clone() Options {
	o.Match = o.Match.Clone()
	o.Scheduler = o.Scheduler.Clone()
	o.Announce = o.Announce.Clone()
	o.Artifact = o.Artifact.Clone()
	o.API = o.API.Clone()
	return o
}

func (o *Options) FillDefaults() {
	o.Tournament.FillDefaults()
	o.Match.FillDefaults()
	o.Queue.FillDefaults()
	o.Scheduler.FillDefaults()
	o.Announce.FillDefaults()
	o.Artifact.FillDefaults()
	o.Interpreter.FillDefaults()
	o.Tokens.FillDefaults()
	o.Gateway.FillDefaults()
	o.API.FillDefaults()
}

type DB interface {
	tournament.DB
	advance.DB
	match.DB
	queue.DB
	scheduler.DB
	apitoken.DB
}

// App owns every long-lived component and wires them together.
type App struct {
	log *slog.Logger
	o   Options

	Tokens      *apitoken.Manager
	Gateway     *gateway.Gateway
	Announcer   *announce.Announcer
	Tournaments *tournament.Manager
	Ledger      *registration.Ledger
	Queue       *queue.Queue
	Scheduler   *scheduler.Scheduler
	Lifecycle   *scheduler.Lifecycle
	Matches     *match.Runner
	Engine      *advance.Engine
	Artifacts   *artifact.Mirror
}

func New(ctx context.Context, log *slog.Logger, db DB, o Options) (*App, error) {
	o = o.Clone()
	o.FillDefaults()
	a := &App{log: log, o: o}

	a.Tokens = apitoken.NewManager(log.With(slog.String("component", "tokens")), db, o.Tokens)
	a.Gateway = gateway.New(log.With(slog.String("component", "gateway")), a, o.Gateway)
	a.Announcer = announce.New(log.With(slog.String("component", "announce")), a.Gateway, o.Announce)

	store, err := artifact.NewStore(ctx, o.Artifact)
	if err != nil {
		a.closeEarly()
		return nil, fmt.Errorf("create artifact store: %w", err)
	}
	a.Artifacts = artifact.NewMirror(log.With(slog.String("component", "artifact")), store, o.Artifact)

	var interp interpreter.Interpreter = interpreter.Manual{}
	if o.Interpreter.Endpoint != "" {
		client, err := interpreter.NewClient(log.With(slog.String("component", "interpreter")), o.Interpreter)
		if err != nil {
			a.closeEarly()
			return nil, fmt.Errorf("create interpreter client: %w", err)
		}
		interp = client
	} else {
		log.Warn("no interpreter endpoint, every submitted result goes to admins")
	}

	a.Scheduler, err = scheduler.New(ctx, log.With(slog.String("component", "scheduler")), db, o.Scheduler)
	if err != nil {
		a.closeEarly()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	a.Queue, err = queue.New(ctx, log.With(slog.String("component", "queue")), db, o.Queue)
	if err != nil {
		a.closeEarly()
		return nil, fmt.Errorf("create queue: %w", err)
	}

	a.Tournaments = tournament.NewManager(log.With(slog.String("component", "tournament")), db, a.Scheduler, a.Announcer, o.Tournament)
	a.Ledger = registration.NewLedger(log.With(slog.String("component", "registration")), db, a.Announcer)

	a.Matches, err = match.New(ctx, log.With(slog.String("component", "match")), match.Deps{
		DB:          db,
		Surface:     a.Gateway,
		Interpreter: interp,
		Artifacts:   a.Artifacts,
		Tasks:       a.Queue,
		Timers:      a.Scheduler,
		Alerts:      a.Announcer,
	}, o.Match)
	if err != nil {
		a.closeEarly()
		return nil, fmt.Errorf("create match runner: %w", err)
	}

	a.Engine = advance.New(log.With(slog.String("component", "advance")), db, a.Matches, a.Queue, a.Announcer, nil)
	a.Engine.Register(a.Queue)

	a.Lifecycle = scheduler.NewLifecycle(log.With(slog.String("component", "lifecycle")), a.Scheduler, scheduler.LifecycleDeps{
		DB:          db,
		Tournaments: a.Tournaments,
		Ledger:      a.Ledger,
		Starter:     a.Engine,
		Surface:     a.Gateway,
		Announcer:   a.Announcer,
	})
	return a, nil
}

func (a *App) closeEarly() {
	a.Gateway.Close()
	a.Tokens.Close()
}

// Run processes tasks and timers until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Lifecycle.EnsureWeekly(ctx); err != nil {
		return fmt.Errorf("ensure weekly timers: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Queue.Run(gctx) })
	g.Go(func() error { return a.Scheduler.Run(gctx) })
	err := g.Wait()
	a.log.Info("app stopped")
	return err
}

func (a *App) Close() {
	a.Matches.Close()
	a.Gateway.Close()
	a.Tokens.Close()
}

func (a *App) Handler() http.Handler {
	cfg := adminapi.Config{
		Backend: a,
		Tokens:  a.Tokens,
		Gateway: a.Gateway,
	}
	if a.o.Artifact.Backend == artifact.BackendLocal {
		cfg.ArtifactDir = a.o.Artifact.Dir
	}
	return adminapi.Handler(a.log.With(slog.String("component", "api")), cfg, a.o.API)
}

func (a *App) logErr(msg string, err error, attrs ...any) {
	a.log.Warn(msg, append(attrs, slogx.Err(err))...)
}
