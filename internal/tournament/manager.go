package tournament

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alex65536/tourney/internal/util/idgen"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/alex65536/tourney/internal/util/timeutil"
)

type Options struct {
	ClosingLead time.Duration `toml:"closing-lead"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.ClosingLead == 0 {
		o.ClosingLead = 5 * time.Minute
	}
}

// Timers keeps the closing and start timers of published tournaments.
type Timers interface {
	ArmTournament(ctx context.Context, tournamentID string, closesAt, startsAt timeutil.UTCTime) error
	DisarmTournament(ctx context.Context, tournamentID string) error
}

type Announcer interface {
	TournamentPublished(ctx context.Context, full FullData) (string, error)
	TournamentCancelled(ctx context.Context, full FullData)
}

type Manager struct {
	log    *slog.Logger
	db     DB
	timers Timers
	ann    Announcer
	o      Options
}

func NewManager(log *slog.Logger, db DB, timers Timers, ann Announcer, o Options) *Manager {
	o = o.Clone()
	o.FillDefaults()
	return &Manager{
		log:    log,
		db:     db,
		timers: timers,
		ann:    ann,
		o:      o,
	}
}

func (m *Manager) Options() Options {
	return m.o
}

func (m *Manager) Create(ctx context.Context, settings Settings) (Info, error) {
	return m.create(ctx, settings, 0)
}

func (m *Manager) create(ctx context.Context, settings Settings, seq int) (Info, error) {
	settings.FillDefaults()
	if err := settings.Validate(); err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	info := Info{
		ID:        idgen.ID(),
		Settings:  settings,
		Seq:       seq,
		CreatedAt: timeutil.NowUTC(),
	}
	data := Data{
		Status:  NewStatusDraft(),
		Teams:   []Team{},
		Waiting: []Team{},
	}
	if err := m.db.CreateTournament(ctx, info, data); err != nil {
		m.log.Warn("could not create tournament in db", slogx.Err(err))
		return Info{}, fmt.Errorf("create tournament in db: %w", err)
	}
	m.log.Info("created tournament",
		slog.String("tournament_id", info.ID),
		slog.String("name", info.Name),
	)
	return info, nil
}

// Publish opens registration and arms the closing and start timers.
func (m *Manager) Publish(ctx context.Context, tournamentID string) (FullData, error) {
	full, err := m.db.MutateTournament(ctx, tournamentID, func(info Info, data *Data) error {
		if data.Status.Kind != StatusDraft {
			return fmt.Errorf("publish %v tournament: %w", data.Status.Kind, ErrNotWaiting)
		}
		data.Status = NewStatusWaiting()
		return nil
	})
	if err != nil {
		return FullData{}, err
	}
	log := m.log.With(slog.String("tournament_id", tournamentID))
	if err := m.timers.ArmTournament(ctx, tournamentID, full.Info.ClosesAt(m.o.ClosingLead), full.Info.StartsAt); err != nil {
		log.Error("could not arm tournament timers", slogx.Err(err))
		return FullData{}, fmt.Errorf("arm timers: %w", err)
	}
	log.Info("published tournament", slog.String("starts_at", full.Info.StartsAt.String()))

	msgID, err := m.ann.TournamentPublished(ctx, full)
	if err != nil {
		log.Warn("could not announce tournament", slogx.Err(err))
		return full, nil
	}
	full, err = m.db.MutateTournament(ctx, tournamentID, func(info Info, data *Data) error {
		data.AnnouncementID = msgID
		return nil
	})
	if err != nil {
		log.Warn("could not save announcement id", slogx.Err(err))
		return FullData{}, fmt.Errorf("save announcement: %w", err)
	}
	return full, nil
}

// CreateWeekly creates and publishes the next weekly tournament of the region.
func (m *Manager) CreateWeekly(ctx context.Context, region Region, startsAt timeutil.UTCTime) (FullData, error) {
	seq, err := m.db.NextRegionSeq(ctx, region)
	if err != nil {
		return FullData{}, fmt.Errorf("next region seq: %w", err)
	}
	info, err := m.create(ctx, Settings{
		Name:     WeeklyName(region, seq),
		Region:   region,
		StartsAt: startsAt,
	}, seq)
	if err != nil {
		return FullData{}, err
	}
	return m.Publish(ctx, info.ID)
}

func (m *Manager) Cancel(ctx context.Context, tournamentID string, reason string) (FullData, error) {
	full, err := m.db.MutateTournament(ctx, tournamentID, func(info Info, data *Data) error {
		if data.Status.Kind.IsFinished() {
			return fmt.Errorf("cancel %v tournament: %w", data.Status.Kind, ErrFinished)
		}
		data.Status = NewStatusCancelled(reason)
		return nil
	})
	if err != nil {
		return FullData{}, err
	}
	log := m.log.With(slog.String("tournament_id", tournamentID))
	if err := m.timers.DisarmTournament(ctx, tournamentID); err != nil {
		log.Warn("could not disarm tournament timers", slogx.Err(err))
	}
	log.Info("cancelled tournament", slog.String("reason", reason))
	m.ann.TournamentCancelled(ctx, full)
	return full, nil
}

func (m *Manager) Get(ctx context.Context, tournamentID string) (FullData, error) {
	info, data, err := m.db.GetTournament(ctx, tournamentID)
	if err != nil {
		return FullData{}, err
	}
	return FullData{Info: info, Data: data}, nil
}

func (m *Manager) List(ctx context.Context, o ListOptions) ([]FullData, error) {
	res, err := m.db.ListTournaments(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	return res, nil
}
