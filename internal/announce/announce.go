package announce

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/alex65536/tourney/internal/advance"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/registration"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/slogx"
)

var (
	_ tournament.Announcer   = (*Announcer)(nil)
	_ registration.Announcer = (*Announcer)(nil)
	_ scheduler.Announcer    = (*Announcer)(nil)
	_ advance.Announcer      = (*Announcer)(nil)
	_ match.Alerts           = (*Announcer)(nil)
)

type Options struct {
	// Channels maps regions to their announcement channels. Regions missing here use
	// "<region>-announcements".
	Channels     map[string]string `toml:"channels"`
	AdminChannel string            `toml:"admin-channel"`
}

func (o Options) Clone() Options {
	o.Channels = maps.Clone(o.Channels)
	return o
}

func (o *Options) FillDefaults() {
	if o.AdminChannel == "" {
		o.AdminChannel = "tourney-admin"
	}
}

// Announcer posts tournament news into the region announcement channels and alerts admins about
// the matches that need a human decision. Failures to post are logged and otherwise ignored.
type Announcer struct {
	log     *slog.Logger
	surface messaging.Surface
	o       Options
}

func New(log *slog.Logger, surface messaging.Surface, o Options) *Announcer {
	o = o.Clone()
	o.FillDefaults()
	return &Announcer{
		log:     log,
		surface: surface,
		o:       o,
	}
}

func (a *Announcer) Channel(region tournament.Region) string {
	if ch, ok := a.o.Channels[string(region)]; ok && ch != "" {
		return ch
	}
	return strings.ToLower(string(region)) + "-announcements"
}

func (a *Announcer) send(ctx context.Context, channelID string, msg messaging.Message, attrs ...any) {
	if _, err := a.surface.Send(ctx, channelID, msg); err != nil {
		a.log.Warn("could not send announcement",
			append([]any{slog.String("channel_id", channelID), slog.String("title", msg.Title), slogx.Err(err)}, attrs...)...,
		)
	}
}

// refresh rewrites the pinned tournament announcement to reflect the current state.
func (a *Announcer) refresh(ctx context.Context, full tournament.FullData) {
	if full.Data.AnnouncementID == "" {
		return
	}
	ch := a.Channel(full.Info.Region)
	if err := a.surface.Edit(ctx, ch, full.Data.AnnouncementID, tournamentMessage(full)); err != nil {
		a.log.Warn("could not update tournament announcement",
			slog.String("tournament_id", full.Info.ID),
			slogx.Err(err),
		)
	}
}

func (a *Announcer) TournamentPublished(ctx context.Context, full tournament.FullData) (string, error) {
	msgID, err := a.surface.Send(ctx, a.Channel(full.Info.Region), tournamentMessage(full))
	if err != nil {
		return "", fmt.Errorf("send announcement: %w", err)
	}
	return msgID, nil
}

func (a *Announcer) RosterUpdated(ctx context.Context, full tournament.FullData) {
	a.refresh(ctx, full)
}

func (a *Announcer) TournamentCancelled(ctx context.Context, full tournament.FullData) {
	a.refresh(ctx, full)
	a.send(ctx, a.Channel(full.Info.Region), cancelledMessage(full), slog.String("tournament_id", full.Info.ID))
}

func (a *Announcer) CheckInOpened(ctx context.Context, full tournament.FullData) {
	a.refresh(ctx, full)
	a.send(ctx, a.Channel(full.Info.Region), checkInMessage(full), slog.String("tournament_id", full.Info.ID))
}

func (a *Announcer) TeamsRemoved(ctx context.Context, full tournament.FullData, removed []tournament.Team) {
	a.send(ctx, a.Channel(full.Info.Region), removedMessage(full, removed), slog.String("tournament_id", full.Info.ID))
}

func (a *Announcer) TournamentStarted(ctx context.Context, full tournament.FullData) {
	a.refresh(ctx, full)
	a.send(ctx, a.Channel(full.Info.Region), startedMessage(full), slog.String("tournament_id", full.Info.ID))
}

func (a *Announcer) ChampionDecided(ctx context.Context, full tournament.FullData, champion tournament.Team) {
	a.refresh(ctx, full)
	a.send(ctx, a.Channel(full.Info.Region), championMessage(full, champion), slog.String("tournament_id", full.Info.ID))
}
