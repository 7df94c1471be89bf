package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alex65536/tourney/internal/interpreter"
	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/review"
	"github.com/alex65536/tourney/internal/stat"
	"github.com/alex65536/tourney/internal/util/backoff"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/alex65536/tourney/internal/veto"
)

const (
	choiceAccept = "accept"
	choiceDeny   = "deny"
)

type session struct {
	r      *Runner
	log    *slog.Logger
	info   Info
	data   Data
	events <-chan messaging.Interaction
}

func newSession(r *Runner, full FullData) *session {
	return &session{
		r:    r,
		log:  r.log.With(slog.String("match_id", full.Info.ID)),
		info: full.Info.Clone(),
		data: full.Data.Clone(),
	}
}

func (s *session) full() FullData {
	return FullData{Info: s.info.Clone(), Data: s.data.Clone()}
}

func (s *session) run(ctx context.Context) {
	events, unsub := s.r.deps.Surface.Subscribe(s.data.ChannelID)
	defer unsub()
	s.events = events

	for s.data.Phase.IsLive() {
		var err error
		switch s.data.Phase {
		case PhaseVeto:
			err = s.veto(ctx)
		case PhaseMapLocked:
			err = s.awaitResult(ctx)
		case PhaseResultSubmitted:
			err = s.openReview(ctx)
		case PhaseResultReviewing:
			err = s.review(ctx)
		default:
			panic("must not happen")
		}
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("match session interrupted", slog.String("phase", s.data.Phase.String()))
				return
			}
			s.log.Error("match session failed",
				slog.String("phase", s.data.Phase.String()),
				slogx.Err(err),
			)
			return
		}
	}
	s.log.Info("match session finished", slog.String("phase", s.data.Phase.String()))
}

// save persists the session data. It uses its own context so that the state reached before
// shutdown is not lost.
func (s *session) save(update func(d *Data)) error {
	data := s.data.Clone()
	update(&data)
	ctx, cancel := s.r.saveCtx()
	defer cancel()
	newData, err := s.r.deps.DB.UpdateMatch(ctx, s.info.ID, data)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	s.data = newData
	return nil
}

func (s *session) send(ctx context.Context, msg messaging.Message) (string, error) {
	id, err := s.r.deps.Surface.Send(ctx, s.data.ChannelID, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return id, nil
}

func (s *session) edit(ctx context.Context, msgID string, msg messaging.Message) {
	if err := s.r.deps.Surface.Edit(ctx, s.data.ChannelID, msgID, msg); err != nil {
		s.log.Warn("could not edit message", slogx.Err(err))
	}
}

func (s *session) veto(ctx context.Context) error {
	o := s.r.o
	st, err := veto.New(o.MapPool, o.Bans)
	if err != nil {
		panic("must not happen")
	}
	if _, err := s.send(ctx, vetoInstructions(s.info, st, o.StepTimeout)); err != nil {
		return err
	}
	for !st.IsDone() {
		deadline := time.Now().Add(o.StepTimeout)
		prompt := vetoPrompt(s.info, st, deadline, o.StepTimeout)
		msgID, err := s.send(ctx, prompt)
		if err != nil {
			return err
		}
		cur := st
		ev, random, err := messaging.AwaitOr(ctx, s.events, deadline,
			func(it messaging.Interaction) (veto.Event, bool) {
				return s.pickVeto(cur, msgID, it)
			},
			func() veto.Event { return cur.Fallback(s.r.deps.Rand) },
		)
		if err != nil {
			return fmt.Errorf("await veto step: %w", err)
		}
		next, err := veto.Step(cur, ev)
		if err != nil {
			panic("must not happen")
		}
		s.log.Info("veto step",
			slog.String("phase", cur.Phase.String()),
			slog.String("team", ev.Team.String()),
			slog.String("choice", ev.Choice),
			slog.Bool("random", random),
		)
		s.edit(ctx, msgID, vetoOutcome(s.info, cur, ev))
		st = next
	}
	err = s.save(func(d *Data) {
		d.Phase = PhaseMapLocked
		d.Map = st.Map
		d.Side1 = st.Sides[veto.TeamA]
		d.Side2 = st.Sides[veto.TeamB]
	})
	if err != nil {
		return err
	}
	if _, err := s.send(ctx, setupComplete(s.info, s.data)); err != nil {
		return err
	}
	return nil
}

func (s *session) pickVeto(st veto.State, msgID string, it messaging.Interaction) (veto.Event, bool) {
	if it.Kind != messaging.InteractionSelect || it.MessageID != msgID {
		return veto.Event{}, false
	}
	team, ok := s.info.TeamOf(it.ActorID)
	if !ok || team != st.Actor() {
		return veto.Event{}, false
	}
	ev := veto.Event{Team: team, Choice: it.Choice}
	if _, err := veto.Step(st, ev); err != nil {
		return veto.Event{}, false
	}
	return ev, true
}

func (s *session) mirror(ctx context.Context, url string) string {
	if s.r.deps.Artifacts == nil {
		return url
	}
	res, err := s.r.deps.Artifacts.Mirror(ctx, url)
	if err != nil {
		s.log.Warn("could not mirror artifact", slog.String("url", url), slogx.Err(err))
		return url
	}
	return res
}

func (s *session) artifactFrom(it messaging.Interaction) (review.Artifact, bool) {
	if it.Kind != messaging.InteractionArtifact || it.ArtifactURL == "" {
		return review.Artifact{}, false
	}
	team, ok := s.info.TeamOf(it.ActorID)
	if !ok {
		return review.Artifact{}, false
	}
	return review.Artifact{URL: it.ArtifactURL, Team: team, Actor: it.ActorID}, true
}

func (s *session) awaitResult(ctx context.Context) error {
	art, _, err := messaging.Await(ctx, s.events, time.Time{}, s.artifactFrom)
	if err != nil {
		return fmt.Errorf("await result: %w", err)
	}
	art.URL = s.mirror(ctx, art.URL)
	st := review.Start(art, time.Now(), s.r.o.Review)
	s.log.Info("result submitted", slog.String("team", art.Team.String()), slog.String("actor", art.Actor))
	return s.save(func(d *Data) {
		d.Phase = PhaseResultSubmitted
		d.Artifact = art.URL
		d.Review = &st
	})
}

func (s *session) openReview(ctx context.Context) error {
	if s.data.Review == nil {
		panic("must not happen")
	}
	return s.save(func(d *Data) {
		d.Phase = PhaseResultReviewing
	})
}

func (s *session) pickReview(st review.State, msgID string, it messaging.Interaction) (review.Event, bool) {
	team, ok := s.info.TeamOf(it.ActorID)
	if !ok || team != st.Reviewer() {
		return review.Event{}, false
	}
	now := time.Now()
	switch it.Kind {
	case messaging.InteractionSelect:
		if it.MessageID != msgID {
			return review.Event{}, false
		}
		switch it.Choice {
		case choiceAccept:
			return review.Event{Kind: review.EventAccept, Team: team, At: now}, true
		case choiceDeny:
			return review.Event{Kind: review.EventDeny, Team: team, At: now}, true
		}
	case messaging.InteractionArtifact:
		if st.Phase != review.PhaseDenied {
			return review.Event{}, false
		}
		art, ok := s.artifactFrom(it)
		if !ok {
			return review.Event{}, false
		}
		return review.Event{Kind: review.EventConflict, Team: team, Artifact: &art, At: now}, true
	}
	return review.Event{}, false
}

func (s *session) review(ctx context.Context) error {
	if s.data.Review == nil {
		panic("must not happen")
	}
	st := *s.data.Review
	ro := s.r.o.Review
	for !st.Phase.IsFinished() {
		msgID, err := s.send(ctx, reviewPrompt(s.info, s.data, st, ro))
		if err != nil {
			return err
		}
		cur := st
		ev, ok, err := messaging.Await(ctx, s.events, cur.Deadline,
			func(it messaging.Interaction) (review.Event, bool) {
				return s.pickReview(cur, msgID, it)
			},
		)
		if err != nil {
			return fmt.Errorf("await review: %w", err)
		}
		if !ok {
			ev = review.Event{Kind: review.EventTimeout, At: time.Now()}
		}
		if ev.Kind == review.EventConflict {
			mirrored := *ev.Artifact
			mirrored.URL = s.mirror(ctx, mirrored.URL)
			ev.Artifact = &mirrored
		}
		next, err := review.Step(cur, ev, ro)
		if err != nil {
			s.log.Warn("rejected review event", slog.String("event", ev.Kind.String()), slogx.Err(err))
			continue
		}
		s.log.Info("review step",
			slog.String("event", ev.Kind.String()),
			slog.String("phase", next.Phase.String()),
		)
		s.edit(ctx, msgID, reviewOutcome(s.info, cur, ev))
		st = next
		err = s.save(func(d *Data) {
			d.Review = &next
		})
		if err != nil {
			return err
		}
	}
	switch st.Phase {
	case review.PhaseDisputed:
		conflict := ""
		if st.Conflict != nil {
			conflict = st.Conflict.URL
		}
		return s.dispute(ctx, st.Reason, conflict)
	case review.PhaseCommitted:
		return s.commit(ctx)
	default:
		panic("must not happen")
	}
}

func (s *session) dispute(ctx context.Context, reason string, conflict string) error {
	err := s.save(func(d *Data) {
		d.Phase = PhaseDisputed
		d.DisputeReason = reason
		if conflict != "" {
			d.Conflict = conflict
		}
	})
	if err != nil {
		return err
	}
	s.log.Warn("match disputed", slog.String("reason", reason))
	if _, err := s.send(ctx, disputeMessage(s.info, s.data)); err != nil {
		s.log.Warn("could not announce dispute", slogx.Err(err))
	}
	if s.r.deps.Alerts != nil {
		s.r.deps.Alerts.MatchDisputed(ctx, s.full())
	}
	return nil
}

func (s *session) interpret(ctx context.Context) (interpreter.Result, error) {
	b, err := backoff.New(s.r.o.InterpretRetry)
	if err != nil {
		panic("must not happen")
	}
	roster := append(s.info.Team1.MemberNames(), s.info.Team2.MemberNames()...)
	for {
		res, err := s.r.deps.Interpreter.Interpret(ctx, s.data.Artifact, roster)
		if err == nil || errors.Is(err, interpreter.ErrNotResult) {
			return res, err
		}
		s.log.Warn("could not interpret artifact", slogx.Err(err))
		if err := b.Retry(ctx, err); err != nil {
			return interpreter.Result{}, err
		}
	}
}

func (s *session) commit(ctx context.Context) error {
	res, err := s.interpret(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := fmt.Sprintf("could not read the result: %v", err)
		if errors.Is(err, interpreter.ErrNotResult) {
			reason = "the submitted artifact is not a match result"
		}
		return s.dispute(ctx, reason, "")
	}
	team1, team2 := interpreter.Arrange(res, s.info.Team1.MemberNames(), s.info.Team2.MemberNames())
	full, err := s.r.complete(ctx, s.full(), []stat.Team{team1, team2}, true, "")
	if err != nil {
		return err
	}
	s.data = full.Data
	return nil
}
