package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/alex65536/tourney/internal/apitoken"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/httputil"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Options struct {
	AllowedOrigins []string      `toml:"allowed-origins"`
	MaxBodySize    int64         `toml:"max-body-size"`
	RequestTimeout time.Duration `toml:"request-timeout"`
}

func (o Options) Clone() Options {
	o.AllowedOrigins = append([]string(nil), o.AllowedOrigins...)
	return o
}

func (o *Options) FillDefaults() {
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	if o.MaxBodySize == 0 {
		o.MaxBodySize = 1 << 20
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 30 * time.Second
	}
}

type Tokens interface {
	Require(value string, k apitoken.PermKind) (apitoken.Perms, error)
}

type Config struct {
	Backend Backend
	Tokens  Tokens
	// Gateway serves bridge websockets. Nil disables the endpoint.
	Gateway http.Handler
	// ArtifactDir is served under /artifacts/ when set.
	ArtifactDir string
}

type server struct {
	log *slog.Logger
	cfg Config
	o   Options
}

// Handler builds the admin API router.
func Handler(log *slog.Logger, cfg Config, o Options) http.Handler {
	o = o.Clone()
	o.FillDefaults()
	s := &server{log: log, cfg: cfg, o: o}

	r := chi.NewRouter()
	r.Use(httputil.WithRequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: o.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.ArtifactDir != "" {
		r.Handle("/artifacts/*", http.StripPrefix("/artifacts/", http.FileServer(http.Dir(cfg.ArtifactDir))))
	}
	if cfg.Gateway != nil {
		r.With(s.auth(apitoken.PermBridge)).Get("/gateway", cfg.Gateway.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(gziphandler.GzipHandler)

		r.With(s.auth(apitoken.PermView)).Get("/tournaments", s.listTournaments)
		r.With(s.auth(apitoken.PermManage)).Post("/tournaments", s.createTournament)
		r.Route("/tournaments/{tournamentID}", func(r chi.Router) {
			r.With(s.auth(apitoken.PermView)).Get("/", s.getTournament)
			r.With(s.auth(apitoken.PermView)).Get("/checkins", s.listCheckIns)
			r.Group(func(r chi.Router) {
				r.Use(s.auth(apitoken.PermManage))
				r.Post("/publish", s.publishTournament)
				r.Post("/cancel", s.cancelTournament)
				r.Post("/start", s.startTournament)
				r.Post("/teams", s.registerTeam)
				r.Delete("/teams/{teamID}", s.withdrawTeam)
				r.Post("/teams/{teamID}/checkin/{memberID}", s.checkIn)
			})
		})

		r.With(s.auth(apitoken.PermView)).Get("/matches", s.listMatches)
		r.With(s.auth(apitoken.PermManage)).Post("/matches", s.createMatch)
		r.With(s.auth(apitoken.PermView)).Get("/matches/{matchID}", s.getMatch)
		r.With(s.auth(apitoken.PermAdjudicate)).Post("/matches/{matchID}/adjudicate", s.adjudicate)
		r.With(s.auth(apitoken.PermAdjudicate)).Post("/matches/{matchID}/resume", s.resumeMatch)

		r.Group(func(r chi.Router) {
			r.Use(s.auth(apitoken.PermAdmin))
			r.Get("/tasks/dead", s.deadTasks)
			r.Post("/tasks/requeue", s.requeueTasks)
			r.Get("/timers", s.pendingTimers)
		})
	})
	return r
}

func bearerToken(req *http.Request) string {
	h := req.Header.Get("Authorization")
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

func (s *server) auth(perm apitoken.PermKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tok := bearerToken(req)
			var err error
			if tok == "" {
				err = httputil.MakeAuthError("no token", "Bearer")
			} else if _, tokErr := s.cfg.Tokens.Require(tok, perm); tokErr != nil {
				if errors.Is(tokErr, apitoken.ErrForbidden) {
					err = httputil.MakeError(http.StatusForbidden, "forbidden")
				} else {
					s.log.Info("token auth failed", slogx.Err(tokErr))
					err = httputil.MakeAuthError("bad token", "Bearer")
				}
			}
			if err != nil {
				_ = httputil.WriteErrorResponse(err, w)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (s *server) reply(w http.ResponseWriter, req *http.Request, fn func(ctx context.Context, log *slog.Logger) (any, error)) {
	log := s.log.With(
		slog.String("rid", httputil.ExtractReqID(req.Context())),
		slog.String("method", req.Method),
		slog.String("uri", req.RequestURI),
	)
	log.Info("handle api request")
	ctx, cancel := context.WithTimeout(req.Context(), s.o.RequestTimeout)
	defer cancel()
	rsp, err := fn(ctx, log)
	if err != nil {
		err = toHTTPError(err)
		var httpErr *httputil.Error
		if errors.As(err, &httpErr) {
			log.Info("request failed", slogx.Err(err))
		} else {
			log.Error("request failed", slogx.Err(err))
		}
		if err := httputil.WriteErrorResponse(err, w); err != nil {
			log.Info("could not write error response", slogx.Err(err))
		}
		return
	}
	if err := httputil.WriteJSON(w, http.StatusOK, rsp); err != nil {
		log.Info("could not write response", slogx.Err(err))
	}
}

func decode[T any](w http.ResponseWriter, req *http.Request, maxSize int64) (T, error) {
	var v T
	body := http.MaxBytesReader(w, req.Body, maxSize)
	data, err := io.ReadAll(body)
	if err != nil {
		return v, httputil.MakeError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, httputil.MakeError(http.StatusBadRequest, fmt.Sprintf("bad json: %v", err))
	}
	return v, nil
}

func (s *server) listTournaments(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		q := req.URL.Query()
		o := tournament.ListOptions{ActiveOnly: q.Get("active") == "true"}
		if r := q.Get("region"); r != "" {
			region, err := tournament.ParseRegion(r)
			if err != nil {
				return nil, httputil.MakeError(http.StatusBadRequest, err.Error())
			}
			o.Region = region
		}
		return s.cfg.Backend.ListTournaments(ctx, o)
	})
}

func (s *server) createTournament(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		settings, err := decode[tournament.Settings](w, req, s.o.MaxBodySize)
		if err != nil {
			return nil, err
		}
		return s.cfg.Backend.CreateTournament(ctx, settings)
	})
}

func (s *server) getTournament(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		return s.cfg.Backend.GetTournament(ctx, chi.URLParam(req, "tournamentID"))
	})
}

func (s *server) listCheckIns(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		return s.cfg.Backend.CheckIns(ctx, chi.URLParam(req, "tournamentID"))
	})
}

func (s *server) publishTournament(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		return s.cfg.Backend.PublishTournament(ctx, chi.URLParam(req, "tournamentID"))
	})
}

func (s *server) cancelTournament(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		body, err := decode[CancelRequest](w, req, s.o.MaxBodySize)
		if err != nil {
			return nil, err
		}
		if body.Reason == "" {
			body.Reason = "cancelled by admin"
		}
		return s.cfg.Backend.CancelTournament(ctx, chi.URLParam(req, "tournamentID"), body.Reason)
	})
}

func (s *server) startTournament(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		return s.cfg.Backend.StartTournament(ctx, chi.URLParam(req, "tournamentID"))
	})
}

func (s *server) registerTeam(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		team, err := decode[tournament.Team](w, req, s.o.MaxBodySize)
		if err != nil {
			return nil, err
		}
		full, placement, err := s.cfg.Backend.RegisterTeam(ctx, chi.URLParam(req, "tournamentID"), team)
		if err != nil {
			return nil, err
		}
		return RegisterResponse{Tournament: full, Placement: placement.String()}, nil
	})
}

func (s *server) withdrawTeam(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		return s.cfg.Backend.WithdrawTeam(ctx, chi.URLParam(req, "tournamentID"), chi.URLParam(req, "teamID"))
	})
}

func (s *server) checkIn(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		err := s.cfg.Backend.CheckIn(ctx,
			chi.URLParam(req, "tournamentID"),
			chi.URLParam(req, "teamID"),
			chi.URLParam(req, "memberID"),
		)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"checked": true}, nil
	})
}

func (s *server) listMatches(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		q := req.URL.Query()
		return s.cfg.Backend.ListMatches(ctx, match.ListOptions{
			TournamentID: q.Get("tournament"),
			LiveOnly:     q.Get("live") == "true",
		})
	})
}

func (s *server) createMatch(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		spec, err := decode[match.Spec](w, req, s.o.MaxBodySize)
		if err != nil {
			return nil, err
		}
		return s.cfg.Backend.CreateMatch(ctx, spec)
	})
}

func (s *server) getMatch(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		return s.cfg.Backend.GetMatch(ctx, chi.URLParam(req, "matchID"))
	})
}

func (s *server) adjudicate(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		body, err := decode[AdjudicateRequest](w, req, s.o.MaxBodySize)
		if err != nil {
			return nil, err
		}
		return s.cfg.Backend.Adjudicate(ctx, chi.URLParam(req, "matchID"), body.Score1, body.Score2)
	})
}

func (s *server) resumeMatch(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		matchID := chi.URLParam(req, "matchID")
		if err := s.cfg.Backend.ResumeMatch(ctx, matchID); err != nil {
			return nil, err
		}
		log.Info("resumed match session", slog.String("match_id", matchID))
		return map[string]string{"status": "resumed"}, nil
	})
}

func (s *server) deadTasks(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		return s.cfg.Backend.DeadTasks(ctx)
	})
}

func (s *server) requeueTasks(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		n, err := s.cfg.Backend.RequeueTasks(ctx)
		if err != nil {
			return nil, err
		}
		log.Info("requeued dead tasks", slog.Int64("count", n))
		return RequeueResponse{Requeued: n}, nil
	})
}

func (s *server) pendingTimers(w http.ResponseWriter, req *http.Request) {
	s.reply(w, req, func(ctx context.Context, log *slog.Logger) (any, error) {
		return s.cfg.Backend.PendingTimers(), nil
	})
}
