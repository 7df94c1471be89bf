package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alex65536/tourney/internal/apitoken"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/registration"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens map[string]apitoken.Perms

func (f fakeTokens) Require(value string, k apitoken.PermKind) (apitoken.Perms, error) {
	p, ok := f[value]
	if !ok {
		return apitoken.Perms{}, apitoken.ErrTokenNotFound
	}
	if !p.Get(k) {
		return apitoken.Perms{}, apitoken.ErrForbidden
	}
	return p, nil
}

type fakeBackend struct {
	teams      []tournament.Team
	adjudicate [][2]int
	resumed    int
}

func (b *fakeBackend) CreateTournament(ctx context.Context, settings tournament.Settings) (tournament.Info, error) {
	if err := settings.Validate(); err != nil {
		return tournament.Info{}, tournament.ErrInvalidSettings
	}
	return tournament.Info{ID: "t1", Settings: settings}, nil
}

func (b *fakeBackend) PublishTournament(ctx context.Context, tournamentID string) (tournament.FullData, error) {
	return tournament.FullData{}, tournament.ErrNotWaiting
}

func (b *fakeBackend) CancelTournament(ctx context.Context, tournamentID string, reason string) (tournament.FullData, error) {
	return tournament.FullData{Info: tournament.Info{ID: tournamentID}, Data: tournament.Data{Status: tournament.NewStatusCancelled(reason)}}, nil
}

func (b *fakeBackend) StartTournament(ctx context.Context, tournamentID string) (tournament.FullData, error) {
	return tournament.FullData{}, tournament.ErrNotEnoughTeams
}

func (b *fakeBackend) GetTournament(ctx context.Context, tournamentID string) (tournament.FullData, error) {
	if tournamentID != "t1" {
		return tournament.FullData{}, tournament.ErrTournamentNotFound
	}
	return tournament.FullData{
		Info: tournament.Info{ID: "t1"},
		Data: tournament.Data{Status: tournament.NewStatusWaiting(), Teams: b.teams},
	}, nil
}

func (b *fakeBackend) ListTournaments(ctx context.Context, o tournament.ListOptions) ([]tournament.FullData, error) {
	return []tournament.FullData{{Info: tournament.Info{ID: "t1", Settings: tournament.Settings{Region: o.Region}}}}, nil
}

func (b *fakeBackend) RegisterTeam(
	ctx context.Context,
	tournamentID string,
	team tournament.Team,
) (tournament.FullData, registration.Placement, error) {
	if tournament.FindTeam(b.teams, team.ID) >= 0 {
		return tournament.FullData{}, registration.PlacedNowhere, tournament.ErrDuplicateTeam
	}
	b.teams = append(b.teams, team)
	return tournament.FullData{Data: tournament.Data{Teams: b.teams}}, registration.PlacedWaiting, nil
}

func (b *fakeBackend) WithdrawTeam(ctx context.Context, tournamentID string, teamID string) (tournament.FullData, error) {
	return tournament.FullData{}, tournament.ErrTeamNotFound
}

func (b *fakeBackend) CheckIn(ctx context.Context, tournamentID, teamID, memberID string) error {
	return scheduler.ErrCheckInClosed
}

func (b *fakeBackend) CheckIns(ctx context.Context, tournamentID string) ([]scheduler.CheckIn, error) {
	return nil, nil
}

func (b *fakeBackend) CreateMatch(ctx context.Context, spec match.Spec) (match.FullData, error) {
	return match.FullData{Info: match.Info{ID: "m1", Team1: spec.Team1, Team2: spec.Team2}}, nil
}

func (b *fakeBackend) GetMatch(ctx context.Context, matchID string) (match.FullData, error) {
	return match.FullData{}, match.ErrMatchNotFound
}

func (b *fakeBackend) ListMatches(ctx context.Context, o match.ListOptions) ([]match.FullData, error) {
	return []match.FullData{}, nil
}

func (b *fakeBackend) Adjudicate(ctx context.Context, matchID string, score1, score2 int) (match.FullData, error) {
	if score1 == score2 {
		return match.FullData{}, match.ErrBadScore
	}
	b.adjudicate = append(b.adjudicate, [2]int{score1, score2})
	return match.FullData{
		Info: match.Info{ID: matchID},
		Data: match.Data{Status: match.StatusCompleted, Phase: match.PhaseCompleted, Score1: score1, Score2: score2},
	}, nil
}

func (b *fakeBackend) ResumeMatch(ctx context.Context, matchID string) error {
	if matchID != "m1" {
		return match.ErrMatchNotFound
	}
	b.resumed++
	return nil
}

func (b *fakeBackend) DeadTasks(ctx context.Context) ([]queue.Task, error) {
	return []queue.Task{{Seq: 7, Kind: queue.KindUpdateBracket, Dead: true}}, nil
}

func (b *fakeBackend) RequeueTasks(ctx context.Context) (int64, error) {
	return 1, nil
}

func (b *fakeBackend) PendingTimers() []scheduler.Timer {
	return nil
}

type testEnv struct {
	backend *fakeBackend
	h       http.Handler
}

func newTestEnv(t *testing.T, artifactDir string) *testEnv {
	backend := &fakeBackend{}
	tokens := fakeTokens{
		"viewer": {CanView: true},
		"admin":  apitoken.AdminPerms(),
		"judge":  {CanView: true, CanAdjudicate: true},
	}
	h := Handler(slogx.DiscardLogger(), Config{
		Backend:     backend,
		Tokens:      tokens,
		ArtifactDir: artifactDir,
	}, Options{})
	return &testEnv{backend: backend, h: h}
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func errorText(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do("GET", "/api/v1/tournaments", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = env.do("GET", "/api/v1/tournaments", "stranger", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("POST", "/api/v1/tournaments/t1/publish", "viewer", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do("GET", "/api/v1/tournaments?region=eu", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	var list []tournament.FullData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, tournament.RegionEU, list[0].Info.Region)

	rec = env.do("GET", "/api/v1/tournaments?region=mars", "viewer", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do("GET", "/api/v1/tournaments/nope", "viewer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tournament not found", errorText(t, rec))

	team := `{"id":"alpha","name":"Alpha","captain":"a1"}`
	rec = env.do("POST", "/api/v1/tournaments/t1/teams", "admin", team)
	require.Equal(t, http.StatusOK, rec.Code)
	var reg RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, registration.PlacedWaiting.String(), reg.Placement)

	rec = env.do("POST", "/api/v1/tournaments/t1/teams", "admin", team)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "team already registered", errorText(t, rec))

	rec = env.do("POST", "/api/v1/tournaments/t1/teams", "admin", `{"id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/v1/tournaments", "admin", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/v1/tournaments/t1/start", "admin", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do("POST", "/api/v1/tournaments/t1/teams/alpha/checkin/a1", "admin", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do("GET", "/api/v1/matches/m9", "viewer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdjudicate(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do("POST", "/api/v1/matches/m1/adjudicate", "viewer", `{"score1":16,"score2":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do("POST", "/api/v1/matches/m1/adjudicate", "judge", `{"score1":13,"score2":13}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/v1/matches/m1/adjudicate", "judge", `{"score1":16,"score2":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][2]int{{16, 10}}, env.backend.adjudicate)
	var m match.FullData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, 16, m.Data.Score1)
	assert.Equal(t, match.StatusCompleted, m.Data.Status)
	assert.Equal(t, match.PhaseCompleted, m.Data.Phase)
}

func TestResumeMatch(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do("POST", "/api/v1/matches/m1/resume", "viewer", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do("POST", "/api/v1/matches/m9/resume", "judge", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do("POST", "/api/v1/matches/m1/resume", "judge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.backend.resumed)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do("GET", "/api/v1/tasks/dead", "judge", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do("GET", "/api/v1/tasks/dead", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []queue.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(7), tasks[0].Seq)

	rec = env.do("POST", "/api/v1/tasks/requeue", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"requeued":1}`, rec.Body.String())
}

func TestCompression(t *testing.T) {
	env := newTestEnv(t, "")
	req := httptest.NewRequest("GET", "/api/v1/tasks/dead", nil)
	req.Header.Set("Authorization", "Bearer admin")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	// Small bodies are sent as is.
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "artifacts", "a.png"), []byte("png"), 0o644))
	env := newTestEnv(t, dir)

	rec := env.do("GET", "/artifacts/artifacts/a.png", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
}
