package adminapi

import (
	"errors"
	"net/http"

	"github.com/alex65536/tourney/internal/apitoken"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/httputil"
)

var errorCodes = []struct {
	err  error
	code int
}{
	{tournament.ErrTournamentNotFound, http.StatusNotFound},
	{tournament.ErrTeamNotFound, http.StatusNotFound},
	{match.ErrMatchNotFound, http.StatusNotFound},
	{apitoken.ErrTokenNotFound, http.StatusNotFound},
	{tournament.ErrDuplicateTeam, http.StatusConflict},
	{tournament.ErrNotWaiting, http.StatusConflict},
	{tournament.ErrRegistrationClosed, http.StatusConflict},
	{tournament.ErrTournamentFull, http.StatusConflict},
	{tournament.ErrAlreadyStarted, http.StatusConflict},
	{tournament.ErrNotEnoughTeams, http.StatusConflict},
	{tournament.ErrFinished, http.StatusConflict},
	{tournament.ErrConflict, http.StatusConflict},
	{match.ErrWrongPhase, http.StatusConflict},
	{match.ErrConflict, http.StatusConflict},
	{scheduler.ErrCheckInClosed, http.StatusConflict},
	{tournament.ErrInvalidSettings, http.StatusBadRequest},
	{tournament.ErrInvalidTeam, http.StatusBadRequest},
	{match.ErrBadScore, http.StatusBadRequest},
	{scheduler.ErrNotMember, http.StatusBadRequest},
	{match.ErrNotParticipant, http.StatusForbidden},
}

// toHTTPError maps domain errors to HTTP errors. Unknown errors stay as they are and become
// internal server errors.
func toHTTPError(err error) error {
	var httpErr *httputil.Error
	if errors.As(err, &httpErr) {
		return err
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return httputil.MakeError(e.code, err.Error())
		}
	}
	return err
}
