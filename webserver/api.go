package webserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"rankclaim/authority"
	"rankclaim/bonus"
	"rankclaim/rewards"
)

type ApiError struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, rewards.ErrNotEligible),
		errors.Is(err, rewards.ErrEntryNotFound),
		errors.Is(err, rewards.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rewards.ErrAlreadyClaimed),
		errors.Is(err, rewards.ErrSchedulePublished):
		return http.StatusConflict
	case errors.Is(err, rewards.ErrInsufficientPoolBalance):
		return http.StatusServiceUnavailable
	case errors.Is(err, rewards.ErrInvalidSchedule),
		errors.Is(err, rewards.ErrInvalidActivity),
		errors.Is(err, authority.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, bonus.ErrMissingContext),
		errors.Is(err, bonus.ErrIncompleteContext),
		errors.Is(err, bonus.ErrWrongMinter),
		errors.Is(err, bonus.ErrWrongReceiver),
		errors.Is(err, bonus.ErrWrongMetadata),
		errors.Is(err, bonus.ErrMintUsed):
		// The caller sent a bad bonus context
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func apiError(err error, w http.ResponseWriter) {
	apiErrorStatus(err, statusFor(err), w)
}

func apiErrorStatus(err error, status int, w http.ResponseWriter) {
	e, _ := json.Marshal(ApiError{err.Error()})
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(e), status)
}

func apiReturnOk(w http.ResponseWriter) {
	apiReturn(map[string]string{"ok": "ok"}, w)
}

func apiReturn(v interface{}, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("UI Return Encode Failure")
	}
}

func queryDay(r *http.Request) (uint64, error) {
	day, err := strconv.ParseUint(r.URL.Query().Get("day"), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "Invalid day")
	}
	return day, nil
}

func queryParticipant(r *http.Request) (authority.Address, error) {
	return authority.ParseAddress(r.URL.Query().Get("p"))
}

//
// Claim the reward of a day. Without a bonus context in the body, one is
// built when the claim would resolve to the top tier.
func (ws *WebServer) claim(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - Claim")

	var req rewards.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrorStatus(errors.Wrap(err, "Cannot decode claim request"), http.StatusBadRequest, w)
		return
	}

	if req.Bonus == nil {
		preview, err := ws.claims.Preview(r.Context(), req.Day, req.Participant)
		if err == nil && preview.Bonus {
			bctx, err := bonus.NewContext(ws.program, req.Participant)
			if err != nil {
				apiError(errors.Wrap(err, "Cannot build bonus context"), w)
				return
			}
			req.Bonus = bctx
		}
	}

	receipt, err := ws.claims.Claim(r.Context(), req)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturn(receipt, w)
}

func (ws *WebServer) preview(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - Preview")

	day, err := queryDay(r)
	if err != nil {
		apiErrorStatus(err, http.StatusBadRequest, w)
		return
	}

	p, err := queryParticipant(r)
	if err != nil {
		apiError(err, w)
		return
	}

	preview, err := ws.claims.Preview(r.Context(), day, p)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturn(preview, w)
}

func (ws *WebServer) getEntry(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - GetEntry")

	day, err := queryDay(r)
	if err != nil {
		apiErrorStatus(err, http.StatusBadRequest, w)
		return
	}

	p, err := queryParticipant(r)
	if err != nil {
		apiError(err, w)
		return
	}

	entry, err := ws.store.GetEntry(day, p)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturn(entry, w)
}

func (ws *WebServer) listEntries(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - ListEntries")

	day, err := queryDay(r)
	if err != nil {
		apiErrorStatus(err, http.StatusBadRequest, w)
		return
	}

	entries, err := ws.store.ListEntries(day)
	if err != nil {
		apiError(errors.Wrap(err, "Cannot list entries"), w)
		return
	}

	apiReturn(map[string]interface{}{
		"day":     day,
		"entries": entries,
	}, w)
}

func (ws *WebServer) getSchedule(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - GetSchedule")

	day, err := queryDay(r)
	if err != nil {
		apiErrorStatus(err, http.StatusBadRequest, w)
		return
	}

	schedule, err := ws.store.GetSchedule(day)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturn(schedule, w)
}

func (ws *WebServer) publishSchedule(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - PublishSchedule")

	var schedule rewards.Schedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		apiErrorStatus(errors.Wrap(err, "Cannot decode schedule"), http.StatusBadRequest, w)
		return
	}

	published, err := ws.store.PublishSchedule(schedule)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturn(published, w)
}

type activityRequest struct {
	Day         uint64            `json:"day"`
	Participant authority.Address `json:"participant"`
	Amount      uint64            `json:"amount"`
}

func (ws *WebServer) recordActivity(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - RecordActivity")

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrorStatus(errors.Wrap(err, "Cannot decode activity"), http.StatusBadRequest, w)
		return
	}

	entry, err := ws.store.RecordActivity(req.Day, req.Participant, req.Amount)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturn(entry, w)
}

func (ws *WebServer) getPool(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - GetPool")

	pool, err := ws.claims.PoolAccount(r.Context())
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get pool"), w)
		return
	}

	apiReturn(pool, w)
}

func (ws *WebServer) getBalance(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - GetBalance")

	p, err := queryParticipant(r)
	if err != nil {
		apiError(err, w)
		return
	}

	balance, err := ws.claims.Balance(p)
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get balance"), w)
		return
	}

	creds, err := ws.claims.Credentials(p)
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get credentials"), w)
		return
	}

	apiReturn(map[string]interface{}{
		"participant": p,
		"balance":     balance,
		"credentials": creds,
	}, w)
}
