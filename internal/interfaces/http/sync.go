package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"budgetsync/internal/domain/budgetsync"
	"budgetsync/internal/interfaces/scheduler"
)

// Trigger fans a sync out to every linked account in the background.
type Trigger interface {
	SubmitAll(ctx context.Context, opts budgetsync.Options) (scheduler.Batch, error)
}

// SyncHandler serves the sync trigger endpoints.
type SyncHandler struct {
	trigger      Trigger
	syncer       budgetsync.Syncer
	defaults     budgetsync.Options
	triggerLimit int
	log          zerolog.Logger
}

// NewSyncHandler creates a sync handler. defaults are the configured run
// options that query parameters override; triggerLimit caps the expenses
// fetched per account by the background trigger.
func NewSyncHandler(trigger Trigger, syncer budgetsync.Syncer, defaults budgetsync.Options, triggerLimit int, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		trigger:      trigger,
		syncer:       syncer,
		defaults:     defaults,
		triggerLimit: triggerLimit,
		log:          log.With().Str("component", "sync_handler").Logger(),
	}
}

// TriggerResponse acknowledges a background sync of every account.
type TriggerResponse struct {
	BatchID   string `json:"batchId"`
	Accounts  int    `json:"accounts"`
	Submitted int    `json:"submitted"`
}

// HandleTriggerAll queues one sync job per linked account and returns 202.
func (h *SyncHandler) HandleTriggerAll(w http.ResponseWriter, r *http.Request) {
	opts := h.defaults
	opts.Limit = h.triggerLimit

	batch, err := h.trigger.SubmitAll(r.Context(), opts)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to submit sync batch")
		writeError(w, http.StatusInternalServerError, "Failed to start sync")
		return
	}

	h.log.Info().
		Str("batch_id", batch.ID).
		Int("accounts", batch.Accounts).
		Int("submitted", batch.Submitted).
		Msg("Sync batch submitted")

	writeJSON(w, http.StatusAccepted, TriggerResponse{
		BatchID:   batch.ID,
		Accounts:  batch.Accounts,
		Submitted: batch.Submitted,
	})
}

// HandleSyncAccount runs one account sync in the request and returns its
// results.
func (h *SyncHandler) HandleSyncAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "Account ID is required")
		return
	}

	opts, err := parseSyncOptions(r, h.defaults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.syncer.Sync(r.Context(), accountID, opts)
	if err != nil {
		h.log.Warn().Err(err).Str("account_id", accountID).Msg("Account sync failed")
		writeSyncError(w, result, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type queryError struct {
	param string
	err   error
}

func (e *queryError) Error() string {
	return "invalid " + e.param + ": " + e.err.Error()
}

func parseSyncOptions(r *http.Request, defaults budgetsync.Options) (budgetsync.Options, error) {
	q := r.URL.Query()
	opts := defaults

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, &queryError{param: "since", err: err}
		}
		since = since.UTC()
		opts.Since = &since
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return opts, &queryError{param: "limit", err: strconv.ErrSyntax}
		}
		opts.Limit = limit
	}

	if v := q.Get("failurePolicy"); v != "" {
		policy, err := budgetsync.ParseFailurePolicy(v)
		if err != nil {
			return opts, &queryError{param: "failurePolicy", err: err}
		}
		opts.FailurePolicy = policy
	}

	if v := q.Get("maxConcurrency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, &queryError{param: "maxConcurrency", err: strconv.ErrSyntax}
		}
		opts.MaxConcurrency = n
	}

	return opts, nil
}
