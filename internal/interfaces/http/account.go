package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"budgetsync/internal/domain/linkedaccount"
	"budgetsync/internal/domain/syncrecord"
)

// AccountService is the linked account store used by the handlers.
type AccountService interface {
	Register(ctx context.Context, params linkedaccount.RegisterParams) (*linkedaccount.Account, error)
	Get(ctx context.Context, accountID string) (*linkedaccount.Account, error)
	ListAll(ctx context.Context) ([]*linkedaccount.Account, error)
}

// RecordLister lists the sync runs of an account.
type RecordLister interface {
	ListRecent(ctx context.Context, accountID string, limit int) ([]*syncrecord.Record, error)
}

// AccountHandler serves linked accounts and their sync history.
type AccountHandler struct {
	accounts AccountService
	records  RecordLister
	log      zerolog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts AccountService, records RecordLister, log zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		records:  records,
		log:      log.With().Str("component", "account_handler").Logger(),
	}
}

// RegisterAccountRequest is the body of POST /api/accounts.
type RegisterAccountRequest struct {
	Email                       string `json:"email"`
	SplitwiseGroupID            int64  `json:"splitwiseGroupId"`
	SplitwiseUserID             int64  `json:"splitwiseUserId"`
	YnabBudgetID                string `json:"ynabBudgetId"`
	YnabAccountID               string `json:"ynabAccountId"`
	YnabUncategorizedCategoryID string `json:"ynabUncategorizedCategoryId"`
}

// HandleListAccounts returns every linked account.
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAll(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list linked accounts")
		writeError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []*linkedaccount.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// HandleRegisterAccount registers or re-links an account. Registration is
// idempotent on (email, group, user).
func (h *AccountHandler) HandleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterAccountRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acc, err := h.accounts.Register(r.Context(), linkedaccount.RegisterParams{
		Email:                       req.Email,
		SplitwiseGroupID:            req.SplitwiseGroupID,
		SplitwiseUserID:             req.SplitwiseUserID,
		YnabBudgetID:                req.YnabBudgetID,
		YnabAccountID:               req.YnabAccountID,
		YnabUncategorizedCategoryID: req.YnabUncategorizedCategoryID,
	})
	if isInvalidInput(err) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to register linked account")
		writeError(w, http.StatusInternalServerError, "Failed to register account")
		return
	}

	h.log.Info().Str("account_id", acc.ID).Msg("Linked account registered")
	writeJSON(w, http.StatusOK, acc)
}

// HandleListSyncRecords returns the most recent sync runs of an account.
func (h *AccountHandler) HandleListSyncRecords(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	acc, err := h.accounts.Get(r.Context(), accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to get linked account")
		writeError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	if acc == nil {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	records, err := h.records.ListRecent(r.Context(), accountID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to list sync records")
		writeError(w, http.StatusInternalServerError, "Failed to list sync records")
		return
	}
	if records == nil {
		records = []*syncrecord.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
