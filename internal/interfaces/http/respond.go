package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetsync/internal/domain/budgetsync"
	"budgetsync/internal/domain/linkedaccount"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// ExpenseFailure is one failed expense of a partitioned run.
type ExpenseFailure struct {
	ExpenseID int64  `json:"expenseId"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// SyncErrorResponse is the body of a failed sync. Result carries the
// expenses that did reconcile when the run got that far.
type SyncErrorResponse struct {
	ErrorResponse
	Result   *budgetsync.RunResult `json:"result,omitempty"`
	Failures []ExpenseFailure      `json:"failures,omitempty"`
}

// writeSyncError maps a sync failure to its status code.
func writeSyncError(w http.ResponseWriter, result *budgetsync.RunResult, err error) {
	kind := budgetsync.KindOf(err)
	resp := SyncErrorResponse{
		ErrorResponse: ErrorResponse{Error: err.Error(), Kind: string(kind)},
		Result:        result,
	}

	var runErr *budgetsync.RunError
	if errors.As(err, &runErr) {
		for _, f := range runErr.Failures {
			resp.Failures = append(resp.Failures, ExpenseFailure{
				ExpenseID: f.ExpenseID,
				Kind:      string(budgetsync.KindOf(f)),
				Error:     f.Error(),
			})
		}
	}

	writeJSON(w, statusForKind(kind), resp)
}

func statusForKind(kind budgetsync.ErrorKind) int {
	switch kind {
	case budgetsync.KindNotFound:
		return http.StatusNotFound
	case budgetsync.KindConflict:
		return http.StatusConflict
	case budgetsync.KindValidation:
		return http.StatusUnprocessableEntity
	case budgetsync.KindTransient, budgetsync.KindCompensation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isInvalidInput(err error) bool {
	return errors.Is(err, linkedaccount.ErrInvalidInput)
}
