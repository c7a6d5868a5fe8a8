package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/clinicpulse/outreach/internal/requests"
	"github.com/clinicpulse/outreach/pkg/logging"
)

type requestResolver interface {
	Resolve(ctx context.Context, d requests.Decision) error
}

type pendingRequestLister interface {
	ListPending(ctx context.Context, limit int) ([]requests.PendingRequest, error)
}

// StaffRequestsHandler serves the staff console's pending-request queue.
type StaffRequestsHandler struct {
	resolver requestResolver
	store    pendingRequestLister
	logger   *logging.Logger
}

func NewStaffRequestsHandler(resolver requestResolver, store pendingRequestLister, logger *logging.Logger) *StaffRequestsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StaffRequestsHandler{resolver: resolver, store: store, logger: logger}
}

type resolveRequestBody struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	StaffName string `json:"staff_name"`
	NewDate   string `json:"new_date,omitempty"`
	NewTime   string `json:"new_time,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Resolve applies a staff decision to one pending request.
func (h *StaffRequestsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var body resolveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		http.Error(w, "invalid request_id", http.StatusBadRequest)
		return
	}

	err = h.resolver.Resolve(r.Context(), requests.Decision{
		Action:    body.Action,
		RequestID: requestID,
		StaffName: body.StaffName,
		NewDate:   body.NewDate,
		NewTime:   body.NewTime,
		Message:   body.Message,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "request_id": requestID.String()})
	case errors.Is(err, requests.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, requests.ErrNotFound):
		http.Error(w, "request not found", http.StatusNotFound)
	case errors.Is(err, requests.ErrAlreadyHandled):
		http.Error(w, "request already handled", http.StatusConflict)
	default:
		h.logger.Error("failed to resolve pending request", "error", err, "request_id", requestID)
		http.Error(w, "failed to resolve request", http.StatusInternalServerError)
	}
}

// ListPending returns the open queue, oldest first.
func (h *StaffRequestsHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	pending, err := h.store.ListPending(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list pending requests", "error", err)
		http.Error(w, "failed to list requests", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(pending), "requests": pending})
}
