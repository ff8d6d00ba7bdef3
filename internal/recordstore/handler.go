// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

// Package recordstore implements the reference record-store server: a
// Postgres-backed store of versioned records grouped into zones, with
// batched submit/fetch endpoints, device session tokens, per-device rate
// limiting, and resumable long-lived asset transfers backed by a local
// filesystem or MinIO blob backend.
package recordstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/models"
)

// Handler carries the record-store HTTP endpoints.
type Handler struct {
	repo      *Repository
	transfers *Transfers
	tokens    *TokenService
	limiter   *rateLimiter

	logger *logger.Logger
}

func NewHandler(repo *Repository, transfers *Transfers, tokens *TokenService, ratePerMinute int, log *logger.Logger) *Handler {
	log.Info().Msg("http handler created")
	return &Handler{
		repo:      repo,
		transfers: transfers,
		tokens:    tokens,
		limiter:   newRateLimiter(ratePerMinute),
		logger:    log,
	}
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	var req models.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid token request", http.StatusBadRequest)
		return
	}
	if req.Device == "" || req.AccessKey == "" {
		http.Error(w, "device and access_key are required", http.StatusBadRequest)
		return
	}

	token, owner, err := h.tokens.IssueToken(r.Context(), req.Device, req.AccessKey)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			log.Warn().Str("device", req.Device).Msg("token request with wrong access key")
			http.Error(w, ErrDeviceNotFound.Error(), http.StatusUnauthorized)
			return
		}
		log.Err(err).Msg("failed to issue token")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.TokenResponse{Token: token, Owner: owner})
}

// submit applies one batch of saves and deletes and answers with
// per-record outcomes. Deletes are processed before saves, so a record
// name deleted and reinserted in the same batch lands in order.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid submit request", http.StatusBadRequest)
		return
	}

	resp := models.SubmitResponse{Outcomes: make([]models.WireOutcome, 0, len(req.Saves)+len(req.Deletes))}

	for _, id := range req.Deletes {
		outcome := models.WireOutcome{ID: id, Code: models.OutcomeOK}
		if err := h.repo.DeleteRecord(r.Context(), id.Name); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				outcome.Code = models.OutcomeNotFound
			} else {
				log.Err(err).Str("record", id.Name).Msg("delete failed")
				outcome.Code = models.OutcomeError
				outcome.Message = err.Error()
			}
		}
		resp.Outcomes = append(resp.Outcomes, outcome)
	}

	for _, rec := range req.Saves {
		resp.Outcomes = append(resp.Outcomes, h.saveOutcome(r, rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) saveOutcome(r *http.Request, rec *models.Record) models.WireOutcome {
	log := logger.FromRequest(r)

	saved, err := h.repo.SaveRecord(r.Context(), rec)
	switch {
	case err == nil:
		return models.WireOutcome{ID: rec.ID, Code: models.OutcomeOK, Record: saved}

	case errors.Is(err, ErrVersionConflict):
		return models.WireOutcome{ID: rec.ID, Code: models.OutcomeConflict, Record: saved}

	case errors.Is(err, ErrZoneNotFound):
		return models.WireOutcome{ID: rec.ID, Code: models.OutcomeZoneNotFound}

	default:
		log.Err(err).Str("record", rec.ID.Name).Msg("save failed")
		return models.WireOutcome{ID: rec.ID, Code: models.OutcomeError, Message: err.Error()}
	}
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	var req models.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid fetch request", http.StatusBadRequest)
		return
	}

	found, err := h.repo.FetchRecords(r.Context(), req.IDs, req.DesiredFields)
	if err != nil {
		log.Err(err).Msg("fetch failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := models.FetchResponse{Outcomes: make([]models.WireOutcome, 0, len(req.IDs))}
	for _, id := range req.IDs {
		if rec, ok := found[id.Name]; ok {
			resp.Outcomes = append(resp.Outcomes, models.WireOutcome{ID: id, Code: models.OutcomeOK, Record: rec})
		} else {
			resp.Outcomes = append(resp.Outcomes, models.WireOutcome{ID: id, Code: models.OutcomeNotFound})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createZone(w http.ResponseWriter, r *http.Request) {
	var req models.ZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Zone == "" {
		http.Error(w, "invalid zone request", http.StatusBadRequest)
		return
	}
	if err := h.repo.CreateZone(r.Context(), req.Scope, req.Zone); err != nil {
		logger.FromRequest(r).Err(err).Msg("create zone failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) deleteZone(w http.ResponseWriter, r *http.Request) {
	scope := models.Scope(chi.URLParam(r, "scope"))
	zone := chi.URLParam(r, "zone")

	exists, err := h.repo.ZoneExists(r.Context(), scope, zone)
	if err == nil && !exists {
		http.Error(w, "zone is not found", http.StatusNotFound)
		return
	}
	if err == nil {
		err = h.repo.DeleteZone(r.Context(), scope, zone)
	}
	if err != nil {
		logger.FromRequest(r).Err(err).Msg("delete zone failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req models.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Zone == "" {
		http.Error(w, "invalid subscription request", http.StatusBadRequest)
		return
	}
	if err := h.repo.CreateSubscription(r.Context(), deviceFrom(r), req.Scope, req.Zone); err != nil {
		logger.FromRequest(r).Err(err).Msg("create subscription failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) registerOperation(w http.ResponseWriter, r *http.Request) {
	var st models.OperationStatus
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil || st.ID == "" {
		http.Error(w, "invalid operation request", http.StatusBadRequest)
		return
	}

	current, err := h.transfers.Register(r.Context(), st, deviceFrom(r))
	if err != nil {
		h.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (h *Handler) operationStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.transfers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) cancelOperation(w http.ResponseWriter, r *http.Request) {
	if err := h.transfers.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeOperationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) uploadChunk(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if err != nil || offset < 0 {
		http.Error(w, "invalid chunk offset", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read chunk", http.StatusBadRequest)
		return
	}

	committed, err := h.transfers.AppendChunk(r.Context(), chi.URLParam(r, "id"), offset, data)
	if err != nil {
		h.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"offset": committed})
}

func (h *Handler) completeOperation(w http.ResponseWriter, r *http.Request) {
	operationID := chi.URLParam(r, "id")

	rec, err := h.transfers.Complete(r.Context(), operationID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, models.WireOutcome{ID: rec.ID, Code: models.OutcomeOK, Record: rec})

	case errors.Is(err, ErrOperationCancelled):
		writeJSON(w, http.StatusOK, models.WireOutcome{Code: models.OutcomeCancelled})

	case errors.Is(err, ErrRecordNotFound):
		writeJSON(w, http.StatusOK, models.WireOutcome{Code: models.OutcomeNotFound})

	default:
		logger.FromRequest(r).Err(err).Str("operation", operationID).Msg("complete failed")
		writeJSON(w, http.StatusOK, models.WireOutcome{Code: models.OutcomeError, Message: err.Error()})
	}
}

func (h *Handler) downloadChunk(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	rc, err := h.transfers.ReadChunk(r.Context(), chi.URLParam(r, "id"), offset, limit)
	if err != nil {
		h.writeOperationError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = io.Copy(w, rc); err != nil {
		logger.FromRequest(r).Err(err).Msg("chunk stream interrupted")
	}
}

func (h *Handler) writeOperationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrOperationNotFound), errors.Is(err, ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrOperationCancelled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrChecksumMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.FromRequest(r).Err(err).Msg("operation request failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Printf("failed to encode response: %v\n", err)
	}
}
