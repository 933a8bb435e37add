package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"musiclib/core/auth"
	"musiclib/logger"
	"musiclib/repository"

	"github.com/gorilla/mux"
)

// APIHandler serves the track catalogue.
type APIHandler struct {
	trackRepo   repository.TrackRepository
	tokens      *auth.TokenIssuer
	homeStorage string
}

// NewAPIHandler creates the handler. homeStorage is the storage id pattern of
// a user's own files, with {user} standing for the user id.
func NewAPIHandler(trackRepo repository.TrackRepository, tokens *auth.TokenIssuer, homeStorage string) *APIHandler {
	return &APIHandler{trackRepo: trackRepo, tokens: tokens, homeStorage: homeStorage}
}

// storageOf is the storage id holding userID's files.
func (h *APIHandler) storageOf(userID string) string {
	return strings.ReplaceAll(h.homeStorage, "{user}", userID)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps repository errors to status codes. Internal errors are
// logged and not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrMultipleFound):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrUnsupportedRule), errors.Is(err, repository.ErrInvalidOperator):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			logger.String("requestId", RequestIDFromContext(r.Context())),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// pathID reads a numeric route variable.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil
}

// pageFromQuery reads limit and offset. Missing or malformed values mean no bound.
func pageFromQuery(r *http.Request) repository.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return repository.Page{Limit: limit, Offset: max(offset, 0)}
}

// idsFromQuery parses a comma separated id list such as ids=1,2,3.
func idsFromQuery(r *http.Request, key string) ([]int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func optionalInt(r *http.Request, key string) (*int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
