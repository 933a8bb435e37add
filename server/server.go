package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"musiclib/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// NewRouter registers the catalogue endpoints. Every /api route requires a
// bearer token.
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, corsMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/tracks", h.withUser(h.GetTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/count", h.withUser(h.CountTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/by-ids", h.withUser(h.GetTracksByIDsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/search", h.withUser(h.SearchTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/search/advanced", h.withUser(h.AdvancedSearchHandler)).Methods(http.MethodPost)
	api.HandleFunc("/tracks/search/rules", h.withUser(h.SearchRulesHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/filter", h.withUser(h.FilterTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/starred", h.withUser(h.StarredTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/frequent", h.withUser(h.FrequentTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/recent", h.withUser(h.RecentTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/not-recent", h.withUser(h.NotRecentTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/durations", h.withUser(h.DurationsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/folders", h.withUser(h.FoldersHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/genres", h.withUser(h.GenreTrackMapHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id:[0-9]+}", h.withUser(h.GetTrackHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id:[0-9]+}/played", h.withUser(h.RecordPlayHandler)).Methods(http.MethodPost)

	api.HandleFunc("/files", h.withUser(h.FileIDsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/files/tracks", h.withUser(h.TracksByFilesHandler)).Methods(http.MethodGet)
	api.HandleFunc("/files/unscanned-genre", h.withUser(h.UnscannedGenreFilesHandler)).Methods(http.MethodGet)
	api.HandleFunc("/files/{fileId:[0-9]+}/track", h.withUser(h.TrackByFileHandler)).Methods(http.MethodGet)
	api.HandleFunc("/nodes", h.withUser(h.NodesHandler)).Methods(http.MethodGet)

	api.HandleFunc("/artists/{id:[0-9]+}/tracks", h.withUser(h.ArtistTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/artists/{id:[0-9]+}/stats", h.withUser(h.ArtistStatsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/albums/{id:[0-9]+}/tracks", h.withUser(h.AlbumTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/albums/{id:[0-9]+}/stats", h.withUser(h.AlbumStatsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/folders/{id:[0-9]+}/tracks", h.withUser(h.FolderTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/genres/{id:[0-9]+}/tracks", h.withUser(h.GenreTracksHandler)).Methods(http.MethodGet)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware tags each request with an id, reusing one sent by the
// client, and logs the request when it completes.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		logger.Debug("HTTP request",
			logger.String("requestId", id),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("duration", time.Since(start)))
	})
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
