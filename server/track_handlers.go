package server

import (
	"encoding/json"
	"net/http"
	"time"

	"musiclib/logger"
	"musiclib/model"
	"musiclib/repository"
)

// userHandler is a handler that runs on behalf of the authenticated user.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withUser resolves the user set by AuthMiddleware.
func (h *APIHandler) withUser(next userHandler) http.HandlerFunc {
	return h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		userID, err := GetUserIDFromContext(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	})
}

func (h *APIHandler) respond(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetTracksHandler lists the user's tracks. Query: sort, invert, limit, offset.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	tracks, err := h.trackRepo.FindAll(r.Context(), userID,
		repository.ParseSortBy(q.Get("sort")), q.Get("invert") == "true", pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) CountTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	count, err := h.trackRepo.Count(r.Context(), userID)
	h.respond(w, r, map[string]int64{"count": count}, err)
}

func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}
	track, err := h.trackRepo.Find(r.Context(), id, userID)
	h.respond(w, r, track, err)
}

func (h *APIHandler) GetTracksByIDsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	ids, err := idsFromQuery(r, "ids")
	if err != nil {
		http.Error(w, "Invalid ids", http.StatusBadRequest)
		return
	}
	tracks, err := h.trackRepo.FindByIDs(r.Context(), ids, userID)
	h.respond(w, r, tracks, err)
}

// SearchTracksHandler matches by name. recursive=true also matches artist and
// album names; title/artist query an exact title and artist pair instead.
func (h *APIHandler) SearchTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	var tracks []model.Track
	var err error
	switch {
	case q.Get("title") != "" || q.Get("artist") != "":
		tracks, err = h.trackRepo.FindAllByNameAndArtistName(r.Context(), q.Get("title"), q.Get("artist"), userID)
	case q.Get("recursive") == "true":
		tracks, err = h.trackRepo.FindAllByNameRecursive(r.Context(), q.Get("name"), userID, pageFromQuery(r))
	default:
		tracks, err = h.trackRepo.FindAllByName(r.Context(), q.Get("name"), userID, q.Get("fuzzy") != "false", pageFromQuery(r))
	}
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) StarredTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	tracks, err := h.trackRepo.FindAllStarred(r.Context(), userID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

// AdvancedSearchRequest is the body of an advanced search.
type AdvancedSearchRequest struct {
	Conjunction string               `json:"conjunction"`
	Rules       []model.AdvancedRule `json:"rules"`
	Random      bool                 `json:"random"`
	Sort        string               `json:"sort"`
	Invert      bool                 `json:"invert"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

func (h *APIHandler) AdvancedSearchHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req AdvancedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	tracks, err := h.trackRepo.FindAllAdvanced(r.Context(), req.Conjunction, req.Rules, req.Random,
		repository.ParseSortBy(req.Sort), req.Invert, userID,
		repository.Page{Limit: req.Limit, Offset: max(req.Offset, 0)})
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) SearchRulesHandler(w http.ResponseWriter, r *http.Request, _ string) {
	writeJSON(w, http.StatusOK, h.trackRepo.RuleNames())
}

// FilterTracksHandler lists tracks by genre, artist and year range.
// Query: genres=1,2 artists=3 from=1990 to=1999 sort invert limit offset.
func (h *APIHandler) FilterTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var criteria model.Criteria
	var err error
	if criteria.GenreIDs, err = idsFromQuery(r, "genres"); err != nil {
		http.Error(w, "Invalid genres", http.StatusBadRequest)
		return
	}
	if criteria.ArtistIDs, err = idsFromQuery(r, "artists"); err != nil {
		http.Error(w, "Invalid artists", http.StatusBadRequest)
		return
	}
	if criteria.FromYear, err = optionalInt(r, "from"); err != nil {
		http.Error(w, "Invalid from year", http.StatusBadRequest)
		return
	}
	if criteria.ToYear, err = optionalInt(r, "to"); err != nil {
		http.Error(w, "Invalid to year", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	tracks, err := h.trackRepo.FindAllByCriteria(r.Context(), criteria,
		repository.ParseSortBy(q.Get("sort")), q.Get("invert") == "true", userID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) FrequentTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	tracks, err := h.trackRepo.FindFrequentPlay(r.Context(), userID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) RecentTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	tracks, err := h.trackRepo.FindRecentPlay(r.Context(), userID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) NotRecentTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	tracks, err := h.trackRepo.FindNotRecentPlay(r.Context(), userID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

// RecordPlayHandler counts one play of the track. The play time defaults to now.
func (h *APIHandler) RecordPlayHandler(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}
	playedAt := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid play time", http.StatusBadRequest)
			return
		}
		playedAt = t.UTC()
	}

	found, err := h.trackRepo.RecordTrackPlayed(r.Context(), id, userID, playedAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trackId": id, "playedAt": playedAt})
}

func (h *APIHandler) TrackByFileHandler(w http.ResponseWriter, r *http.Request, userID string) {
	fileID, ok := pathID(r, "fileId")
	if !ok {
		http.Error(w, "Invalid file ID", http.StatusBadRequest)
		return
	}
	track, err := h.trackRepo.FindByFileID(r.Context(), fileID, userID)
	h.respond(w, r, track, err)
}

func (h *APIHandler) TracksByFilesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	ids, err := idsFromQuery(r, "ids")
	if err != nil {
		http.Error(w, "Invalid ids", http.StatusBadRequest)
		return
	}
	tracks, err := h.trackRepo.FindAllByFileIDs(r.Context(), ids, userID)
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) FileIDsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	ids, err := h.trackRepo.FindAllFileIDs(r.Context(), userID)
	h.respond(w, r, ids, err)
}

func (h *APIHandler) UnscannedGenreFilesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	ids, err := h.trackRepo.FindFilesWithoutScannedGenre(r.Context(), userID)
	h.respond(w, r, ids, err)
}

func (h *APIHandler) DurationsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	ids, err := idsFromQuery(r, "ids")
	if err != nil {
		http.Error(w, "Invalid ids", http.StatusBadRequest)
		return
	}
	durations, err := h.trackRepo.GetDurations(r.Context(), ids, userID)
	h.respond(w, r, durations, err)
}

func (h *APIHandler) FoldersHandler(w http.ResponseWriter, r *http.Request, userID string) {
	folders, err := h.trackRepo.FindTrackAndFolderIDs(r.Context(), userID)
	h.respond(w, r, folders, err)
}

// NodesHandler resolves filecache node names in the caller's own storage.
// Query: ids, and optionally storage, which must name that same storage.
func (h *APIHandler) NodesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	ids, err := idsFromQuery(r, "ids")
	if err != nil {
		http.Error(w, "Invalid ids", http.StatusBadRequest)
		return
	}
	storage := h.storageOf(userID)
	if requested := r.URL.Query().Get("storage"); requested != "" && requested != storage {
		logger.Warn("Rejected foreign storage lookup",
			logger.String("requestId", RequestIDFromContext(r.Context())),
			logger.String("userId", userID),
			logger.String("storage", requested))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	nodes, err := h.trackRepo.FindNodeNamesAndParents(r.Context(), ids, storage)
	h.respond(w, r, nodes, err)
}

func (h *APIHandler) GenreTrackMapHandler(w http.ResponseWriter, r *http.Request, userID string) {
	byGenre, err := h.trackRepo.MapGenreIDsToTrackIDs(r.Context(), userID)
	h.respond(w, r, byGenre, err)
}

func (h *APIHandler) ArtistTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid artist ID", http.StatusBadRequest)
		return
	}
	tracks, err := h.trackRepo.FindAllByArtist(r.Context(), id, userID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

// ArtistStatsHandler reports the track count, total length and genres of an artist.
func (h *APIHandler) ArtistStatsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid artist ID", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	count, err := h.trackRepo.CountByArtist(ctx, id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	duration, err := h.trackRepo.TotalDurationOfArtist(ctx, id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	genres, err := h.trackRepo.GetGenresByArtistID(ctx, id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"artistId": id,
		"tracks":   count,
		"duration": duration,
		"genreIds": genres,
	})
}

// AlbumTracksHandler lists an album in disk order. Query: artist narrows to one artist.
func (h *APIHandler) AlbumTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}
	var artistID *int64
	if ids, err := idsFromQuery(r, "artist"); err != nil || len(ids) > 1 {
		http.Error(w, "Invalid artist ID", http.StatusBadRequest)
		return
	} else if len(ids) == 1 {
		artistID = &ids[0]
	}
	tracks, err := h.trackRepo.FindAllByAlbum(r.Context(), id, userID, artistID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) AlbumStatsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}
	count, err := h.trackRepo.CountByAlbum(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	duration, err := h.trackRepo.TotalDurationOfAlbum(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"albumId":  id,
		"tracks":   count,
		"duration": duration,
	})
}

func (h *APIHandler) FolderTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid folder ID", http.StatusBadRequest)
		return
	}
	tracks, err := h.trackRepo.FindAllByFolder(r.Context(), id, userID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}

func (h *APIHandler) GenreTracksHandler(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid genre ID", http.StatusBadRequest)
		return
	}
	tracks, err := h.trackRepo.FindAllByGenre(r.Context(), id, userID, pageFromQuery(r))
	h.respond(w, r, tracks, err)
}
