package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mltiles/tilebridge/internal/tile"
)

// defaultHistoryLimit is used when the limit query parameter is absent.
const defaultHistoryLimit = 50

// tileSummary is the list-view representation of a tile.
type tileSummary struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// tileDetail is the full representation of a single tile.
type tileDetail struct {
	Name  string         `json:"name"`
	State tile.FullState `json:"state"`
}

// handleListTiles returns all known tiles with their online status.
func (s *Server) handleListTiles(w http.ResponseWriter, _ *http.Request) {
	tiles := s.registry.List()

	summaries := make([]tileSummary, 0, len(tiles))
	for _, t := range tiles {
		summaries = append(summaries, tileSummary{
			Name:   t.Name,
			Online: t.Online(),
		})
	}

	writeJSON(w, http.StatusOK, summaries)
}

// handleGetTile returns the full mirrored state of one tile.
func (s *Server) handleGetTile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	t, err := s.registry.Get(name)
	if err != nil {
		writeNotFound(w, "tile not found")
		return
	}

	writeJSON(w, http.StatusOK, tileDetail{
		Name:  t.Name,
		State: t.Full(),
	})
}

// handleGetTileHistory returns recent state changes for one tile,
// newest first.
func (s *Server) handleGetTileHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "state history is disabled")
		return
	}

	name := chi.URLParam(r, "name")

	if _, err := s.registry.Get(name); err != nil {
		writeNotFound(w, "tile not found")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetHistory(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("querying tile history", "tile", name, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}
