package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-annotator/internal/annotation"
)

// ActorsHandler handles actor statistics endpoints
type ActorsHandler struct {
	resolver *annotation.Resolver
}

// NewActorsHandler creates a new actors handler
func NewActorsHandler(resolver *annotation.Resolver) *ActorsHandler {
	return &ActorsHandler{
		resolver: resolver,
	}
}

// ActorCountsResponse holds confirmed image counts keyed by actor id
type ActorCountsResponse struct {
	MovieID      int         `json:"movie_id"`
	GlobalCounts map[int]int `json:"global_counts"`
	MovieCounts  map[int]int `json:"movie_counts"`
}

// Counts returns how many images were confirmed per actor, over all movies and in one movie
func (h *ActorsHandler) Counts(w http.ResponseWriter, r *http.Request) {
	movieID, err := intParam(r, "movieID")
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	counts, err := h.resolver.ActorCounts(r.Context(), movieID)
	if err != nil {
		if respondLookupError(w, err) {
			return
		}
		respondStorageError(w, r, codeActorCountRead, err)
		return
	}

	respondJSON(w, http.StatusOK, ActorCountsResponse{
		MovieID:      movieID,
		GlobalCounts: counts.Global,
		MovieCounts:  counts.Movie,
	})
}
