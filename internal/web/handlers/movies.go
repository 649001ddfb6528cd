package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-annotator/internal/annotation"
)

// MoviesHandler handles movie listing endpoints
type MoviesHandler struct {
	resolver *annotation.Resolver
}

// NewMoviesHandler creates a new movies handler
func NewMoviesHandler(resolver *annotation.Resolver) *MoviesHandler {
	return &MoviesHandler{
		resolver: resolver,
	}
}

// MovieResponse represents one served movie
type MovieResponse struct {
	ID               int     `json:"id"`
	NClusters        int     `json:"n_clusters"`
	NLabeledClusters int     `json:"n_labeled_clusters"`
	FPS              float64 `json:"fps"`
	HasMovieFile     bool    `json:"has_movie_file"`
}

func toMovieResponse(s annotation.MovieSummary) MovieResponse {
	return MovieResponse{
		ID:               s.MovieID,
		NClusters:        s.NClusters,
		NLabeledClusters: s.NLabeledClusters,
		FPS:              s.FPS,
		HasMovieFile:     s.HasMovieFile,
	}
}

// List returns all served movies with their labeling progress
func (h *MoviesHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.resolver.MovieSummaries(r.Context(), nil)
	if err != nil {
		respondStorageError(w, r, codeLabelCountRead, err)
		return
	}

	result := make([]MovieResponse, len(summaries))
	for i, s := range summaries {
		result[i] = toMovieResponse(s)
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns a single movie
func (h *MoviesHandler) Get(w http.ResponseWriter, r *http.Request) {
	movieID, err := intParam(r, "movieID")
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	summaries, err := h.resolver.MovieSummaries(r.Context(), &movieID)
	if err != nil {
		if respondLookupError(w, err) {
			return
		}
		respondStorageError(w, r, codeLabelCountRead, err)
		return
	}

	respondJSON(w, http.StatusOK, toMovieResponse(summaries[0]))
}
