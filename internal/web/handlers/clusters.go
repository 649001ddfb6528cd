package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/face-annotator/internal/annotation"
	"github.com/kozaktomas/face-annotator/internal/database"
	"github.com/kozaktomas/face-annotator/internal/web/middleware"
)

// ClustersHandler handles cluster review endpoints
type ClustersHandler struct {
	resolver *annotation.Resolver
}

// NewClustersHandler creates a new clusters handler
func NewClustersHandler(resolver *annotation.Resolver) *ClustersHandler {
	return &ClustersHandler{
		resolver: resolver,
	}
}

// ClusterImageResponse is one displayed face image
type ClusterImageResponse struct {
	Tag          string `json:"tag"`
	URL          string `json:"url"`
	FullFrameURL string `json:"full_frame_url"`
	FrameIndex   int    `json:"frame_index"`
	Trajectory   int    `json:"trajectory"`
	Status       string `json:"status"`
}

// ClusterResponse is a cluster as shown to the requesting reviewer
type ClusterResponse struct {
	Username        string                 `json:"username"`
	LabeledBy       string                 `json:"labeled_by,omitempty"`
	MovieID         int                    `json:"movie_id"`
	ClusterID       int                    `json:"cluster_id"`
	Label           *int                   `json:"label"`
	LabelTime       *time.Time             `json:"label_time"`
	Status          string                 `json:"status"`
	ProcessingTime  int64                  `json:"processing_time"`
	Images          []ClusterImageResponse `json:"images"`
	NTrajectories   int                    `json:"n_trajectories"`
	NTotalImages    int                    `json:"n_total_images"`
	PredictedActors []int                  `json:"predicted_actors"`
	Revision        string                 `json:"revision,omitempty"`
}

// SaveImageRequest is the reviewer's verdict on one image. Either URL or Tag identifies it.
type SaveImageRequest struct {
	URL    string `json:"url"`
	Tag    string `json:"tag"`
	Status string `json:"status"`
}

// SaveClusterRequest is the body of a cluster save
type SaveClusterRequest struct {
	Label    *int               `json:"label"`
	Status   string             `json:"status"`
	Time     int64              `json:"time"` // milliseconds since the last save
	Revision string             `json:"revision"`
	Images   []SaveImageRequest `json:"images"`
}

func (h *ClustersHandler) clusterParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	movieID, err := intParam(r, "movieID")
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return 0, 0, false
	}
	clusterID, err := intParam(r, "clusterID")
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return 0, 0, false
	}
	return movieID, clusterID, true
}

// Get returns the cluster with the annotation visible to the requesting reviewer
func (h *ClustersHandler) Get(w http.ResponseWriter, r *http.Request) {
	movieID, clusterID, ok := h.clusterParams(w, r)
	if !ok {
		return
	}
	username := middleware.GetUsernameFromContext(r.Context())

	view, err := h.resolver.ClusterView(r.Context(), username, movieID, clusterID)
	if err != nil {
		if respondLookupError(w, err) {
			return
		}
		respondStorageError(w, r, codeDatabaseReadError, err)
		return
	}

	images := make([]ClusterImageResponse, len(view.Images))
	for i, img := range view.Images {
		images[i] = ClusterImageResponse{
			Tag:          img.Tag,
			URL:          img.URL,
			FullFrameURL: img.FullFrameURL,
			FrameIndex:   img.FrameIndex,
			Trajectory:   img.Trajectory,
			Status:       string(img.Status),
		}
	}
	predicted := view.PredictedActors
	if predicted == nil {
		predicted = []int{}
	}

	respondJSON(w, http.StatusOK, ClusterResponse{
		Username:        username,
		LabeledBy:       view.Username,
		MovieID:         view.MovieID,
		ClusterID:       view.ClusterID,
		Label:           view.Label,
		LabelTime:       view.LabelTime,
		Status:          string(view.Status),
		ProcessingTime:  view.ProcessingTime,
		Images:          images,
		NTrajectories:   view.NTrajectories,
		NTotalImages:    view.NTotalImages,
		PredictedActors: predicted,
		Revision:        view.Revision,
	})
}

// Save stores the requesting reviewer's decision on a cluster
func (h *ClustersHandler) Save(w http.ResponseWriter, r *http.Request) {
	movieID, clusterID, ok := h.clusterParams(w, r)
	if !ok {
		return
	}

	var req SaveClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, errInvalidRequestBody)
		return
	}

	edit := annotation.Edit{
		Label:     req.Label,
		Status:    database.ClusterStatus(req.Status),
		TimeDelta: req.Time,
		Revision:  req.Revision,
		Images:    make([]annotation.ImageEdit, len(req.Images)),
	}
	if edit.Status == "" {
		edit.Status = database.DefaultClusterStatus
	}
	for i, img := range req.Images {
		tag := img.Tag
		if tag == "" {
			tag = img.URL
		}
		status := database.ImageStatus(img.Status)
		if status == "" {
			status = database.DefaultImageStatus
		}
		edit.Images[i] = annotation.ImageEdit{Tag: tag, Status: status}
	}

	username := middleware.GetUsernameFromContext(r.Context())
	err := h.resolver.Save(r.Context(), username, movieID, clusterID, edit)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case respondLookupError(w, err):
	case errors.Is(err, annotation.ErrInvalidImage), errors.Is(err, annotation.ErrUnknownImage):
		respondError(w, http.StatusBadRequest, codeInvalidImage, err.Error())
	case errors.Is(err, annotation.ErrInvalidEdit):
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, annotation.ErrRevisionConflict):
		respondError(w, http.StatusConflict, codeRevisionConflict, "cluster was saved by someone else, reload it")
	default:
		respondStorageError(w, r, codeDatabaseWriteError, err)
	}
}
