package database

import (
	"time"
)

// ClusterStatus is the reviewer's verdict on a whole cluster.
type ClusterStatus string

const (
	ClusterLabeled   ClusterStatus = "labeled"
	ClusterDiscarded ClusterStatus = "discarded"
	ClusterPostponed ClusterStatus = "postponed"
	ClusterMixed     ClusterStatus = "mixed"
)

// Valid reports whether s is a known cluster status.
func (s ClusterStatus) Valid() bool {
	switch s {
	case ClusterLabeled, ClusterDiscarded, ClusterPostponed, ClusterMixed:
		return true
	}
	return false
}

// ImageStatus is the reviewer's verdict on one image of a cluster.
type ImageStatus string

const (
	ImageSame      ImageStatus = "same"
	ImageDifferent ImageStatus = "different"
	ImageInvalid   ImageStatus = "invalid"
)

// Valid reports whether s is a known image status.
func (s ImageStatus) Valid() bool {
	switch s {
	case ImageSame, ImageDifferent, ImageInvalid:
		return true
	}
	return false
}

// Defaults applied when a cluster or image has no stored annotation.
const (
	DefaultClusterStatus = ClusterLabeled
	DefaultImageStatus   = ImageSame
)

// ImageAnnotation is the stored status of one image of an annotated cluster.
type ImageAnnotation struct {
	Tag        string
	Status     ImageStatus
	Trajectory int
}

// Annotation is the durable decision of one user on one cluster.
type Annotation struct {
	ID             int64
	Username       string
	MovieID        int
	ClusterID      int
	Label          *int // actor id, nil if not labeled
	Status         ClusterStatus
	NImages        int
	ProcessingTime int64 // milliseconds, accumulated over all saves of this user
	CreatedOn      time.Time
	Revision       string
	Images         []ImageAnnotation
}

// SaveRequest is one save of a cluster annotation.
type SaveRequest struct {
	Username  string
	MovieID   int
	ClusterID int
	Label     *int
	Status    ClusterStatus
	Images    []ImageAnnotation // replaces the stored set entirely
	TimeDelta int64             // milliseconds spent since the last save

	// ExpectedRevision, when set, must match the stored revision of the
	// (username, movie, cluster) row or the save fails with ErrRevisionConflict.
	ExpectedRevision string
}

// IsDefault reports whether the request equals the state of an untouched
// cluster: no label, labeled status and every image marked as same.
func (r *SaveRequest) IsDefault() bool {
	if r.Label != nil || r.Status != ClusterLabeled {
		return false
	}
	for _, img := range r.Images {
		if img.Status != ImageSame {
			return false
		}
	}
	return true
}

// ActorCounts holds the number of confirmed images per actor id.
type ActorCounts struct {
	Global map[int]int // across all movies
	Movie  map[int]int // restricted to one movie
}

// LabelExportRow is one image row of an annotated cluster, flattened for export.
type LabelExportRow struct {
	ID             int64
	Username       string
	MovieID        int
	ClusterID      int
	ClusterStatus  ClusterStatus
	Label          *int
	NImages        int
	CreatedOn      time.Time
	ProcessingTime int64
	Tag            string
	ImageStatus    ImageStatus
	Trajectory     int
}
