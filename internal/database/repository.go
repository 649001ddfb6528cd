package database

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStorage wraps every failure of the backing store.
	ErrStorage = errors.New("annotation storage failure")
	// ErrInvalidAnnotation is returned for requests that can't be stored as given.
	ErrInvalidAnnotation = errors.New("invalid annotation")
	// ErrRevisionConflict is returned when ExpectedRevision doesn't match the stored row.
	ErrRevisionConflict = errors.New("annotation was modified concurrently")
)

// AnnotationReader provides read-only access to cluster annotations
type AnnotationReader interface {
	// GetAnnotation returns the annotation of a cluster, preferring the row of
	// username and falling back to the most recent row of any user.
	// Returns nil, nil if the cluster was never annotated.
	GetAnnotation(ctx context.Context, username string, movieID, clusterID int) (*Annotation, error)
	// GetAnnotationCounts returns the number of labeled clusters per movie.
	// A nil movieID counts all movies. Movies without labels are absent.
	GetAnnotationCounts(ctx context.Context, movieID *int) (map[int]int, error)
	// GetActorCounts returns confirmed image counts per actor, globally and for one movie.
	GetActorCounts(ctx context.Context, movieID int) (*ActorCounts, error)
}

// AnnotationWriter provides write access to cluster annotations
type AnnotationWriter interface {
	AnnotationReader

	// SaveAnnotation stores a cluster annotation in one transaction. Processing
	// time is added to the time already stored for the same user and cluster.
	// A default request deletes the stored row instead of writing one.
	SaveAnnotation(ctx context.Context, req SaveRequest) error
}

// AnnotationExporter streams annotated clusters for offline analysis
type AnnotationExporter interface {
	// ExportLabels calls fn for every image of every cluster that was labeled
	// or given a non-default status.
	ExportLabels(ctx context.Context, fn func(LabelExportRow) error) error
}

// ValidateSaveRequest checks a request before anything is written.
func ValidateSaveRequest(req *SaveRequest) error {
	if req.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidAnnotation)
	}
	if !req.Status.Valid() {
		return fmt.Errorf("%w: unknown cluster status %q", ErrInvalidAnnotation, req.Status)
	}
	if req.TimeDelta < 0 {
		return fmt.Errorf("%w: processing time must not be negative", ErrInvalidAnnotation)
	}
	for _, img := range req.Images {
		if !img.Status.Valid() {
			return fmt.Errorf("%w: unknown image status %q", ErrInvalidAnnotation, img.Status)
		}
		if img.Tag == "" {
			return fmt.Errorf("%w: image tag is required", ErrInvalidAnnotation)
		}
	}
	return nil
}
