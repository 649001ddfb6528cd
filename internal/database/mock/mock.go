// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-annotator/internal/database"
)

type annotationKey struct {
	username  string
	movieID   int
	clusterID int
}

// MockAnnotationStore is an in-memory implementation of database.AnnotationWriter
// and database.AnnotationExporter.
type MockAnnotationStore struct {
	mu          sync.RWMutex
	annotations map[annotationKey]*database.Annotation
	nextID      int64
	revision    int

	// Saved records every request passed to SaveAnnotation, including rejected ones.
	Saved []database.SaveRequest

	// Error injection
	SaveError        error
	GetError         error
	CountsError      error
	ActorCountsError error
	ExportError      error
}

// NewMockAnnotationStore creates a new mock annotation store
func NewMockAnnotationStore() *MockAnnotationStore {
	return &MockAnnotationStore{
		annotations: make(map[annotationKey]*database.Annotation),
	}
}

// AddAnnotation stores an annotation as is, assigning an id if missing
func (m *MockAnnotationStore) AddAnnotation(a database.Annotation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextID++
		a.ID = m.nextID
	}
	m.annotations[annotationKey{a.Username, a.MovieID, a.ClusterID}] = cloneAnnotation(&a)
}

func cloneAnnotation(a *database.Annotation) *database.Annotation {
	c := *a
	if a.Label != nil {
		label := *a.Label
		c.Label = &label
	}
	c.Images = append([]database.ImageAnnotation(nil), a.Images...)
	return &c
}

// Len returns the number of stored annotations
func (m *MockAnnotationStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.annotations)
}

// SaveAnnotation stores an annotation with the same semantics as the SQL store
func (m *MockAnnotationStore) SaveAnnotation(ctx context.Context, req database.SaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saved = append(m.Saved, req)

	if m.SaveError != nil {
		return m.SaveError
	}
	if err := database.ValidateSaveRequest(&req); err != nil {
		return err
	}

	key := annotationKey{req.Username, req.MovieID, req.ClusterID}
	existing, exists := m.annotations[key]
	if req.ExpectedRevision != "" && (!exists || existing.Revision != req.ExpectedRevision) {
		return fmt.Errorf("%w: expected revision %s", database.ErrRevisionConflict, req.ExpectedRevision)
	}

	if req.IsDefault() {
		delete(m.annotations, key)
		return nil
	}

	a := &database.Annotation{
		Username:       req.Username,
		MovieID:        req.MovieID,
		ClusterID:      req.ClusterID,
		Label:          req.Label,
		Status:         req.Status,
		NImages:        len(req.Images),
		ProcessingTime: req.TimeDelta,
		CreatedOn:      time.Now().UTC(),
		Images:         append([]database.ImageAnnotation(nil), req.Images...),
	}
	if exists {
		a.ID = existing.ID
		a.ProcessingTime += existing.ProcessingTime
	} else {
		m.nextID++
		a.ID = m.nextID
	}
	m.revision++
	a.Revision = fmt.Sprintf("rev-%d", m.revision)
	m.annotations[key] = a
	return nil
}

// GetAnnotation returns the caller's annotation, else the most recent one of any user
func (m *MockAnnotationStore) GetAnnotation(ctx context.Context, username string, movieID, clusterID int) (*database.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetError != nil {
		return nil, m.GetError
	}

	if a, ok := m.annotations[annotationKey{username, movieID, clusterID}]; ok {
		return cloneAnnotation(a), nil
	}

	var latest *database.Annotation
	for _, a := range m.annotations {
		if a.MovieID != movieID || a.ClusterID != clusterID {
			continue
		}
		if latest == nil || a.CreatedOn.After(latest.CreatedOn) ||
			(a.CreatedOn.Equal(latest.CreatedOn) && a.ID > latest.ID) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneAnnotation(latest), nil
}

// GetAnnotationCounts returns the number of labeled clusters per movie
func (m *MockAnnotationStore) GetAnnotationCounts(ctx context.Context, movieID *int) (map[int]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.CountsError != nil {
		return nil, m.CountsError
	}

	type movieCluster struct{ movieID, clusterID int }
	labeled := make(map[movieCluster]struct{})
	for _, a := range m.annotations {
		if a.Label == nil || (movieID != nil && a.MovieID != *movieID) {
			continue
		}
		labeled[movieCluster{a.MovieID, a.ClusterID}] = struct{}{}
	}

	counts := make(map[int]int)
	for mc := range labeled {
		counts[mc.movieID]++
	}
	return counts, nil
}

// GetActorCounts returns confirmed image counts per actor
func (m *MockAnnotationStore) GetActorCounts(ctx context.Context, movieID int) (*database.ActorCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ActorCountsError != nil {
		return nil, m.ActorCountsError
	}

	counts := &database.ActorCounts{Global: make(map[int]int), Movie: make(map[int]int)}
	for _, a := range m.annotations {
		if a.Status != database.ClusterLabeled || a.Label == nil {
			continue
		}
		for _, img := range a.Images {
			if img.Status != database.ImageSame {
				continue
			}
			counts.Global[*a.Label]++
			if a.MovieID == movieID {
				counts.Movie[*a.Label]++
			}
		}
	}
	return counts, nil
}

// ExportLabels calls fn for every image of every non-default annotation, ordered by id
func (m *MockAnnotationStore) ExportLabels(ctx context.Context, fn func(database.LabelExportRow) error) error {
	m.mu.RLock()
	if m.ExportError != nil {
		m.mu.RUnlock()
		return m.ExportError
	}
	annotations := make([]database.Annotation, 0, len(m.annotations))
	for _, a := range m.annotations {
		if a.Status != database.ClusterLabeled || a.Label != nil {
			annotations = append(annotations, *cloneAnnotation(a))
		}
	}
	m.mu.RUnlock()

	sort.Slice(annotations, func(i, j int) bool { return annotations[i].ID < annotations[j].ID })
	for _, a := range annotations {
		for _, img := range a.Images {
			err := fn(database.LabelExportRow{
				ID:             a.ID,
				Username:       a.Username,
				MovieID:        a.MovieID,
				ClusterID:      a.ClusterID,
				ClusterStatus:  a.Status,
				Label:          a.Label,
				NImages:        a.NImages,
				CreatedOn:      a.CreatedOn,
				ProcessingTime: a.ProcessingTime,
				Tag:            img.Tag,
				ImageStatus:    img.Status,
				Trajectory:     img.Trajectory,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	_ database.AnnotationWriter   = (*MockAnnotationStore)(nil)
	_ database.AnnotationExporter = (*MockAnnotationStore)(nil)
)
