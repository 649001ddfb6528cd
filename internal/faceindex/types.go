// Package faceindex builds the per-movie cluster index from the face extraction
// pipeline output: trajectories, cluster assignments and actor predictions.
package faceindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Box is a face bounding box [x1, y1, x2, y2] in raw frame pixel coordinates.
type Box [4]int

var errMalformedBox = errors.New("bounding box must have 4 coordinates")

// UnmarshalJSON rejects boxes that do not have exactly four coordinates.
func (b *Box) UnmarshalJSON(data []byte) error {
	var coords []int
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != len(b) {
		return fmt.Errorf("%w, got %d", errMalformedBox, len(coords))
	}
	copy(b[:], coords)
	return nil
}

// Detection is a single face detection: a frame index and its bounding box.
// It is comparable and used as the key of the image to trajectory map.
type Detection struct {
	Frame int
	Box   Box
}

// Trajectory is a temporally contiguous sequence of detections of one face.
type Trajectory struct {
	Index int   `json:"index"`
	Start int   `json:"start"`
	BBs   []Box `json:"bbs"`

	// ImageBBs holds only the detections that have a stored face image.
	ImageBBs []Detection `json:"-"`
}

// Sample is one displayed image of a cluster.
type Sample struct {
	TrajectoryID int
	Detection
}

// Cluster is a machine-proposed group of trajectories believed to show the same person.
type Cluster struct {
	ID            int
	Samples       []Sample
	NTrajectories int
	NShownImages  int // images sent to reviewers
	NTotalImages  int // all valid detections of the contributing trajectories
}

// Predictions maps cluster id to actor id to probability.
type Predictions map[int]map[int]float64

// ActorsAbove returns actor ids whose probability is strictly above minP, sorted ascending.
func (p Predictions) ActorsAbove(clusterID int, minP float64) []int {
	actors := []int{}
	for actorID, prob := range p[clusterID] {
		if prob > minP {
			actors = append(actors, actorID)
		}
	}
	sort.Ints(actors)
	return actors
}

// MovieIndex is the immutable index of one movie.
type MovieIndex struct {
	ID        int
	Dir       string
	MoviePath string // empty if the movie file was not found
	FPS       float64

	Clusters      map[int]*Cluster
	TrajectoryMap map[Detection]int // displayed detection -> trajectory index
	Predictions   Predictions
}

// Cluster returns a cluster by id.
func (m *MovieIndex) Cluster(id int) (*Cluster, bool) {
	c, ok := m.Clusters[id]
	return c, ok
}

// TrajectoryFor looks up the trajectory of a displayed detection.
func (m *MovieIndex) TrajectoryFor(d Detection) (int, bool) {
	t, ok := m.TrajectoryMap[d]
	return t, ok
}

// IntegrityError reports inconsistent extraction output. A movie that fails with
// an IntegrityError must not be served.
type IntegrityError struct {
	MovieID int
	Reason  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("movie %d: integrity: %s", e.MovieID, e.Reason)
}

func integrityErrorf(movieID int, format string, args ...any) error {
	return &IntegrityError{MovieID: movieID, Reason: fmt.Sprintf(format, args...)}
}
