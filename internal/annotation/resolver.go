// Package annotation combines the immutable cluster index with stored
// annotations into the views served to reviewers, and turns reviewer edits
// into store requests.
package annotation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-annotator/internal/database"
	"github.com/kozaktomas/face-annotator/internal/faceindex"
)

// DefaultPredictionMinP is the probability an actor prediction must exceed to be suggested.
const DefaultPredictionMinP = 0.40

var (
	ErrUnknownMovie   = errors.New("unknown movie")
	ErrUnknownCluster = errors.New("unknown cluster")
	// ErrUnknownImage is returned for a well-formed tag that is not displayed in the cluster.
	ErrUnknownImage = errors.New("unknown image")
	// ErrInvalidImage is returned for a tag that can't be parsed or names another movie.
	ErrInvalidImage = errors.New("invalid image")
	ErrInvalidEdit  = errors.New("invalid edit")
	// ErrStorageUnavailable is returned when the annotation store failed.
	ErrStorageUnavailable = errors.New("annotation storage unavailable")
	// ErrRevisionConflict is returned when the annotation changed since it was read.
	ErrRevisionConflict = database.ErrRevisionConflict
)

// Options configures a Resolver.
type Options struct {
	PredictionMinP float64
}

// Resolver serves cluster views and saves edits.
type Resolver struct {
	index *faceindex.Repository
	store database.AnnotationWriter
	minP  float64
}

// NewResolver creates a resolver over a built index and an annotation store.
func NewResolver(index *faceindex.Repository, store database.AnnotationWriter, opts Options) *Resolver {
	return &Resolver{
		index: index,
		store: store,
		minP:  opts.PredictionMinP,
	}
}

// Index returns the cluster index the resolver serves.
func (r *Resolver) Index() *faceindex.Repository {
	return r.index
}

// ImageView is one displayed image of a cluster with its current status.
type ImageView struct {
	Tag          string
	URL          string
	FullFrameURL string
	FrameIndex   int
	Trajectory   int
	Status       database.ImageStatus
}

// ClusterView is a cluster as shown to one reviewer.
type ClusterView struct {
	MovieID         int
	ClusterID       int
	Images          []ImageView
	Label           *int
	Status          database.ClusterStatus
	LabelTime       *time.Time // when the shown annotation was saved, nil if none
	Username        string     // author of the shown annotation, empty if none
	ProcessingTime  int64
	NTrajectories   int
	NTotalImages    int
	PredictedActors []int
	// Revision of the caller's own annotation, empty if the caller has none.
	Revision string
}

// ImageURL returns the relative URL of a face image.
func ImageURL(tag faceindex.ImageTag) string {
	return "images/" + tag.FileName()
}

// FullFrameURL returns the relative URL of the full frame with the face highlighted.
func FullFrameURL(tag faceindex.ImageTag) string {
	b := tag.Box
	return fmt.Sprintf("images/frames/%d/%d_%d-%d-%d-%d.jpeg", tag.MovieID, tag.Frame, b[0], b[1], b[2], b[3])
}

// TagFromURL accepts either a bare tag or an image URL produced by ImageURL.
func TagFromURL(s string) string {
	s = strings.TrimPrefix(s, "/")
	s = strings.TrimPrefix(s, "images/")
	return strings.TrimSuffix(s, ".jpeg")
}

func (r *Resolver) lookup(movieID, clusterID int) (*faceindex.MovieIndex, *faceindex.Cluster, error) {
	movie, ok := r.index.Movie(movieID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownMovie, movieID)
	}
	cluster, ok := movie.Cluster(clusterID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d in movie %d", ErrUnknownCluster, clusterID, movieID)
	}
	return movie, cluster, nil
}

// ClusterView returns the cluster overlaid with the annotation visible to username.
func (r *Resolver) ClusterView(ctx context.Context, username string, movieID, clusterID int) (*ClusterView, error) {
	movie, cluster, err := r.lookup(movieID, clusterID)
	if err != nil {
		return nil, err
	}

	ann, err := r.store.GetAnnotation(ctx, username, movieID, clusterID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	view := &ClusterView{
		MovieID:         movieID,
		ClusterID:       clusterID,
		Status:          database.DefaultClusterStatus,
		NTrajectories:   cluster.NTrajectories,
		NTotalImages:    cluster.NTotalImages,
		PredictedActors: movie.Predictions.ActorsAbove(clusterID, r.minP),
	}

	statuses := make(map[string]database.ImageStatus)
	if ann != nil {
		for _, img := range ann.Images {
			statuses[img.Tag] = img.Status
		}
		createdOn := ann.CreatedOn
		view.Label = ann.Label
		view.Status = ann.Status
		view.LabelTime = &createdOn
		view.Username = ann.Username
		view.ProcessingTime = ann.ProcessingTime
		if ann.Username == username {
			view.Revision = ann.Revision
		}
	}

	view.Images = make([]ImageView, 0, len(cluster.Samples))
	for _, s := range cluster.Samples {
		tag := faceindex.NewImageTag(movieID, s.Detection)
		key := tag.String()
		status, ok := statuses[key]
		if !ok {
			status = database.DefaultImageStatus
		}
		view.Images = append(view.Images, ImageView{
			Tag:          key,
			URL:          ImageURL(tag),
			FullFrameURL: FullFrameURL(tag),
			FrameIndex:   s.Frame,
			Trajectory:   s.TrajectoryID,
			Status:       status,
		})
	}

	return view, nil
}

// ImageEdit is the reviewer's status for one displayed image.
type ImageEdit struct {
	Tag    string // tag or image URL
	Status database.ImageStatus
}

// Edit is a reviewer's full decision on a cluster.
type Edit struct {
	Label     *int
	Status    database.ClusterStatus
	Images    []ImageEdit // replaces the previously saved set
	TimeDelta int64       // milliseconds spent since the last save
	Revision  string      // optional, from ClusterView.Revision
}

// Save validates an edit against the index and stores it.
func (r *Resolver) Save(ctx context.Context, username string, movieID, clusterID int, edit Edit) error {
	movie, cluster, err := r.lookup(movieID, clusterID)
	if err != nil {
		return err
	}

	images, err := resolveImages(movie, cluster, edit.Images)
	if err != nil {
		return err
	}

	err = r.store.SaveAnnotation(ctx, database.SaveRequest{
		Username:         username,
		MovieID:          movieID,
		ClusterID:        clusterID,
		Label:            edit.Label,
		Status:           edit.Status,
		Images:           images,
		TimeDelta:        edit.TimeDelta,
		ExpectedRevision: edit.Revision,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrRevisionConflict):
		return err
	case errors.Is(err, database.ErrInvalidAnnotation):
		return fmt.Errorf("%w: %w", ErrInvalidEdit, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}

// resolveImages maps every edited image to its trajectory. Nothing is written
// unless every image is displayed in the cluster.
func resolveImages(movie *faceindex.MovieIndex, cluster *faceindex.Cluster, edits []ImageEdit) ([]database.ImageAnnotation, error) {
	displayed := make(map[faceindex.Detection]struct{}, len(cluster.Samples))
	for _, s := range cluster.Samples {
		displayed[s.Detection] = struct{}{}
	}

	seen := make(map[faceindex.Detection]struct{}, len(edits))
	images := make([]database.ImageAnnotation, 0, len(edits))
	for _, e := range edits {
		tag, err := faceindex.ParseTag(TagFromURL(e.Tag))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
		if tag.MovieID != movie.ID {
			return nil, fmt.Errorf("%w: %s belongs to movie %d", ErrInvalidImage, tag, tag.MovieID)
		}
		d := tag.Detection()
		if _, dup := seen[d]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidImage, tag)
		}
		seen[d] = struct{}{}

		trajectory, ok := movie.TrajectoryFor(d)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownImage, tag)
		}
		if _, ok := displayed[d]; !ok {
			return nil, fmt.Errorf("%w: %s is not shown in cluster %d", ErrUnknownImage, tag, cluster.ID)
		}
		if !e.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown image status %q", ErrInvalidEdit, e.Status)
		}

		images = append(images, database.ImageAnnotation{
			Tag:        tag.String(),
			Status:     e.Status,
			Trajectory: trajectory,
		})
	}
	return images, nil
}

// MovieSummary describes one served movie.
type MovieSummary struct {
	MovieID          int
	NClusters        int
	NLabeledClusters int
	FPS              float64
	HasMovieFile     bool
}

// MovieSummaries returns summaries of all served movies, or of one movie if movieID is set.
func (r *Resolver) MovieSummaries(ctx context.Context, movieID *int) ([]MovieSummary, error) {
	ids := r.index.MovieIDs()
	if movieID != nil {
		if _, ok := r.index.Movie(*movieID); !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownMovie, *movieID)
		}
		ids = []int{*movieID}
	}

	counts, err := r.store.GetAnnotationCounts(ctx, movieID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	summaries := make([]MovieSummary, 0, len(ids))
	for _, id := range ids {
		movie, _ := r.index.Movie(id)
		summaries = append(summaries, MovieSummary{
			MovieID:          id,
			NClusters:        len(movie.Clusters),
			NLabeledClusters: counts[id],
			FPS:              movie.FPS,
			HasMovieFile:     movie.MoviePath != "",
		})
	}
	return summaries, nil
}

// ActorCounts returns confirmed image counts per actor, globally and for a served movie.
func (r *Resolver) ActorCounts(ctx context.Context, movieID int) (*database.ActorCounts, error) {
	if _, ok := r.index.Movie(movieID); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMovie, movieID)
	}
	counts, err := r.store.GetActorCounts(ctx, movieID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return counts, nil
}
