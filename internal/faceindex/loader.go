package faceindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// File layout of a movie data directory produced by the extraction pipeline.
const (
	dataDirSuffix    = "-data"
	trajectoriesFile = "trajectories.jsonl"
	clustersFile     = "clusters.json"
	predictionsFile  = "predictions.json"
	imagesDir        = "images"
)

// DefaultFPS is used when the frame rate of a movie is unknown.
const DefaultFPS = 25.0

// LoadOptions configures LoadRepository.
type LoadOptions struct {
	DataDir  string // contains <movie_id>-data directories
	FilmsDir string // contains <movie_id>-<name>.<ext> movie files (optional)

	ItemsPerTrajectory int
	DefaultFPS         float64

	// RequireMovieFile fails a movie whose media file is missing.
	RequireMovieFile bool
	// Strict aborts the whole load on the first failed movie. Otherwise failed
	// movies are left out and reported.
	Strict bool
	// Workers bounds concurrent movie loads (1 if zero).
	Workers int

	// Progress is called once per movie directory after it was processed.
	Progress func(dir string, err error)
}

type clustersDocument struct {
	Clusters []int `json:"clusters"`
}

type predictionsDocument struct {
	Predictions map[string]map[string]float64 `json:"predictions"`
}

// LoadRepository reads every movie data directory and builds the repository.
// Movies that failed to load are returned as errors next to the repository
// unless opts.Strict is set, in which case the first failure is returned.
func LoadRepository(ctx context.Context, opts LoadOptions) (*Repository, []error, error) {
	dirs, err := filepath.Glob(filepath.Join(opts.DataDir, "*"+dataDirSuffix))
	if err != nil {
		return nil, nil, fmt.Errorf("list data directories: %w", err)
	}
	sort.Strings(dirs)

	moviePaths, err := findMovieFiles(opts.FilmsDir)
	if err != nil {
		return nil, nil, err
	}

	workers := max(opts.Workers, 1)
	results := make([]*MovieIndex, len(dirs))
	errs := make([]error, len(dirs))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, dir := range dirs {
		wg.Add(1)
		go func(i int, dir string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = loadMovie(dir, moviePaths, opts)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("load %s: %w", filepath.Base(dir), errs[i])
			}
			if opts.Progress != nil {
				opts.Progress(dir, errs[i])
			}
		}(i, dir)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("load movies: %w", err)
	}

	var movies []*MovieIndex
	var failed []error
	for i := range dirs {
		if errs[i] != nil {
			if opts.Strict {
				return nil, nil, errs[i]
			}
			failed = append(failed, errs[i])
			continue
		}
		movies = append(movies, results[i])
	}

	repo, err := NewRepository(movies)
	if err != nil {
		return nil, nil, err
	}
	return repo, failed, nil
}

// parseMovieID extracts the leading numeric id of "<id>-..." names.
func parseMovieID(name string) (int, error) {
	prefix, _, _ := strings.Cut(name, "-")
	id, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("no movie id in %q", name)
	}
	return id, nil
}

// findMovieFiles maps movie ids to media files. Names without a numeric id prefix are ignored.
func findMovieFiles(filmsDir string) (map[int]string, error) {
	paths := make(map[int]string)
	if filmsDir == "" {
		return paths, nil
	}
	entries, err := os.ReadDir(filmsDir)
	if err != nil {
		return nil, fmt.Errorf("read films directory: %w", err)
	}
	// os.ReadDir sorts by name; for several files of one movie the last one wins.
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, err := parseMovieID(e.Name())
		if err != nil {
			continue
		}
		paths[id] = filepath.Join(filmsDir, e.Name())
	}
	return paths, nil
}

func loadMovie(dir string, moviePaths map[int]string, opts LoadOptions) (*MovieIndex, error) {
	movieID, err := parseMovieID(filepath.Base(dir))
	if err != nil {
		return nil, err
	}

	images, err := ReadImageSet(filepath.Join(dir, imagesDir))
	if err != nil {
		return nil, err
	}

	trajectories, err := readTrajectoriesFile(movieID, filepath.Join(dir, trajectoriesFile))
	if err != nil {
		return nil, err
	}
	if err := FilterImages(movieID, trajectories, images); err != nil {
		return nil, err
	}

	var clusters clustersDocument
	if err := readJSONFile(filepath.Join(dir, clustersFile), &clusters); err != nil {
		return nil, err
	}

	predictions, err := readPredictions(movieID, filepath.Join(dir, predictionsFile))
	if err != nil {
		return nil, err
	}

	index, err := Build(BuildInput{
		MovieID:            movieID,
		Trajectories:       trajectories,
		Assignment:         clusters.Clusters,
		Predictions:        predictions,
		ItemsPerTrajectory: opts.ItemsPerTrajectory,
	})
	if err != nil {
		return nil, err
	}

	index.Dir = dir
	index.FPS = opts.DefaultFPS
	if index.FPS <= 0 {
		index.FPS = DefaultFPS
	}
	if path, ok := moviePaths[movieID]; ok {
		index.MoviePath = path
	} else if opts.RequireMovieFile {
		return nil, integrityErrorf(movieID, "movie file not found in %s", opts.FilmsDir)
	} else {
		fmt.Printf("Warning: movie file not found for %d\n", movieID)
	}

	return index, nil
}

func readTrajectoriesFile(movieID int, path string) ([]Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectories: %w", err)
	}
	defer f.Close()

	trajectories, err := ReadTrajectories(f)
	if errors.Is(err, errMalformedBox) {
		return nil, integrityErrorf(movieID, "%v", err)
	}
	return trajectories, err
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readPredictions converts the string keys of the prediction document to ids.
func readPredictions(movieID int, path string) (Predictions, error) {
	var doc predictionsDocument
	if err := readJSONFile(path, &doc); err != nil {
		return nil, err
	}
	return ParsePredictions(movieID, doc.Predictions)
}

// ParsePredictions converts a JSON prediction map keyed by decimal strings.
func ParsePredictions(movieID int, raw map[string]map[string]float64) (Predictions, error) {
	preds := make(Predictions, len(raw))
	for clusterKey, actors := range raw {
		clusterID, err := strconv.Atoi(clusterKey)
		if err != nil {
			return nil, integrityErrorf(movieID, "prediction cluster key %q is not an integer", clusterKey)
		}
		byActor := make(map[int]float64, len(actors))
		for actorKey, p := range actors {
			actorID, err := strconv.Atoi(actorKey)
			if err != nil {
				return nil, integrityErrorf(movieID, "prediction actor key %q is not an integer", actorKey)
			}
			byActor[actorID] = p
		}
		preds[clusterID] = byActor
	}
	return preds, nil
}

// IsIntegrityError reports whether err is caused by inconsistent extraction output.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
