package faceindex

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxTrajectoryLine bounds a single JSON line; long trajectories carry thousands of boxes.
const maxTrajectoryLine = 16 * 1024 * 1024

// ImageSet is the set of face image file names available for a movie.
type ImageSet map[string]struct{}

// Has reports whether the image for a tag exists.
func (s ImageSet) Has(tag ImageTag) bool {
	_, ok := s[tag.FileName()]
	return ok
}

// ReadImageSet lists the regular files of an images directory.
func ReadImageSet(dir string) (ImageSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images directory: %w", err)
	}
	set := make(ImageSet, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		set[e.Name()] = struct{}{}
	}
	return set, nil
}

// ReadTrajectories decodes newline-delimited trajectory records.
func ReadTrajectories(r io.Reader) ([]Trajectory, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTrajectoryLine)

	var trajectories []Trajectory
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var t Trajectory
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode trajectory on line %d: %w", line, err)
		}
		trajectories = append(trajectories, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan trajectories: %w", err)
	}
	return trajectories, nil
}

// FilterImages fills ImageBBs of every trajectory with the detections that have
// a stored image. Trajectories are implicitly indexed by their position, so a
// record whose index disagrees with its position is rejected, as is a trajectory
// left without any image.
func FilterImages(movieID int, trajectories []Trajectory, images ImageSet) error {
	for i := range trajectories {
		t := &trajectories[i]
		if t.Index != i {
			return integrityErrorf(movieID, "trajectory at position %d has index %d", i, t.Index)
		}

		t.ImageBBs = t.ImageBBs[:0]
		for j, box := range t.BBs {
			d := Detection{Frame: t.Start + j, Box: box}
			if images.Has(NewImageTag(movieID, d)) {
				t.ImageBBs = append(t.ImageBBs, d)
			}
		}
		if len(t.ImageBBs) == 0 {
			return integrityErrorf(movieID, "trajectory %d has no stored images", i)
		}
	}
	return nil
}
