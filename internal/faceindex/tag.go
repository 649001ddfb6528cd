package faceindex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTag is returned when an image tag can't be parsed.
var ErrInvalidTag = errors.New("invalid image tag")

// ImageTag identifies one stored detection image.
// Its canonical string form is "movie:frame:x1_y1_x2_y2", e.g. "121614:3616:235_183_293_262".
type ImageTag struct {
	MovieID int
	Frame   int
	Box     Box
}

// NewImageTag creates a tag for a detection of a movie.
func NewImageTag(movieID int, d Detection) ImageTag {
	return ImageTag{MovieID: movieID, Frame: d.Frame, Box: d.Box}
}

// String returns the canonical tag form.
func (t ImageTag) String() string {
	return fmt.Sprintf("%d:%d:%d_%d_%d_%d", t.MovieID, t.Frame, t.Box[0], t.Box[1], t.Box[2], t.Box[3])
}

// FileName returns the face image file name stored by the extraction pipeline.
func (t ImageTag) FileName() string {
	return t.String() + ".jpeg"
}

// Detection returns the frame and box the tag encodes.
func (t ImageTag) Detection() Detection {
	return Detection{Frame: t.Frame, Box: t.Box}
}

// ParseTag parses the canonical tag form.
func ParseTag(s string) (ImageTag, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return ImageTag{}, fmt.Errorf("%w: %q", ErrInvalidTag, s)
	}

	movieID, err := strconv.Atoi(parts[0])
	if err != nil {
		return ImageTag{}, fmt.Errorf("%w: movie id in %q", ErrInvalidTag, s)
	}
	frame, err := strconv.Atoi(parts[1])
	if err != nil {
		return ImageTag{}, fmt.Errorf("%w: frame in %q", ErrInvalidTag, s)
	}

	coords := strings.Split(parts[2], "_")
	if len(coords) != 4 {
		return ImageTag{}, fmt.Errorf("%w: box in %q", ErrInvalidTag, s)
	}
	var box Box
	for i, c := range coords {
		v, err := strconv.Atoi(c)
		if err != nil {
			return ImageTag{}, fmt.Errorf("%w: box in %q", ErrInvalidTag, s)
		}
		box[i] = v
	}

	return ImageTag{MovieID: movieID, Frame: frame, Box: box}, nil
}
