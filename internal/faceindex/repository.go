package faceindex

import (
	"fmt"
	"sort"
)

// Repository holds the indices of all served movies. It is built once before
// serving and never modified afterwards, so it is safe for concurrent reads.
type Repository struct {
	movies map[int]*MovieIndex
	ids    []int
}

// NewRepository creates a repository from built movie indices.
func NewRepository(movies []*MovieIndex) (*Repository, error) {
	r := &Repository{movies: make(map[int]*MovieIndex, len(movies))}
	for _, m := range movies {
		if _, dup := r.movies[m.ID]; dup {
			return nil, fmt.Errorf("duplicate movie id %d", m.ID)
		}
		r.movies[m.ID] = m
		r.ids = append(r.ids, m.ID)
	}
	sort.Ints(r.ids)
	return r, nil
}

// Movie returns the index of a movie.
func (r *Repository) Movie(id int) (*MovieIndex, bool) {
	m, ok := r.movies[id]
	return m, ok
}

// MovieIDs returns the ids of all served movies in ascending order.
func (r *Repository) MovieIDs() []int {
	return append([]int(nil), r.ids...)
}

// Len returns the number of served movies.
func (r *Repository) Len() int {
	return len(r.ids)
}
