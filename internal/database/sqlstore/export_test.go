package sqlstore

import "time"

// SetClock replaces the time source used for created_on.
func (r *AnnotationRepository) SetClock(now func() time.Time) {
	r.now = now
}
