package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-annotator/internal/database"
)

const maxSaveAttempts = 3

// AnnotationRepository stores cluster annotations in the clusters and images tables.
type AnnotationRepository struct {
	db  *DB
	now func() time.Time
}

// NewAnnotationRepository creates a repository on top of an open, migrated pool.
func NewAnnotationRepository(db *DB) *AnnotationRepository {
	return &AnnotationRepository{
		db: db,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// storageErr marks err as a failure of the backing store.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, database.ErrStorage, err)
}

// SaveAnnotation implements database.AnnotationWriter.
func (r *AnnotationRepository) SaveAnnotation(ctx context.Context, req database.SaveRequest) error {
	if err := database.ValidateSaveRequest(&req); err != nil {
		return err
	}

	var err error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		err = r.saveOnce(ctx, &req)
		if err == nil || errors.Is(err, database.ErrRevisionConflict) {
			return err
		}
		if ctx.Err() != nil || !r.db.retryable(err) {
			break
		}
	}
	return storageErr("save annotation", err)
}

func (r *AnnotationRepository) saveOnce(ctx context.Context, req *database.SaveRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		headerID int64
		revision string
		exists   = true
	)
	err = tx.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, revision FROM clusters
		WHERE username = $1 AND movie_id = $2 AND cluster_id = $3`+r.db.dialect.LockClause),
		req.Username, req.MovieID, req.ClusterID,
	).Scan(&headerID, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("lookup annotation: %w", err)
	}

	if req.ExpectedRevision != "" && (!exists || revision != req.ExpectedRevision) {
		return fmt.Errorf("%w: expected revision %s", database.ErrRevisionConflict, req.ExpectedRevision)
	}

	if req.IsDefault() {
		if !exists {
			return nil
		}
		if err := deleteAnnotation(ctx, tx, r.db, headerID); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	}

	var label sql.NullInt64
	if req.Label != nil {
		label = sql.NullInt64{Int64: int64(*req.Label), Valid: true}
	}

	err = tx.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO clusters (username, movie_id, cluster_id, status, label, n_images, processing_time, created_on, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (username, movie_id, cluster_id) DO UPDATE SET
			status = EXCLUDED.status,
			label = EXCLUDED.label,
			n_images = EXCLUDED.n_images,
			processing_time = clusters.processing_time + EXCLUDED.processing_time,
			created_on = EXCLUDED.created_on,
			revision = EXCLUDED.revision
		RETURNING id`),
		req.Username, req.MovieID, req.ClusterID, string(req.Status), label,
		len(req.Images), req.TimeDelta, r.now(), uuid.NewString(),
	).Scan(&headerID)
	if err != nil {
		return fmt.Errorf("upsert annotation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, r.db.Rebind("DELETE FROM images WHERE cluster_id = $1"), headerID); err != nil {
		return fmt.Errorf("delete existing images: %w", err)
	}

	if err := insertImages(ctx, tx, r.db, headerID, req.Images); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func deleteAnnotation(ctx context.Context, tx *sql.Tx, db *DB, headerID int64) error {
	if _, err := tx.ExecContext(ctx, db.Rebind("DELETE FROM images WHERE cluster_id = $1"), headerID); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}
	if _, err := tx.ExecContext(ctx, db.Rebind("DELETE FROM clusters WHERE id = $1"), headerID); err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	return nil
}

func insertImages(ctx context.Context, tx *sql.Tx, db *DB, headerID int64, images []database.ImageAnnotation) error {
	if len(images) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, db.Rebind(`
		INSERT INTO images (cluster_id, tag, status, trajectory)
		VALUES ($1, $2, $3, $4)
	`))
	if err != nil {
		return fmt.Errorf("prepare image insert: %w", err)
	}
	defer stmt.Close()

	for _, img := range images {
		if _, err := stmt.ExecContext(ctx, headerID, img.Tag, string(img.Status), img.Trajectory); err != nil {
			return fmt.Errorf("insert image %s: %w", img.Tag, err)
		}
	}
	return nil
}

// GetAnnotation implements database.AnnotationReader.
func (r *AnnotationRepository) GetAnnotation(ctx context.Context, username string, movieID, clusterID int) (*database.Annotation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, label, status, n_images, processing_time, created_on, revision
		FROM clusters
		WHERE movie_id = $1 AND cluster_id = $2
		ORDER BY created_on DESC, id DESC
	`, movieID, clusterID)
	if err != nil {
		return nil, storageErr("get annotation", err)
	}

	var chosen *database.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			rows.Close()
			return nil, storageErr("get annotation", err)
		}
		if chosen == nil || (a.Username == username && chosen.Username != username) {
			chosen = a
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("get annotation", err)
	}
	rows.Close()

	if chosen == nil {
		return nil, nil
	}
	chosen.MovieID = movieID
	chosen.ClusterID = clusterID

	images, err := r.getImages(ctx, chosen.ID)
	if err != nil {
		return nil, storageErr("get annotation images", err)
	}
	chosen.Images = images
	return chosen, nil
}

func scanAnnotation(rows *sql.Rows) (*database.Annotation, error) {
	var (
		a      database.Annotation
		label  sql.NullInt64
		status string
	)
	if err := rows.Scan(&a.ID, &a.Username, &label, &status, &a.NImages, &a.ProcessingTime, &a.CreatedOn, &a.Revision); err != nil {
		return nil, fmt.Errorf("scan annotation: %w", err)
	}
	if label.Valid {
		l := int(label.Int64)
		a.Label = &l
	}
	a.Status = database.ClusterStatus(status)
	return &a, nil
}

func (r *AnnotationRepository) getImages(ctx context.Context, headerID int64) ([]database.ImageAnnotation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tag, status, trajectory FROM images WHERE cluster_id = $1 ORDER BY id
	`, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []database.ImageAnnotation
	for rows.Next() {
		var (
			img    database.ImageAnnotation
			status string
		)
		if err := rows.Scan(&img.Tag, &status, &img.Trajectory); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		img.Status = database.ImageStatus(status)
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

// GetAnnotationCounts implements database.AnnotationReader.
func (r *AnnotationRepository) GetAnnotationCounts(ctx context.Context, movieID *int) (map[int]int, error) {
	query := `
		SELECT movie_id, COUNT(DISTINCT cluster_id)
		FROM clusters
		WHERE label IS NOT NULL`
	var args []any
	if movieID != nil {
		query += " AND movie_id = $1"
		args = append(args, *movieID)
	}
	query += " GROUP BY movie_id"

	counts, err := r.countByKey(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get annotation counts", err)
	}
	return counts, nil
}

// GetActorCounts implements database.AnnotationReader.
func (r *AnnotationRepository) GetActorCounts(ctx context.Context, movieID int) (*database.ActorCounts, error) {
	const base = `
		SELECT c.label, COUNT(*)
		FROM clusters c
		JOIN images i ON i.cluster_id = c.id
		WHERE c.status = $1 AND c.label IS NOT NULL AND i.status = $2`

	global, err := r.countByKey(ctx, base+" GROUP BY c.label",
		string(database.ClusterLabeled), string(database.ImageSame))
	if err != nil {
		return nil, storageErr("get global actor counts", err)
	}

	movie, err := r.countByKey(ctx, base+" AND c.movie_id = $3 GROUP BY c.label",
		string(database.ClusterLabeled), string(database.ImageSame), movieID)
	if err != nil {
		return nil, storageErr("get movie actor counts", err)
	}

	return &database.ActorCounts{Global: global, Movie: movie}, nil
}

// countByKey runs a two-column (key, count) query.
func (r *AnnotationRepository) countByKey(ctx context.Context, query string, args ...any) (map[int]int, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var key, count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// ExportLabels implements database.AnnotationExporter.
func (r *AnnotationRepository) ExportLabels(ctx context.Context, fn func(database.LabelExportRow) error) error {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.username, c.movie_id, c.cluster_id, c.status, c.label, c.n_images,
		       c.created_on, c.processing_time, i.tag, i.status, i.trajectory
		FROM clusters c
		JOIN images i ON i.cluster_id = c.id
		WHERE c.status <> $1 OR c.label IS NOT NULL
		ORDER BY c.id, i.id
	`, string(database.ClusterLabeled))
	if err != nil {
		return storageErr("export labels", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row           database.LabelExportRow
			label         sql.NullInt64
			clusterStatus string
			imageStatus   string
		)
		if err := rows.Scan(&row.ID, &row.Username, &row.MovieID, &row.ClusterID, &clusterStatus, &label,
			&row.NImages, &row.CreatedOn, &row.ProcessingTime, &row.Tag, &imageStatus, &row.Trajectory); err != nil {
			return storageErr("export labels", err)
		}
		if label.Valid {
			l := int(label.Int64)
			row.Label = &l
		}
		row.ClusterStatus = database.ClusterStatus(clusterStatus)
		row.ImageStatus = database.ImageStatus(imageStatus)

		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("export labels", err)
	}
	return nil
}

var (
	_ database.AnnotationWriter   = (*AnnotationRepository)(nil)
	_ database.AnnotationExporter = (*AnnotationRepository)(nil)
)
