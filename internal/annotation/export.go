package annotation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kozaktomas/face-annotator/internal/database"
)

var exportHeader = []string{
	"annotation_id", "username", "movie_id", "cluster_id", "cluster_status", "label",
	"n_images", "created_on", "processing_time_ms", "tag", "image_status", "trajectory",
}

// ExportCSV writes one CSV row per annotated image and returns the number of rows.
func ExportCSV(ctx context.Context, exporter database.AnnotationExporter, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	var writeErr error
	err := exporter.ExportLabels(ctx, func(row database.LabelExportRow) error {
		label := ""
		if row.Label != nil {
			label = strconv.Itoa(*row.Label)
		}
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.Username,
			strconv.Itoa(row.MovieID),
			strconv.Itoa(row.ClusterID),
			string(row.ClusterStatus),
			label,
			strconv.Itoa(row.NImages),
			row.CreatedOn.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(row.ProcessingTime, 10),
			row.Tag,
			string(row.ImageStatus),
			strconv.Itoa(row.Trajectory),
		}
		if err := cw.Write(record); err != nil {
			writeErr = fmt.Errorf("write row: %w", err)
			return writeErr
		}
		n++
		return nil
	})
	if writeErr != nil && errors.Is(err, writeErr) {
		return n, writeErr
	}
	cw.Flush()
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}
