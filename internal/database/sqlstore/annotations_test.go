package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kozaktomas/face-annotator/internal/database"
	"github.com/kozaktomas/face-annotator/internal/database/sqlite"
	"github.com/kozaktomas/face-annotator/internal/database/sqlstore"
)

func setupRepo(t *testing.T) (*sqlstore.AnnotationRepository, *sqlstore.DB) {
	t.Helper()

	db, err := sqlite.Initialize(context.Background(), sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := sqlstore.NewAnnotationRepository(db)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return repo, db
}

func intPtr(v int) *int { return &v }

func countRows(t *testing.T, db *sqlstore.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func mustSave(t *testing.T, repo *sqlstore.AnnotationRepository, req database.SaveRequest) {
	t.Helper()
	if err := repo.SaveAnnotation(context.Background(), req); err != nil {
		t.Fatalf("SaveAnnotation(%s, %d, %d) failed: %v", req.Username, req.MovieID, req.ClusterID, err)
	}
}

func TestSaveAnnotation_AccumulatesTime(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()

	mustSave(t, repo, database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 3,
		Label: intPtr(7), Status: database.ClusterLabeled,
		Images: []database.ImageAnnotation{
			{Tag: "100:5:1_2_3_4", Status: database.ImageSame, Trajectory: 0},
			{Tag: "100:9:1_2_3_4", Status: database.ImageDifferent, Trajectory: 1},
		},
		TimeDelta: 500,
	})

	got, err := repo.GetAnnotation(ctx, "alice", 100, 3)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected annotation, got nil")
	}
	if got.ProcessingTime != 500 || got.NImages != 2 || len(got.Images) != 2 {
		t.Errorf("unexpected first annotation: %+v", got)
	}
	firstRevision := got.Revision

	mustSave(t, repo, database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 3,
		Label: intPtr(7), Status: database.ClusterLabeled,
		Images: []database.ImageAnnotation{
			{Tag: "100:5:1_2_3_4", Status: database.ImageDifferent, Trajectory: 0},
		},
		TimeDelta: 200,
	})

	got, err = repo.GetAnnotation(ctx, "alice", 100, 3)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if got.ProcessingTime != 700 {
		t.Errorf("expected processing time 700, got %d", got.ProcessingTime)
	}
	expected := []database.ImageAnnotation{
		{Tag: "100:5:1_2_3_4", Status: database.ImageDifferent, Trajectory: 0},
	}
	if diff := cmp.Diff(expected, got.Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if got.Revision == firstRevision {
		t.Error("expected a new revision after save")
	}
	if n := countRows(t, db, "clusters"); n != 1 {
		t.Errorf("expected 1 cluster row, got %d", n)
	}
	if n := countRows(t, db, "images"); n != 1 {
		t.Errorf("expected 1 image row, got %d", n)
	}
}

func TestSaveAnnotation_Idempotent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	req := database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 1,
		Status: database.ClusterMixed,
		Images: []database.ImageAnnotation{
			{Tag: "100:5:1_2_3_4", Status: database.ImageInvalid, Trajectory: 2},
		},
		TimeDelta: 300,
	}
	mustSave(t, repo, req)
	first, _ := repo.GetAnnotation(ctx, "alice", 100, 1)

	req.TimeDelta = 0
	mustSave(t, repo, req)
	mustSave(t, repo, req)
	second, _ := repo.GetAnnotation(ctx, "alice", 100, 1)

	ignore := cmp.FilterPath(func(p cmp.Path) bool {
		name := p.Last().String()
		return name == ".CreatedOn" || name == ".Revision"
	}, cmp.Ignore())
	if diff := cmp.Diff(first, second, ignore); diff != "" {
		t.Errorf("annotation changed after zero-time saves (-first +second):\n%s", diff)
	}
}

func TestSaveAnnotation_DefaultCollapse(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()

	defaultReq := database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 4,
		Status: database.ClusterLabeled,
		Images: []database.ImageAnnotation{
			{Tag: "100:5:1_2_3_4", Status: database.ImageSame},
		},
		TimeDelta: 100,
	}

	// Nothing stored yet: a default save writes nothing.
	mustSave(t, repo, defaultReq)
	if n := countRows(t, db, "clusters"); n != 0 {
		t.Fatalf("expected no rows after default save, got %d", n)
	}

	mustSave(t, repo, database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 4,
		Label: intPtr(9), Status: database.ClusterLabeled,
		Images: []database.ImageAnnotation{
			{Tag: "100:5:1_2_3_4", Status: database.ImageSame},
		},
		TimeDelta: 400,
	})

	mustSave(t, repo, defaultReq)
	got, err := repo.GetAnnotation(ctx, "alice", 100, 4)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected annotation to be removed, got %+v", got)
	}
	if n := countRows(t, db, "images"); n != 0 {
		t.Errorf("expected no image rows, got %d", n)
	}

	// Accumulated time is lost when the cluster returns to default.
	mustSave(t, repo, database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 4,
		Status: database.ClusterDiscarded, TimeDelta: 50,
	})
	got, _ = repo.GetAnnotation(ctx, "alice", 100, 4)
	if got.ProcessingTime != 50 {
		t.Errorf("expected processing time to restart at 50, got %d", got.ProcessingTime)
	}
}

func TestSaveAnnotation_RollsBackOnFailure(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()

	mustSave(t, repo, database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 3,
		Label: intPtr(7), Status: database.ClusterLabeled,
		Images: []database.ImageAnnotation{
			{Tag: "100:5:1_2_3_4", Status: database.ImageDifferent},
		},
		TimeDelta: 500,
	})

	if _, err := db.Exec(ctx, `
		CREATE TRIGGER fail_on_boom BEFORE INSERT ON images
		WHEN NEW.tag = 'boom'
		BEGIN SELECT RAISE(ABORT, 'boom'); END
	`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	err := repo.SaveAnnotation(ctx, database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 3,
		Label: intPtr(8), Status: database.ClusterLabeled,
		Images: []database.ImageAnnotation{
			{Tag: "100:6:1_2_3_4", Status: database.ImageSame},
			{Tag: "boom", Status: database.ImageSame},
		},
		TimeDelta: 200,
	})
	if !errors.Is(err, database.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}

	got, err := repo.GetAnnotation(ctx, "alice", 100, 3)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if got.ProcessingTime != 500 || *got.Label != 7 {
		t.Errorf("expected previous state to survive, got time=%d label=%d", got.ProcessingTime, *got.Label)
	}
	if len(got.Images) != 1 || got.Images[0].Tag != "100:5:1_2_3_4" {
		t.Errorf("expected previous images to survive, got %+v", got.Images)
	}
}

func TestSaveAnnotation_Invalid(t *testing.T) {
	repo, db := setupRepo(t)

	err := repo.SaveAnnotation(context.Background(), database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 3,
		Status: "unknown", TimeDelta: 10,
	})
	if !errors.Is(err, database.ErrInvalidAnnotation) {
		t.Errorf("expected ErrInvalidAnnotation, got %v", err)
	}
	if n := countRows(t, db, "clusters"); n != 0 {
		t.Errorf("expected nothing written, got %d rows", n)
	}
}

func TestSaveAnnotation_RevisionConflict(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	req := database.SaveRequest{
		Username: "alice", MovieID: 100, ClusterID: 3,
		Status: database.ClusterPostponed, TimeDelta: 100,
	}

	req.ExpectedRevision = "no-such-revision"
	if err := repo.SaveAnnotation(ctx, req); !errors.Is(err, database.ErrRevisionConflict) {
		t.Fatalf("expected ErrRevisionConflict for missing row, got %v", err)
	}

	req.ExpectedRevision = ""
	mustSave(t, repo, req)
	stored, _ := repo.GetAnnotation(ctx, "alice", 100, 3)

	req.ExpectedRevision = stored.Revision
	mustSave(t, repo, req)

	// The first save changed the revision, so a second save from the same view fails.
	err := repo.SaveAnnotation(ctx, req)
	if !errors.Is(err, database.ErrRevisionConflict) {
		t.Fatalf("expected ErrRevisionConflict, got %v", err)
	}
	if errors.Is(err, database.ErrStorage) {
		t.Error("revision conflict must not be reported as a storage failure")
	}

	got, _ := repo.GetAnnotation(ctx, "alice", 100, 3)
	if got.ProcessingTime != 200 {
		t.Errorf("expected processing time 200, got %d", got.ProcessingTime)
	}
}

func TestGetAnnotation_NotAnnotated(t *testing.T) {
	repo, _ := setupRepo(t)

	got, err := repo.GetAnnotation(context.Background(), "alice", 100, 3)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestGetAnnotation_PrefersCallerThenMostRecent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	mustSave(t, repo, database.SaveRequest{
		Username: "bob", MovieID: 100, ClusterID: 3,
		Label: intPtr(1), Status: database.ClusterLabeled, TimeDelta: 10,
	})
	mustSave(t, repo, database.SaveRequest{
		Username: "carol", MovieID: 100, ClusterID: 3,
		Label: intPtr(2), Status: database.ClusterLabeled, TimeDelta: 20,
	})

	tests := []struct {
		username     string
		wantUsername string
		wantLabel    int
	}{
		{"bob", "bob", 1},
		{"carol", "carol", 2},
		{"alice", "carol", 2},
	}

	for _, tc := range tests {
		t.Run(tc.username, func(t *testing.T) {
			got, err := repo.GetAnnotation(ctx, tc.username, 100, 3)
			if err != nil {
				t.Fatalf("GetAnnotation failed: %v", err)
			}
			if got.Username != tc.wantUsername || *got.Label != tc.wantLabel {
				t.Errorf("got %s/%d, want %s/%d", got.Username, *got.Label, tc.wantUsername, tc.wantLabel)
			}
		})
	}
}

func TestGetAnnotationCounts(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for _, req := range []database.SaveRequest{
		{Username: "alice", MovieID: 100, ClusterID: 1, Label: intPtr(7), Status: database.ClusterLabeled},
		{Username: "bob", MovieID: 100, ClusterID: 1, Label: intPtr(8), Status: database.ClusterLabeled},
		{Username: "alice", MovieID: 100, ClusterID: 2, Label: intPtr(7), Status: database.ClusterLabeled},
		{Username: "alice", MovieID: 200, ClusterID: 5, Label: intPtr(3), Status: database.ClusterMixed},
		{Username: "alice", MovieID: 300, ClusterID: 1, Status: database.ClusterDiscarded},
	} {
		mustSave(t, repo, req)
	}

	counts, err := repo.GetAnnotationCounts(ctx, nil)
	if err != nil {
		t.Fatalf("GetAnnotationCounts failed: %v", err)
	}
	if diff := cmp.Diff(map[int]int{100: 2, 200: 1}, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if counts[300] != 0 {
		t.Errorf("expected 0 labeled clusters for movie 300, got %d", counts[300])
	}

	movie := 200
	counts, err = repo.GetAnnotationCounts(ctx, &movie)
	if err != nil {
		t.Fatalf("GetAnnotationCounts failed: %v", err)
	}
	if diff := cmp.Diff(map[int]int{200: 1}, counts); diff != "" {
		t.Errorf("filtered counts mismatch (-want +got):\n%s", diff)
	}
}

func TestGetActorCounts(t *testing.T) {
	repo, _ := setupRepo(t)

	for _, req := range []database.SaveRequest{
		{
			Username: "alice", MovieID: 100, ClusterID: 1, Label: intPtr(7), Status: database.ClusterLabeled,
			Images: []database.ImageAnnotation{
				{Tag: "a", Status: database.ImageSame},
				{Tag: "b", Status: database.ImageSame},
				{Tag: "c", Status: database.ImageDifferent},
			},
		},
		{
			Username: "alice", MovieID: 200, ClusterID: 1, Label: intPtr(7), Status: database.ClusterLabeled,
			Images: []database.ImageAnnotation{{Tag: "d", Status: database.ImageSame}},
		},
		{
			Username: "alice", MovieID: 100, ClusterID: 2, Label: intPtr(8), Status: database.ClusterMixed,
			Images: []database.ImageAnnotation{{Tag: "e", Status: database.ImageSame}},
		},
	} {
		mustSave(t, repo, req)
	}

	got, err := repo.GetActorCounts(context.Background(), 100)
	if err != nil {
		t.Fatalf("GetActorCounts failed: %v", err)
	}
	expected := &database.ActorCounts{
		Global: map[int]int{7: 3},
		Movie:  map[int]int{7: 2},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("actor counts mismatch (-want +got):\n%s", diff)
	}
}

func TestExportLabels(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for _, req := range []database.SaveRequest{
		{
			Username: "alice", MovieID: 100, ClusterID: 1, Label: intPtr(7), Status: database.ClusterLabeled,
			Images: []database.ImageAnnotation{{Tag: "a", Status: database.ImageSame, Trajectory: 4}},
		},
		{
			Username: "alice", MovieID: 100, ClusterID: 2, Status: database.ClusterDiscarded,
			Images: []database.ImageAnnotation{{Tag: "b", Status: database.ImageSame, Trajectory: 5}},
		},
		{
			// labeled without label: only image statuses changed, not exported
			Username: "alice", MovieID: 100, ClusterID: 3, Status: database.ClusterLabeled,
			Images: []database.ImageAnnotation{{Tag: "c", Status: database.ImageInvalid, Trajectory: 6}},
		},
	} {
		mustSave(t, repo, req)
	}

	var tags []string
	err := repo.ExportLabels(ctx, func(row database.LabelExportRow) error {
		tags = append(tags, row.Tag)
		if row.Username != "alice" || row.MovieID != 100 {
			t.Errorf("unexpected row header: %+v", row)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExportLabels failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, tags); diff != "" {
		t.Errorf("exported tags mismatch (-want +got):\n%s", diff)
	}

	stop := errors.New("stop")
	err = repo.ExportLabels(ctx, func(database.LabelExportRow) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error to be returned, got %v", err)
	}
}

func TestStorageFailure(t *testing.T) {
	repo, db := setupRepo(t)
	db.Close()
	ctx := context.Background()

	if _, err := repo.GetAnnotation(ctx, "alice", 1, 1); !errors.Is(err, database.ErrStorage) {
		t.Errorf("GetAnnotation: expected ErrStorage, got %v", err)
	}
	if _, err := repo.GetAnnotationCounts(ctx, nil); !errors.Is(err, database.ErrStorage) {
		t.Errorf("GetAnnotationCounts: expected ErrStorage, got %v", err)
	}
	err := repo.SaveAnnotation(ctx, database.SaveRequest{
		Username: "alice", MovieID: 1, ClusterID: 1, Status: database.ClusterDiscarded,
	})
	if !errors.Is(err, database.ErrStorage) {
		t.Errorf("SaveAnnotation: expected ErrStorage, got %v", err)
	}
}
