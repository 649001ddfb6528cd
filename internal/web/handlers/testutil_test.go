package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-annotator/internal/annotation"
	"github.com/kozaktomas/face-annotator/internal/database/mock"
	"github.com/kozaktomas/face-annotator/internal/faceindex"
	"github.com/kozaktomas/face-annotator/internal/web/middleware"
)

func testTrajectory(index, start, n int, box faceindex.Box) faceindex.Trajectory {
	t := faceindex.Trajectory{Index: index, Start: start}
	for i := 0; i < n; i++ {
		t.BBs = append(t.BBs, box)
		t.ImageBBs = append(t.ImageBBs, faceindex.Detection{Frame: start + i, Box: box})
	}
	return t
}

// testResolver creates a resolver over movie 100 with clusters 0 and 1, backed by a mock store.
// Cluster 0 shows 100:10:1_2_3_4, 100:18:1_2_3_4, 100:40:0_0_2_2 and 100:42:0_0_2_2.
func testResolver(t *testing.T) (*annotation.Resolver, *mock.MockAnnotationStore) {
	t.Helper()
	movie, err := faceindex.Build(faceindex.BuildInput{
		MovieID: 100,
		Trajectories: []faceindex.Trajectory{
			testTrajectory(0, 10, 9, faceindex.Box{1, 2, 3, 4}),
			testTrajectory(1, 30, 1, faceindex.Box{5, 5, 9, 9}),
			testTrajectory(2, 40, 3, faceindex.Box{0, 0, 2, 2}),
		},
		Assignment:         []int{0, 1, 0},
		Predictions:        faceindex.Predictions{0: {7: 0.9, 3: 0.45}, 1: {}},
		ItemsPerTrajectory: 2,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	movie.FPS = 24

	repo, err := faceindex.NewRepository([]*faceindex.MovieIndex{movie})
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}

	store := mock.NewMockAnnotationStore()
	return annotation.NewResolver(repo, store, annotation.Options{PredictionMinP: annotation.DefaultPredictionMinP}), store
}

// requestAs creates a request carrying a reviewer name in its context
func requestAs(t *testing.T, method, path, username string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	return req.WithContext(middleware.SetUsernameInContext(req.Context(), username))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertErrorCode checks if the response is a JSON error with the expected code
func assertErrorCode(t *testing.T, recorder *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["code"] != expectedCode {
		t.Errorf("expected error code '%s', got '%s'", expectedCode, result["code"])
	}
	if result["error"] == "" {
		t.Error("expected a non-empty error message")
	}
}
