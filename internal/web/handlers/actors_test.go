package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kozaktomas/face-annotator/internal/database"
)

func TestActorsHandler_Counts(t *testing.T) {
	resolver, store := testResolver(t)
	store.AddAnnotation(database.Annotation{
		Username: "alice", MovieID: 100, ClusterID: 0, Label: intPtr(7), Status: database.ClusterLabeled,
		Images: []database.ImageAnnotation{
			{Tag: "100:10:1_2_3_4", Status: database.ImageSame},
			{Tag: "100:18:1_2_3_4", Status: database.ImageDifferent},
		},
	})
	store.AddAnnotation(database.Annotation{
		Username: "bob", MovieID: 300, ClusterID: 4, Label: intPtr(7), Status: database.ClusterLabeled,
		Images: []database.ImageAnnotation{{Tag: "300:1:0_0_1_1", Status: database.ImageSame}},
	})
	handler := NewActorsHandler(resolver)

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/actors/100/counts", nil), map[string]string{"movieID": "100"})
	recorder := httptest.NewRecorder()

	handler.Counts(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result ActorCountsResponse
	parseJSONResponse(t, recorder, &result)

	expected := ActorCountsResponse{
		MovieID:      100,
		GlobalCounts: map[int]int{7: 2},
		MovieCounts:  map[int]int{7: 1},
	}
	if diff := cmp.Diff(expected, result); diff != "" {
		t.Errorf("actor counts mismatch (-want +got):\n%s", diff)
	}
}

func TestActorsHandler_Counts_Errors(t *testing.T) {
	tests := []struct {
		name         string
		movieID      string
		countsError  error
		expectedCode int
		expectedErr  string
	}{
		{"InvalidID", "-x", nil, http.StatusBadRequest, codeInvalidRequest},
		{"UnknownMovie", "300", nil, http.StatusNotFound, codeUnknownMovie},
		{"StorageError", "100", errors.New("broken pipe"), http.StatusInternalServerError, codeActorCountRead},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resolver, store := testResolver(t)
			store.ActorCountsError = tc.countsError
			handler := NewActorsHandler(resolver)

			req := requestWithChiParams(httptest.NewRequest("GET", "/api/actors/counts", nil), map[string]string{"movieID": tc.movieID})
			recorder := httptest.NewRecorder()

			handler.Counts(recorder, req)

			assertStatusCode(t, recorder, tc.expectedCode)
			assertErrorCode(t, recorder, tc.expectedErr)
		})
	}
}
