package httpapi

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"go.uber.org/zap/zaptest"

	"github.com/geosentry/citation-engine/internal/status"
)

func TestParseIDs(t *testing.T) {
	cases := []struct {
		query string
		want  []int64
	}{
		{"id=7", []int64{7}},
		{"ids=1,2,3", []int64{1, 2, 3}},
		{"ids=1, 2 ,3", []int64{1, 2, 3}},
		{"", nil},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/status?"+tc.query, nil)
		got, err := parseIDs(req)
		if err != nil {
			t.Fatalf("query %q: unexpected error: %v", tc.query, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("query %q: got %v, want %v", tc.query, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("query %q: got %v, want %v", tc.query, got, tc.want)
			}
		}
	}
}

func TestParseIDs_Invalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status?id=not-a-number", nil)
	if _, err := parseIDs(req); err == nil {
		t.Error("expected an error for a non-numeric id")
	}
}

func TestStatusHandler_Get_MissingParams(t *testing.T) {
	rawDB, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer rawDB.Close()

	h := NewStatusHandler(status.New(rawDB, zaptest.NewLogger(t)), zaptest.NewLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStatusHandler_Get_None(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer rawDB.Close()

	mock.ExpectQuery("SELECT id, keywords, platforms, query_count, status, settings, result_data, created_at, updated_at").
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	h := NewStatusHandler(status.New(rawDB, zaptest.NewLogger(t)), zaptest.NewLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/status?"+url.Values{"id": {"42"}}.Encode(), nil)
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Body.String(); !strings.Contains(got, `"status":"none"`) {
		t.Errorf("body = %s, want it to report status none", got)
	}
}

func TestStatusHandler_Get_TableNotFound(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer rawDB.Close()

	mock.ExpectQuery("SELECT id, keywords, platforms, query_count, status, settings, result_data, created_at, updated_at").
		WithArgs(int64(1)).
		WillReturnError(&pq.Error{Code: "42P01"})

	h := NewStatusHandler(status.New(rawDB, zaptest.NewLogger(t)), zaptest.NewLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/status?id=1", nil)
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Body.String(); !strings.Contains(got, `"status":"table_not_found"`) {
		t.Errorf("body = %s, want it to report status table_not_found", got)
	}
}
