package status

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"go.uber.org/zap/zaptest"
)

func TestAssignRounds(t *testing.T) {
	records := []recordRow{
		{ID: 1, TaskQueryID: 10, Platform: "deepseek"},
		{ID: 2, TaskQueryID: 10, Platform: "deepseek"},
		{ID: 3, TaskQueryID: 10, Platform: "bocha"},
		{ID: 4, TaskQueryID: 20, Platform: "deepseek"},
		{ID: 5, TaskQueryID: 10, Platform: "deepseek"},
	}

	rounds := assignRounds(records)

	want := map[int64]int{1: 1, 2: 2, 3: 1, 4: 1, 5: 3}
	for id, expected := range want {
		if rounds[id] != expected {
			t.Errorf("round of record %d = %d, want %d", id, rounds[id], expected)
		}
	}
}

func TestLowerASCII(t *testing.T) {
	cases := map[string]string{
		"DeepSeek": "deepseek",
		"Bocha":    "bocha",
		"already":  "already",
		"MIXED-1":  "mixed-1",
	}
	for in, want := range cases {
		if got := lowerASCII(in); got != want {
			t.Errorf("lowerASCII(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsTableNotFound(t *testing.T) {
	if isTableNotFound(errors.New("some other error")) {
		t.Error("expected non-pq error to not be classified as table_not_found")
	}
	if !isTableNotFound(&pq.Error{Code: "42P01"}) {
		t.Error("expected pq error code 42P01 to be classified as table_not_found")
	}
	if isTableNotFound(&pq.Error{Code: "23505"}) {
		t.Error("expected a different pq error code to not be classified as table_not_found")
	}
}

func TestProjector_ProjectMissingTask(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer rawDB.Close()

	mock.ExpectQuery("SELECT id, keywords, platforms, query_count, status, settings, result_data, created_at, updated_at").
		WithArgs(int64(999)).
		WillReturnError(sql.ErrNoRows)

	p := New(rawDB, zaptest.NewLogger(t))
	proj, err := p.Project(context.Background(), 999)
	if err != nil {
		t.Fatalf("expected no error for a missing task, got %v", err)
	}
	if proj != nil {
		t.Errorf("expected nil projection for a missing task, got %+v", proj)
	}
}

func TestProjector_ProjectTableNotFound(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer rawDB.Close()

	mock.ExpectQuery("SELECT id, keywords, platforms, query_count, status, settings, result_data, created_at, updated_at").
		WithArgs(int64(1)).
		WillReturnError(&pq.Error{Code: "42P01", Message: "relation \"task_jobs\" does not exist"})

	p := New(rawDB, zaptest.NewLogger(t))
	_, err = p.Project(context.Background(), 1)
	if !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}

