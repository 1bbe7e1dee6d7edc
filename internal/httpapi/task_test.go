package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestTaskHandler_Submit_WrongMethod(t *testing.T) {
	h := NewTaskHandler(nil, zaptest.NewLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/mock", nil)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestTaskHandler_Submit_InvalidJSON(t *testing.T) {
	h := NewTaskHandler(nil, zaptest.NewLogger(t))
	req := httptest.NewRequest(http.MethodPost, "/mock", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestTaskHandler_Submit_EmptyKeywordsOrPlatforms(t *testing.T) {
	h := NewTaskHandler(nil, zaptest.NewLogger(t))

	cases := []string{
		`{"keywords":[],"platforms":["bocha"]}`,
		`{"keywords":["x"],"platforms":[]}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/mock", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()

		h.Submit(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}
