package extract_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/studyloop/studyloop/internal/extract"
)

func TestHTTPExtractor_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/pdf" {
			t.Errorf("Content-Type = %q, want application/pdf", r.Header.Get("Content-Type"))
		}
		json.NewEncoder(w).Encode(extract.Result{
			Text:   "chapter one",
			Images: []string{"aGVsbG8="},
		})
	}))
	defer server.Close()

	e := extract.NewHTTPExtractor(server.URL)
	got, err := e.Extract(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Text != "chapter one" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Images) != 1 {
		t.Errorf("Images length = %d, want 1", len(got.Images))
	}
}

func TestHTTPExtractor_Extract_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"not a pdf"}`))
	}))
	defer server.Close()

	e := extract.NewHTTPExtractor(server.URL)
	if _, err := e.Extract(context.Background(), []byte("not a pdf")); err == nil {
		t.Fatal("Extract() should error on service failure")
	}
}

func TestHTTPExtractor_Extract_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	e := extract.NewHTTPExtractor(server.URL)
	if _, err := e.Extract(context.Background(), []byte("%PDF-1.4")); err == nil {
		t.Fatal("Extract() should error on malformed response")
	}
}
