package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"anonpress.org/internal/alias"
)

func TestClientDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tag" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "Alice went to Paris." {
			t.Fatalf("unexpected text: %q", req.Text)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"spans": []alias.Span{
				{Text: "Alice", Category: "PER"},
				{Text: "Paris", Category: "LOC"},
			},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	spans, err := c.Detect(context.Background(), "Alice went to Paris.")
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 2 || spans[0].Text != "Alice" || spans[1].Category != "LOC" {
		t.Fatalf("unexpected spans: %#v", spans)
	}
}

func TestClientDetectSkipsEmptyUnit(t *testing.T) {
	c, err := New("http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	spans, err := c.Detect(context.Background(), "   ")
	if err != nil || spans != nil {
		t.Fatalf("expected no call for blank unit, got %v %v", spans, err)
	}
}

func TestClientDetectSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Detect(context.Background(), "Some text."); err == nil {
		t.Fatal("expected error from failing tagging service")
	}
}
