package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if NewClient(Config{BaseURL: "http://localhost"}) != nil {
		t.Fatal("expected nil client without api key")
	}
}

func TestProbeListsModels(t *testing.T) {
	t.Parallel()

	var gotAuth, gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"openai/gpt-4o-mini","object":"model","created":0,"owned_by":"openai"}]}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key", SiteName: "brain"})
	if err := Probe(context.Background(), client); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotTitle != "brain" {
		t.Fatalf("unexpected title header: %q", gotTitle)
	}
}

func TestProbeEmptyModelList(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key"})
	if err := Probe(context.Background(), client); err == nil {
		t.Fatal("expected error for empty model list")
	}
}

func TestProbeNilClient(t *testing.T) {
	t.Parallel()

	if err := Probe(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
