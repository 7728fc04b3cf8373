package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *TavilyClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewTavilyClient(Config{APIKey: "tvly-test", BaseURL: server.URL, MaxResults: 3}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewTavilyClient() error = %v", err)
	}
	return client
}

func TestTavilySearchSendsRequestAndParsesHits(t *testing.T) {
	t.Parallel()

	var got searchRequest
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"answer":" short answer ","results":[
			{"title":"Study A","url":"https://a.example/1","content":"snippet a","score":0.9},
			{"title":"","url":"https://b.example/2","content":"snippet b","score":0.8},
			{"title":"No link","url":"","content":"dropped"},
			{"title":"Study C","url":"https://c.example/3","content":"snippet c"},
			{"title":"Study D","url":"https://d.example/4","content":"snippet d"}
		]}`)
	})

	out, err := client.Search(context.Background(), "  asthma treatment  ", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotAuth != "Bearer tvly-test" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if got.Query != "asthma treatment" || got.SearchDepth != "basic" || got.MaxResults != 3 || !got.IncludeAnswer {
		t.Fatalf("unexpected request: %#v", got)
	}
	if out.Answer != "short answer" {
		t.Fatalf("unexpected answer: %q", out.Answer)
	}
	if len(out.Hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(out.Hits))
	}
	if out.Hits[1].Title != "https://b.example/2" {
		t.Fatalf("untitled hit should fall back to its url, got %q", out.Hits[1].Title)
	}
	if out.Hits[2].URL != "https://c.example/3" {
		t.Fatalf("hits without url must be skipped, got %q", out.Hits[2].URL)
	}
}

func TestTavilySearchHTTPError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := client.Search(context.Background(), "q", 1)
	if !errors.Is(err, ErrSearchUnavailable) {
		t.Fatalf("expected ErrSearchUnavailable, got %v", err)
	}
}

func TestTavilySearchBadJSON(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})

	_, err := client.Search(context.Background(), "q", 1)
	if !errors.Is(err, ErrSearchUnavailable) {
		t.Fatalf("expected ErrSearchUnavailable, got %v", err)
	}
}

func TestNewTavilyClientRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewTavilyClient(Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewTavilyClient(Config{APIKey: "k", BaseURL: "::bad"}); err == nil {
		t.Fatal("expected error for invalid url")
	}
}
