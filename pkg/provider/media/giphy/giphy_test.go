package giphy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"

	kvmock "github.com/MrWong99/emotive/pkg/kv/mock"
	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/types"
)

const fixedRandomID = "0f1e2d3c4b5a69788796a5b4c3d2e1f0"

// newReplayClient builds a client whose transport replays a recorded cassette.
func newReplayClient(t *testing.T, name string, opts ...Option) *Client {
	t.Helper()
	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", name), recorder.ModeReplaying, nil)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	r.SetMatcher(func(req *http.Request, i cassette.Request) bool {
		return req.Method == i.Method && req.URL.String() == i.URL
	})
	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("stop recorder: %v", err)
		}
	})
	opts = append([]Option{WithHTTPClient(&http.Client{Transport: r}), WithRandomID(fixedRandomID)}, opts...)
	c, err := New("test-key", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ── Construction ─────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("k", WithKind("video")); err == nil {
		t.Error("expected error for unsupported kind")
	}
}

// ── Search (recorded) ────────────────────────────────────────────────────────

func TestSearch_Replay(t *testing.T) {
	t.Parallel()
	c := newReplayClient(t, "giphy_search")

	items, err := c.Search(context.Background(), "thumbs up", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first.ID != "3o7abKhOpu0NwenH3O" || first.Kind != types.MediaGIF {
		t.Errorf("first item = %+v", first)
	}
	if first.MimeType != "video/mp4" || !strings.HasSuffix(first.URL, ".mp4") {
		t.Errorf("first item should prefer mp4, got %q (%s)", first.URL, first.MimeType)
	}
	if first.AnalyticsURL == "" {
		t.Error("analytics url not carried over")
	}

	second := items[1]
	if second.MimeType != "image/gif" || !strings.HasSuffix(second.URL, ".gif") {
		t.Errorf("second item should fall back to gif, got %q (%s)", second.URL, second.MimeType)
	}
}

// ── Search (live handler) ────────────────────────────────────────────────────

func TestSearch_RequestParameters(t *testing.T) {
	t.Parallel()
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL)
		writeJSON(w, map[string]any{"data": []any{}, "meta": map[string]any{"status": 200}})
	}))
	defer srv.Close()

	c, err := New("key", WithBaseURL(srv.URL), WithKind(types.MediaSticker), WithRandomID("rid"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Search(context.Background(), "  wow  ", 0); err != nil {
		t.Fatalf("Search: %v", err)
	}

	u := got.Load().(*url.URL)
	if u.Path != "/v1/stickers/search" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	want := map[string]string{
		"q": "wow", "limit": "50", "offset": "0", "rating": "pg", "random_id": "rid", "api_key": "key",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("param %s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestSearch_StickerPrefersWebP(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []any{
				map[string]any{
					"type": "sticker", "id": "s1", "title": "Party",
					"images": map[string]any{"original": map[string]any{
						"url": "https://x/s1.gif", "webp": "https://x/s1.webp", "mp4": "https://x/s1.mp4",
					}},
				},
				map[string]any{"type": "sticker", "id": "s2", "images": map[string]any{"original": map[string]any{}}},
			},
			"meta": map[string]any{"status": 200},
		})
	}))
	defer srv.Close()

	c, _ := New("key", WithBaseURL(srv.URL), WithKind(types.MediaSticker), WithRandomID("rid"))
	items, err := c.Search(context.Background(), "party", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (record without renditions dropped)", len(items))
	}
	if items[0].URL != "https://x/s1.webp" || items[0].MimeType != "image/webp" {
		t.Errorf("item = %+v", items[0])
	}
}

func TestSearch_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty query", func(t *testing.T) {
		t.Parallel()
		c, _ := New("key")
		if _, err := c.Search(context.Background(), "   ", 3); !errors.Is(err, media.ErrEmptyQuery) {
			t.Errorf("err = %v, want ErrEmptyQuery", err)
		}
	})

	t.Run("meta status", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"data": []any{}, "meta": map[string]any{"status": 403, "msg": "Forbidden"}})
		}))
		defer srv.Close()
		c, _ := New("key", WithBaseURL(srv.URL), WithRandomID("rid"))
		if _, err := c.Search(context.Background(), "hi", 3); err == nil {
			t.Error("expected error for non-200 meta status")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()
		c, _ := New("key", WithBaseURL(srv.URL), WithRandomID("rid"))
		if _, err := c.Search(context.Background(), "hi", 3); err == nil {
			t.Error("expected decode error")
		}
	})
}

// ── CancelPending ────────────────────────────────────────────────────────────

func TestCancelPending_ResolvesEmpty(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New("key", WithBaseURL(srv.URL), WithRandomID("rid"))

	type result struct {
		items []types.MediaItem
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := c.Search(context.Background(), "slow", 3)
		done <- result{items, err}
	}()

	<-entered
	c.CancelPending()

	select {
	case r := <-done:
		if r.err != nil || r.items != nil {
			t.Errorf("cancelled search = (%v, %v), want (nil, nil)", r.items, r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search did not return after CancelPending")
	}
}

// ── Random ID ────────────────────────────────────────────────────────────────

func TestAnonymousID_PersistedOnce(t *testing.T) {
	t.Parallel()
	store := &kvmock.Store{}
	c, _ := New("key", WithStore(store))

	id := c.anonymousID(context.Background())
	if len(id) != 32 || strings.Contains(id, "-") {
		t.Errorf("id = %q, want 32 hex chars without dashes", id)
	}
	if again := c.anonymousID(context.Background()); again != id {
		t.Errorf("id changed: %q -> %q", id, again)
	}
	if store.SetCalls != 1 {
		t.Errorf("SetCalls = %d, want 1", store.SetCalls)
	}

	reloaded, _ := New("key", WithStore(store))
	if got := reloaded.anonymousID(context.Background()); got != id {
		t.Errorf("reloaded id = %q, want %q", got, id)
	}
}

// ── Analytics ────────────────────────────────────────────────────────────────

func TestSendAnalytics(t *testing.T) {
	t.Parallel()
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL)
	}))
	defer srv.Close()

	now := time.UnixMilli(1700000000123)
	c, _ := New("key", WithRandomID("rid"), WithClock(func() time.Time { return now }))

	if err := c.SendAnalytics(context.Background(), types.MediaItem{ID: "x"}); err != nil {
		t.Fatalf("no analytics url should be a no-op, got %v", err)
	}
	if got.Load() != nil {
		t.Fatal("request sent without analytics url")
	}

	item := types.MediaItem{ID: "x", AnalyticsURL: srv.URL + "/pingback?action_type=CLICK"}
	if err := c.SendAnalytics(context.Background(), item); err != nil {
		t.Fatalf("SendAnalytics: %v", err)
	}
	q := got.Load().(*url.URL).Query()
	if q.Get("action_type") != "CLICK" || q.Get("random_id") != "rid" || q.Get("ts") != "1700000000123" {
		t.Errorf("query = %v", q)
	}
}
