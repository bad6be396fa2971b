// Package giphy provides a media.Provider backed by the GIPHY search API.
//
// GIFs resolve to their original mp4 rendition when one exists and stickers to
// their webp rendition, falling back to the plain GIF url otherwise. Every
// request carries an anonymous random_id that is generated once and persisted
// in the key-value store so GIPHY can personalise results across restarts.
package giphy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/emotive/pkg/kv"
	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/types"
)

const (
	// DefaultBaseURL is the public GIPHY API endpoint.
	DefaultBaseURL = "https://api.giphy.com"

	// DefaultRating is the content rating applied to every search.
	DefaultRating = "pg"

	// DefaultLimit is used when Search is called with a non-positive limit.
	DefaultLimit = 50

	// RandomIDKey is the key-value store key holding the anonymous random_id.
	RandomIDKey = "giphyID"
)

// errCancelledPending marks requests aborted by [Client.CancelPending]. Those
// resolve to an empty result instead of an error.
var errCancelledPending = errors.New("giphy: request superseded")

var (
	_ media.Provider        = (*Client)(nil)
	_ media.AnalyticsSender = (*Client)(nil)
)

// Client implements media.Provider against the GIPHY REST API.
// It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	kind       types.MediaKind
	rating     string
	httpClient *http.Client
	store      kv.Store
	now        func() time.Time

	idMu     sync.Mutex
	randomID string

	mu      sync.Mutex
	nextReq uint64
	pending map[uint64]context.CancelCauseFunc
}

// Option is a functional option for Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithKind selects GIF or sticker search. Default: [types.MediaGIF].
func WithKind(k types.MediaKind) Option {
	return func(c *Client) { c.kind = k }
}

// WithRating sets the content rating filter. Default: [DefaultRating].
func WithRating(r string) Option {
	return func(c *Client) {
		if r != "" {
			c.rating = r
		}
	}
}

// WithStore persists the anonymous random_id. Without a store a fresh id is
// generated per process.
func WithStore(s kv.Store) Option {
	return func(c *Client) { c.store = s }
}

// WithClock replaces the time source used for analytics timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRandomID pins the anonymous id. Used by replay tests.
func WithRandomID(id string) Option {
	return func(c *Client) { c.randomID = id }
}

// New creates a GIPHY client authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("giphy: api key must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		kind:       types.MediaGIF,
		rating:     DefaultRating,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		pending:    make(map[uint64]context.CancelCauseFunc),
	}
	for _, o := range opts {
		o(c)
	}
	if c.kind != types.MediaGIF && c.kind != types.MediaSticker {
		return nil, fmt.Errorf("giphy: unsupported media kind %q", c.kind)
	}
	return c, nil
}

// Search implements media.Provider.
//
// A request aborted through [Client.CancelPending] returns (nil, nil).
func (c *Client) Search(ctx context.Context, query string, limit int) ([]types.MediaItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, media.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", "0")

	endpoint := "/v1/gifs/search"
	if c.kind == types.MediaSticker {
		endpoint = "/v1/stickers/search"
	}

	records, err := c.get(ctx, endpoint, params)
	if err != nil {
		if errors.Is(err, errCancelledPending) {
			return nil, nil
		}
		return nil, fmt.Errorf("giphy: search %q: %w", query, err)
	}

	items := make([]types.MediaItem, 0, len(records))
	for _, r := range records {
		if item, ok := r.toItem(); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// CancelPending aborts every in-flight request. The aborted calls return no
// results and no error.
func (c *Client) CancelPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]context.CancelCauseFunc)
	c.mu.Unlock()

	for _, cancel := range pending {
		cancel(errCancelledPending)
	}
}

// SendAnalytics pings the item's onclick analytics url. Items without one are
// ignored.
func (c *Client) SendAnalytics(ctx context.Context, item types.MediaItem) error {
	if item.AnalyticsURL == "" {
		return nil
	}
	u, err := url.Parse(item.AnalyticsURL)
	if err != nil {
		return fmt.Errorf("giphy: send analytics: %w", err)
	}
	q := u.Query()
	q.Set("random_id", c.anonymousID(ctx))
	q.Set("ts", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("giphy: send analytics: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("giphy: send analytics: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("giphy: send analytics: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type searchResponse struct {
	Data []record `json:"data"`
	Meta struct {
		Status int    `json:"status"`
		Msg    string `json:"msg"`
	} `json:"meta"`
}

type record struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Images struct {
		Original struct {
			URL  string `json:"url"`
			MP4  string `json:"mp4"`
			WebP string `json:"webp"`
		} `json:"original"`
	} `json:"images"`
	Analytics struct {
		OnClick struct {
			URL string `json:"url"`
		} `json:"onclick"`
	} `json:"analytics"`
}

// toItem converts a GIPHY record. Records without any usable rendition are
// rejected.
func (r record) toItem() (types.MediaItem, bool) {
	orig := r.Images.Original
	item := types.MediaItem{
		ID:           r.ID,
		Title:        r.Title,
		AnalyticsURL: r.Analytics.OnClick.URL,
	}
	if r.Type == string(types.MediaSticker) {
		item.Kind = types.MediaSticker
		if orig.WebP != "" {
			item.URL, item.MimeType = orig.WebP, "image/webp"
		}
	} else {
		item.Kind = types.MediaGIF
		if orig.MP4 != "" {
			item.URL, item.MimeType = orig.MP4, "video/mp4"
		}
	}
	if item.URL == "" && orig.URL != "" {
		item.URL, item.MimeType = orig.URL, "image/gif"
	}
	if item.URL == "" || item.ID == "" {
		return types.MediaItem{}, false
	}
	return item, true
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]record, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	id := c.track(cancel)
	defer c.untrack(id)
	defer cancel(nil)

	params.Set("api_key", c.apiKey)
	params.Set("rating", c.rating)
	params.Set("random_id", c.anonymousID(ctx))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, errCancelledPending) {
			return nil, cause
		}
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if out.Meta.Status != http.StatusOK {
		return nil, fmt.Errorf("unsuccessful response: status %d: %s", out.Meta.Status, out.Meta.Msg)
	}
	return out.Data, nil
}

func (c *Client) track(cancel context.CancelCauseFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextReq++
	c.pending[c.nextReq] = cancel
	return c.nextReq
}

func (c *Client) untrack(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// anonymousID returns the persisted random_id, creating it on first use.
// Store failures are logged and a process-local id is used.
func (c *Client) anonymousID(ctx context.Context) string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	if c.randomID != "" {
		return c.randomID
	}

	if c.store != nil {
		raw, err := c.store.Get(ctx, RandomIDKey)
		switch {
		case err == nil && len(raw) > 0:
			c.randomID = string(raw)
			return c.randomID
		case err != nil && !errors.Is(err, kv.ErrNotFound):
			slog.Warn("giphy: failed to read random id", "err", err)
		}
	}

	c.randomID = strings.ReplaceAll(uuid.NewString(), "-", "")
	if c.store != nil {
		if err := c.store.Set(ctx, RandomIDKey, []byte(c.randomID)); err != nil {
			slog.Warn("giphy: failed to persist random id", "err", err)
		}
	}
	return c.randomID
}
