// Package board talks to the Kaiten board that drives the outgoing workflow:
// it lists cards awaiting signature, reads card details, downloads templates
// and moves registered cards on.
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"outboxapi/internal/apperr"
	"outboxapi/internal/config"
)

const maxErrorSnippet = 512

// Move describes where a registered card goes and what is written back to it.
type Move struct {
	ColumnID int64
	// Properties maps custom field ids to values.
	Properties map[string]any
	Comment    string
}

// Client is a rate-limited, cached Kaiten REST client.
type Client struct {
	base        *url.URL
	token       string
	http        *http.Client
	limiter     *rate.Limiter
	cache       *expirable.LRU[int64, Card]
	cacheReqs   *prometheus.CounterVec
	cfg         config.BoardConfig
	maxDownload int64
	log         zerolog.Logger
}

// NewClient builds a client. maxDownload caps Download in bytes.
func NewClient(cfg config.BoardConfig, maxDownload int64, reg prometheus.Registerer, log zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("board api url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse board api url: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	limit := rate.Limit(cfg.RateRPS)
	if cfg.RateRPS <= 0 {
		limit = rate.Inf
	}

	cacheReqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_board_cache_requests_total",
		Help: "Board card lookups by cache result.",
	}, []string{"result"})
	if err := reg.Register(cacheReqs); err != nil {
		return nil, err
	}

	return &Client{
		base:  base,
		token: cfg.Token,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.RequestTimeout,
		},
		limiter:     rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
		cache:       expirable.NewLRU[int64, Card](cfg.CacheSize, nil, cfg.CacheTTL),
		cacheReqs:   cacheReqs,
		cfg:         cfg,
		maxDownload: maxDownload,
		log:         log.With().Str("component", "board").Logger(),
	}, nil
}

// CardsInColumn lists the cards of a column on the configured board, page by
// page, keeping the first occurrence of each id.
func (c *Client) CardsInColumn(ctx context.Context, columnID int64) ([]Card, error) {
	seen := make(map[int64]bool)
	var out []Card
	for page := 0; page < c.cfg.MaxPages; page++ {
		q := url.Values{}
		if c.cfg.BoardID != 0 {
			q.Set("board_id", strconv.FormatInt(c.cfg.BoardID, 10))
		}
		q.Set("column_id", strconv.FormatInt(columnID, 10))
		q.Set("limit", strconv.Itoa(c.cfg.PageSize))
		q.Set("offset", strconv.Itoa(page*c.cfg.PageSize))

		var batch []Card
		if err := c.do(ctx, http.MethodGet, "/cards", q, nil, &batch, "cards"); err != nil {
			return nil, err
		}
		for _, card := range batch {
			if seen[card.ID] {
				continue
			}
			seen[card.ID] = true
			if c.cfg.LaneID != 0 && card.LaneID != c.cfg.LaneID {
				continue
			}
			out = append(out, card)
		}
		if len(batch) < c.cfg.PageSize {
			return out, nil
		}
	}
	c.log.Warn().Int64("column_id", columnID).Int("max_pages", c.cfg.MaxPages).Msg("card listing truncated at page limit")
	return out, nil
}

// Card returns one card, from cache when fresh.
func (c *Client) Card(ctx context.Context, id int64) (Card, error) {
	if card, ok := c.cache.Get(id); ok {
		c.cacheReqs.WithLabelValues("hit").Inc()
		return card, nil
	}
	c.cacheReqs.WithLabelValues("miss").Inc()

	var card Card
	if err := c.do(ctx, http.MethodGet, "/cards/"+strconv.FormatInt(id, 10), nil, nil, &card, "card"); err != nil {
		return Card{}, err
	}
	c.cache.Add(id, card)
	return card, nil
}

// Members lists the participants of a card.
func (c *Client) Members(ctx context.Context, id int64) ([]Member, error) {
	var members []Member
	if err := c.do(ctx, http.MethodGet, "/cards/"+strconv.FormatInt(id, 10)+"/members", nil, nil, &members, "card"); err != nil {
		return nil, err
	}
	return members, nil
}

// Executor returns the card member of the configured executor type.
func (c *Client) Executor(ctx context.Context, id int64) (Member, error) {
	card, err := c.Card(ctx, id)
	if err != nil {
		return Member{}, err
	}
	members := card.Members
	if len(members) == 0 {
		if members, err = c.Members(ctx, id); err != nil {
			return Member{}, err
		}
	}
	for _, m := range members {
		if m.Type == c.cfg.ExecutorMemberType {
			return m, nil
		}
	}
	return Member{}, apperr.NotFound("executor of card " + strconv.FormatInt(id, 10))
}

// MoveCard moves a card, writes custom properties back and optionally comments.
func (c *Client) MoveCard(ctx context.Context, id int64, m Move) error {
	defer c.cache.Remove(id)

	body := map[string]any{}
	if m.ColumnID != 0 {
		body["column_id"] = m.ColumnID
	}
	if len(m.Properties) > 0 {
		props := make(map[string]any, len(m.Properties))
		for field, v := range m.Properties {
			props["id_"+propertyKey(field)] = v
		}
		body["properties"] = props
	}
	cardPath := "/cards/" + strconv.FormatInt(id, 10)
	if len(body) > 0 {
		if err := c.do(ctx, http.MethodPatch, cardPath, nil, body, nil, "card"); err != nil {
			return err
		}
	}
	if m.Comment != "" {
		if err := c.do(ctx, http.MethodPost, cardPath+"/comments", nil, map[string]string{"text": m.Comment}, nil, "card"); err != nil {
			return err
		}
	}
	return nil
}

// Download fetches a card file, refusing anything above the configured size.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	u, err := c.resolve(fileURL)
	if err != nil {
		return nil, apperr.Validation("INVALID_FILE_URL", "card file has an invalid url")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	if u.Host == c.base.Host {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.External("board", "file download failed", "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("card file")
	}
	if resp.StatusCode >= 300 {
		return nil, upstreamError(resp, "file download failed")
	}

	limit := c.maxDownload
	if limit <= 0 {
		limit = 50 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, apperr.External("board", "file download interrupted", "", err)
	}
	if int64(len(data)) > limit {
		return nil, apperr.Validation("FILE_TOO_LARGE", fmt.Sprintf("card file exceeds %d bytes", limit))
	}
	return data, nil
}

func (c *Client) resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		return u, nil
	}
	if strings.HasPrefix(ref, "/") {
		return c.base.ResolveReference(&url.URL{Path: u.Path, RawQuery: u.RawQuery}), nil
	}
	return c.endpoint("/"+u.Path, nil), nil
}

func (c *Client) endpoint(path string, q url.Values) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return &u
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any, resource string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", resource, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q).String(), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", resource, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperr.External("board", "board request failed", method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperr.NotFound(resource)
	}
	if resp.StatusCode >= 300 {
		return upstreamError(resp, "board request "+method+" "+path+" failed")
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.External("board", "board returned an unreadable response", method+" "+path, err)
	}
	return nil
}

func upstreamError(resp *http.Response, msg string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
	detail := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	return apperr.External("board", msg, detail, nil)
}
