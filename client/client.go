// Package client implements the board cache synchronization protocol: a read
// path serving cached board snapshots with background revalidation, and one
// dispatcher per user action performing an optimistic cache rewrite, the
// network call, and either tag invalidation on success or a compensating
// rewrite on failure.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"fieldboard-api/cache"
	"fieldboard-api/domain"
)

// Tags declared by cache entries. Task mutations invalidate both: the
// calendar view embeds the same task data under its own key.
const (
	TagBoard    = "board"
	TagCalendar = "calendar"
)

const (
	headerTenant    = "X-Tenant-ID"
	maxResponseSize = 4 * 1024 * 1024 // 4 MiB
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client drives the board protocol for a single tenant against one API base
// URL. All state lives in the injected cache.Store, so its lifecycle and test
// doubles stay explicit.
type Client struct {
	http   Doer
	base   string
	tenant string
	store  cache.Store
	log    *log.Logger

	mu         sync.Mutex
	validating map[string]struct{}
	wg         sync.WaitGroup
}

// New creates a Client. A nil doer falls back to http.DefaultClient; timeouts
// are whatever the transport defaults to.
func New(baseURL, tenantID string, store cache.Store, doer Doer, logger *log.Logger) *Client {
	if store == nil {
		panic("client.New: cache store is nil")
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = log.New()
	}
	return &Client{
		http:       doer,
		base:       strings.TrimRight(baseURL, "/"),
		tenant:     tenantID,
		store:      store,
		log:        logger,
		validating: make(map[string]struct{}),
	}
}

// BoardState is what the board view renders from.
type BoardState struct {
	Board      domain.Board
	Loading    bool
	Validating bool
	Empty      bool
	Err        error
}

// Board returns the board, filtered to one client when clientID is non-empty.
// A cache hit is served immediately; if the entry is stale a background
// revalidation is kicked off. A miss fetches synchronously.
func (c *Client) Board(ctx context.Context, clientID string) BoardState {
	key := c.boardKey(clientID)
	if p, ok := c.store.Read(key); ok {
		if c.store.Stale(key) {
			c.revalidateAsync(key)
		}
		return BoardState{
			Board:      domain.BuildBoard(p),
			Empty:      p.Empty(),
			Validating: c.isValidating(key),
		}
	}
	p, err := c.fetch(ctx, key)
	if err != nil {
		return BoardState{Err: err}
	}
	c.store.Put(key, p, TagBoard)
	return BoardState{Board: domain.BuildBoard(p), Empty: p.Empty()}
}

// Peek is the non-blocking read: it never touches the network. Loading is set
// when the board was never fetched.
func (c *Client) Peek(clientID string) BoardState {
	key := c.boardKey(clientID)
	p, ok := c.store.Read(key)
	if !ok {
		return BoardState{Loading: true}
	}
	if c.store.Stale(key) {
		c.revalidateAsync(key)
	}
	return BoardState{
		Board:      domain.BuildBoard(p),
		Empty:      p.Empty(),
		Validating: c.isValidating(key),
	}
}

// Calendar returns every scheduled task. The response shares task data with
// the board, which is why task dispatchers invalidate the calendar tag.
func (c *Client) Calendar(ctx context.Context) ([]domain.Task, error) {
	key := c.calendarKey()
	if p, ok := c.store.Read(key); ok {
		if c.store.Stale(key) {
			c.revalidateAsync(key)
		}
		return p.Tasks, nil
	}
	p, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	c.store.Put(key, p, TagCalendar)
	return p.Tasks, nil
}

// Flush blocks until every in-flight background revalidation settles.
func (c *Client) Flush() {
	c.wg.Wait()
}

func (c *Client) boardKey(clientID string) string {
	key := c.base + "/kanban?endpoint=board"
	if clientID != "" {
		key += "&clientId=" + url.QueryEscape(clientID)
	}
	return key
}

func (c *Client) boardPrefix() string {
	return c.base + "/kanban"
}

func (c *Client) calendarKey() string {
	return c.base + "/calendar"
}

func (c *Client) isValidating(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.validating[key]
	return ok
}

// revalidateAsync refetches key in the background and replaces the cached
// entry wholesale, discarding any optimistic value. At most one revalidation
// per key runs at a time; failures leave the stale entry serving reads.
func (c *Client) revalidateAsync(key string) {
	c.mu.Lock()
	if _, busy := c.validating[key]; busy {
		c.mu.Unlock()
		return
	}
	c.validating[key] = struct{}{}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.validating, key)
			c.mu.Unlock()
		}()
		p, err := c.fetch(context.Background(), key)
		if err != nil {
			c.log.WithFields(log.Fields{"key": key, "error": err.Error()}).Warn("revalidation failed")
			return
		}
		tag := TagBoard
		if key == c.calendarKey() {
			tag = TagCalendar
		}
		c.store.Put(key, p, tag)
	}()
}

// revalidateStale kicks a background refetch for every stale entry.
func (c *Client) revalidateStale() {
	for _, key := range c.store.Keys(nil) {
		if c.store.Stale(key) {
			c.revalidateAsync(key)
		}
	}
}

func (c *Client) fetch(ctx context.Context, rawURL string) (domain.BoardPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.BoardPayload{}, err
	}
	req.Header.Set(headerTenant, c.tenant)
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.BoardPayload{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.BoardPayload{}, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.BoardPayload{}, err
	}
	var p domain.BoardPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return domain.BoardPayload{}, fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return p, nil
}
