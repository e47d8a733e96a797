package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"userlytics/pkg/cache"
	"userlytics/pkg/metrics"
)

// topPagesLimit is the fixed breakdown depth of the statistics surface.
const topPagesLimit = 5

// DefaultStatsCacheTTL bounds how stale a cached statistics response
// may be.
const DefaultStatsCacheTTL = 30 * time.Second

// TopPages is a frequency-ranked breakdown. It marshals as a JSON
// object whose keys appear in rank order, so the ranking survives the
// wire and the cache.
type TopPages []PageCount

// MarshalJSON writes {"page":count,...} in rank order.
func (tp TopPages) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pc := range tp {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(pc.Page)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", pc.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form back preserving key order.
func (tp *TopPages) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("top pages: expected object, got %v", tok)
	}

	out := TopPages{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("top pages: non-string key %v", keyTok)
		}
		var count int64
		if err := dec.Decode(&count); err != nil {
			return err
		}
		out = append(out, PageCount{Page: key, Count: count})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*tp = out
	return nil
}

// Stats is the aggregate answer for one kind over one time range.
type Stats struct {
	TotalEvents int64    `json:"total_events"`
	UniqueUsers int64    `json:"unique_users"`
	TopPages    TopPages `json:"top_pages"`
}

// Aggregator computes time-windowed statistics: total count, distinct
// actors, and the top page values of the metadata document.
type Aggregator struct {
	store Store
	cache *cache.Cache
	ttl   time.Duration
}

// NewAggregator creates an aggregator over store. c may be a disabled
// cache; results then always come from storage.
func NewAggregator(store Store, c *cache.Cache) *Aggregator {
	if c == nil {
		c = cache.New(nil)
	}
	return &Aggregator{store: store, cache: c, ttl: DefaultStatsCacheTTL}
}

// Stats answers for the inclusive range [from, to] and the named kind.
// An unknown kind fails with ErrEventKindNotFound; a zero result always
// means zero matching rows, never a swallowed lookup failure.
//
// The three sub-queries are independent reads over the same logical
// filtered view and run concurrently; the first storage error wins and
// the rest are abandoned.
func (a *Aggregator) Stats(ctx context.Context, kindName string, from, to time.Time) (*Stats, error) {
	if from.After(to) {
		return nil, fmt.Errorf("from %s after to %s: %w", from, to, ErrInvalidTimeRange)
	}

	kind, err := a.store.FindKind(ctx, kindName)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("stats:%s:%d:%d", kindName, from.UTC().UnixNano(), to.UTC().UnixNano())
	var cached Stats
	if hit, err := a.cache.GetJSON(ctx, key, &cached); err != nil {
		// Cache trouble degrades to direct queries, never fails the request.
		metrics.StatsCacheHits.WithLabelValues("error").Inc()
	} else if hit {
		metrics.StatsCacheHits.WithLabelValues("hit").Inc()
		return &cached, nil
	} else {
		metrics.StatsCacheHits.WithLabelValues("miss").Inc()
	}

	var out Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.store.CountEventsInRange(gctx, kind.ID, from, to)
		if err != nil {
			return err
		}
		out.TotalEvents = n
		return nil
	})
	g.Go(func() error {
		n, err := a.store.CountDistinctActorsInRange(gctx, kind.ID, from, to)
		if err != nil {
			return err
		}
		out.UniqueUsers = n
		return nil
	})
	g.Go(func() error {
		top, err := a.store.TopPagesInRange(gctx, kind.ID, from, to, topPagesLimit)
		if err != nil {
			return err
		}
		out.TopPages = TopPages(top)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.TopPages == nil {
		out.TopPages = TopPages{}
	}

	if err := a.cache.SetJSON(ctx, key, &out, a.ttl); err != nil {
		metrics.StatsCacheHits.WithLabelValues("store_error").Inc()
	}
	return &out, nil
}
