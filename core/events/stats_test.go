package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statsFixture loads three actors with six login and four checkout
// events spread over two days.
func statsFixture(t *testing.T) (*MemStore, time.Time, time.Time) {
	t.Helper()
	ctx := context.Background()
	store := NewMemStore()

	actors := []uuid.UUID{
		registerActor(t, store, "a"),
		registerActor(t, store, "b"),
		registerActor(t, store, "c"),
	}
	login, err := store.FindOrCreateKind(ctx, "login")
	require.NoError(t, err)
	checkout, err := store.FindOrCreateKind(ctx, "checkout")
	require.NoError(t, err)

	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	add := func(actor uuid.UUID, kindID int, ts time.Time, page string) {
		ev := ActivityEvent{ActorID: actor, KindID: kindID, Timestamp: ts, Metadata: Metadata{"page": page}}
		require.NoError(t, store.AppendEvent(ctx, &ev))
	}

	for i := 0; i < 6; i++ {
		add(actors[i%3], login.ID, day1.Add(time.Duration(i)*time.Hour), "/login")
	}
	add(actors[0], checkout.ID, day1, "/checkout")
	add(actors[0], checkout.ID, day2, "/checkout")
	add(actors[1], checkout.ID, day2, "/checkout")
	add(actors[1], checkout.ID, day2.Add(time.Hour), "/cart")

	return store, day1, day2.Add(2 * time.Hour)
}

func TestStatsForOneKind(t *testing.T) {
	store, from, to := statsFixture(t)
	agg := NewAggregator(store, nil)

	out, err := agg.Stats(context.Background(), "checkout", from, to)
	require.NoError(t, err)
	assert.EqualValues(t, 4, out.TotalEvents)
	assert.EqualValues(t, 2, out.UniqueUsers)
	require.Len(t, out.TopPages, 2)
	assert.Equal(t, PageCount{Page: "/checkout", Count: 3}, out.TopPages[0])
	assert.Equal(t, PageCount{Page: "/cart", Count: 1}, out.TopPages[1])
}

func TestStatsWindowExcludesOutsideEvents(t *testing.T) {
	store, from, _ := statsFixture(t)
	agg := NewAggregator(store, nil)

	// Only day one is inside the window, so one checkout by one actor.
	out, err := agg.Stats(context.Background(), "checkout", from, from.Add(12*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.TotalEvents)
	assert.EqualValues(t, 1, out.UniqueUsers)
}

func TestStatsUnknownKind(t *testing.T) {
	store, from, to := statsFixture(t)
	agg := NewAggregator(store, nil)

	_, err := agg.Stats(context.Background(), "nope", from, to)
	assert.ErrorIs(t, err, ErrEventKindNotFound)
}

func TestStatsInvalidRange(t *testing.T) {
	store, from, to := statsFixture(t)
	agg := NewAggregator(store, nil)

	_, err := agg.Stats(context.Background(), "checkout", to, from)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestStatsEmptyWindowYieldsZeroes(t *testing.T) {
	store, _, to := statsFixture(t)
	agg := NewAggregator(store, nil)

	out, err := agg.Stats(context.Background(), "checkout", to.Add(time.Hour), to.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, out.TotalEvents)
	assert.Zero(t, out.UniqueUsers)
	assert.NotNil(t, out.TopPages)
	assert.Empty(t, out.TopPages)
}

func TestTopPagesJSONKeepsRankOrder(t *testing.T) {
	in := TopPages{
		{Page: "/checkout", Count: 30},
		{Page: "/cart", Count: 20},
		{Page: "/login", Count: 10},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"/checkout":30,"/cart":20,"/login":10}`, string(data))

	// Object key order is part of the wire contract for rankings.
	assert.Equal(t, `{"/checkout":30,"/cart":20,"/login":10}`, string(data))

	var out TopPages
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestTopPagesJSONEmpty(t *testing.T) {
	data, err := json.Marshal(TopPages{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	var out TopPages
	require.NoError(t, json.Unmarshal([]byte(`{}`), &out))
	assert.Empty(t, out)
}
