package events

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Generator produces the event at a given global row index. The rng is
// owned by one partition and seeded from the partition index, so a
// generator must be pure given (index, rng): two runs with the same
// seed produce identical partitions, and no two partitions share a
// pseudo-random sequence.
type Generator func(index int64, rng *rand.Rand) ActivityEvent

// DefaultKindNames is the synthetic event-kind dictionary.
var DefaultKindNames = []string{"login", "logout", "cart", "view", "search", "checkout"}

var (
	firstNames = []string{"John", "Alice", "Bob", "Emma", "Michael", "Izya"}
	lastNames  = []string{"Smith", "Johnson", "Brown", "Davis", "Wilson"}
)

// minutesPerWeek spreads synthetic timestamps over the trailing week.
const minutesPerWeek = 7 * 24 * 60

// SyntheticGenerator builds the workload generator: each row picks a
// random actor and kind, a timestamp within the week before now, and a
// metadata document shaped by the kind. actorIDs and kinds are read-only
// inputs shared by every partition.
func SyntheticGenerator(actorIDs []uuid.UUID, kinds []EventKind, now time.Time) Generator {
	now = now.UTC()
	return func(index int64, rng *rand.Rand) ActivityEvent {
		kind := kinds[rng.Intn(len(kinds))]
		return ActivityEvent{
			ActorID:   actorIDs[rng.Intn(len(actorIDs))],
			KindID:    kind.ID,
			Timestamp: now.Add(-time.Duration(1+rng.Intn(minutesPerWeek)) * time.Minute),
			Metadata:  syntheticMetadata(kind.Name, rng),
		}
	}
}

func syntheticMetadata(kindName string, rng *rand.Rand) Metadata {
	userAgent := "Firefox"
	if rng.Float64() > 0.5 {
		userAgent = "Chrome"
	}
	meta := Metadata{
		"ip":        fmt.Sprintf("%d.%d.%d.%d", 1+rng.Intn(254), rng.Intn(256), rng.Intn(256), rng.Intn(256)),
		"userAgent": userAgent,
		"page":      "/" + kindName,
	}

	switch kindName {
	case "checkout":
		meta["amount"] = math.Round(rng.Float64()*100*100) / 100
		meta["items"] = 1 + rng.Intn(4)
	case "search":
		meta["query"] = fmt.Sprintf("search query %d", rng.Intn(1000))
	}
	return meta
}

// SyntheticActors produces a deterministic set of actors for seeding.
// The uuids come from the seeded rng, so a fixed seed reproduces the
// same actor population.
func SyntheticActors(count int, seed int64, now time.Time) []Actor {
	rng := rand.New(rand.NewSource(seed))
	now = now.UTC()

	actors := make([]Actor, count)
	for i := range actors {
		var id uuid.UUID
		rng.Read(id[:])
		id[6] = (id[6] & 0x0f) | 0x40 // version 4
		id[8] = (id[8] & 0x3f) | 0x80 // variant 10

		actors[i] = Actor{
			ID:        id,
			Name:      firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))],
			CreatedAt: now.AddDate(0, 0, -(1 + rng.Intn(364))),
		}
	}
	return actors
}
