package clustering

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/normalize"
)

// Window is the set of clusters eligible for matching during one run. It is
// built at the start of a run, owned by that run and discarded afterwards.
// Iteration order is first_seen_at ascending, then cluster ID, which is also
// the tie-break order when two clusters score the same.
type Window struct {
	Start   time.Time
	entries []*windowEntry
	byID    map[string]*windowEntry
}

type windowEntry struct {
	cluster  core.Cluster
	features normalize.Features
}

// NewWindow builds a window from clusters, skipping any that are outside
// [start, ∞) or expired at now.
func NewWindow(clusters []core.Cluster, norm *normalize.Normalizer, start, now time.Time) *Window {
	w := &Window{Start: start, byID: make(map[string]*windowEntry, len(clusters))}
	for _, c := range clusters {
		if !c.Active(now, start) {
			continue
		}
		w.add(c, norm.Features(c.Headline))
	}
	return w
}

// LoadWindow reads the active clusters from store.
func LoadWindow(ctx context.Context, store Store, norm *normalize.Normalizer, now time.Time, span time.Duration) (*Window, error) {
	start := now.Add(-span)
	clusters, err := store.ActiveSince(ctx, start, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load active clusters: %w", err)
	}
	return NewWindow(clusters, norm, start, now), nil
}

// add inserts c at its (first_seen_at, id) position.
func (w *Window) add(c core.Cluster, f normalize.Features) {
	e := &windowEntry{cluster: c, features: f}
	i := sort.Search(len(w.entries), func(i int) bool {
		return before(c, w.entries[i].cluster)
	})
	w.entries = append(w.entries, nil)
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = e
	w.byID[c.ID] = e
}

func before(a, b core.Cluster) bool {
	if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
		return a.FirstSeenAt.Before(b.FirstSeenAt)
	}
	return a.ID < b.ID
}

// Len returns the number of clusters in the window.
func (w *Window) Len() int { return len(w.entries) }

// Best returns the highest scoring cluster at or above threshold. A later
// cluster replaces the current best only with a strictly greater score.
func (w *Window) Best(f normalize.Features, threshold float64) (core.Cluster, float64, bool) {
	var best *windowEntry
	bestScore := -1.0
	for _, e := range w.entries {
		score := Similarity(f, e.features)
		if score < threshold {
			continue
		}
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	if best == nil {
		return core.Cluster{}, 0, false
	}
	return best.cluster, bestScore, true
}

func (w *Window) update(id string, fn func(c *core.Cluster)) {
	if e, ok := w.byID[id]; ok {
		fn(&e.cluster)
	}
}
