package clustering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/normalize"
)

// mockClusterStore is an in-memory Store for testing.
type mockClusterStore struct {
	clusters  map[string]*core.Cluster
	members   map[string]string // article id -> cluster id
	sources   map[string]string // article id -> source id
	createErr func(call int) error
	creates   int
}

func newMockClusterStore() *mockClusterStore {
	return &mockClusterStore{
		clusters: make(map[string]*core.Cluster),
		members:  make(map[string]string),
		sources:  make(map[string]string),
	}
}

func (m *mockClusterStore) ActiveSince(ctx context.Context, cutoff, now time.Time) ([]core.Cluster, error) {
	var out []core.Cluster
	for _, c := range m.clusters {
		if !c.LastSeenAt.Before(cutoff) && c.ExpiresAt.After(now) {
			out = append(out, *c)
		}
	}
	// Map order is random; the window must impose its own order.
	return out, nil
}

func (m *mockClusterStore) Create(ctx context.Context, c *core.Cluster) error {
	m.creates++
	if m.createErr != nil {
		if err := m.createErr(m.creates); err != nil {
			return err
		}
	}
	cp := *c
	m.clusters[c.ID] = &cp
	return nil
}

func (m *mockClusterStore) AddMember(ctx context.Context, clusterID, articleID string) error {
	if existing, ok := m.members[articleID]; ok && existing != clusterID {
		return fmt.Errorf("article %s already in cluster %s", articleID, existing)
	}
	m.members[articleID] = clusterID
	return nil
}

func (m *mockClusterStore) RecountMembers(ctx context.Context, clusterID string) (int, int, error) {
	articles := 0
	sources := map[string]struct{}{}
	for a, c := range m.members {
		if c == clusterID {
			articles++
			sources[m.sources[a]] = struct{}{}
		}
	}
	cl := m.clusters[clusterID]
	cl.ArticleCount = articles
	cl.SourceCount = len(sources)
	return articles, len(sources), nil
}

func (m *mockClusterStore) Touch(ctx context.Context, clusterID string, at time.Time) error {
	cl := m.clusters[clusterID]
	if at.After(cl.LastSeenAt) {
		cl.LastSeenAt = at
	}
	return nil
}

func (m *mockClusterStore) article(id, source, title string) core.Article {
	m.sources[id] = source
	return core.Article{ID: id, SourceID: source, Title: title}
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(store Store) *Engine {
	return NewEngine(store, DefaultConfig()).WithClock(func() time.Time { return testNow })
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b normalize.Set
		want float64
	}{
		{"both empty", normalize.NewSet(), normalize.NewSet(), 0},
		{"one empty", normalize.NewSet("a"), normalize.NewSet(), 0},
		{"identical", normalize.NewSet("a", "b"), normalize.NewSet("b", "a"), 1},
		{"partial", normalize.NewSet("a", "b", "c"), normalize.NewSet("b", "c", "d"), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Jaccard(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Jaccard() = %v, want %v", got, tt.want)
			}
			if math.IsNaN(got) {
				t.Error("Jaccard() returned NaN")
			}
		})
	}
}

func TestSimilarity_BlendAndSymmetry(t *testing.T) {
	a := normalize.Features{Tokens: normalize.NewSet("a", "b", "c"), Entities: normalize.NewSet("colombo")}
	b := normalize.Features{Tokens: normalize.NewSet("b", "c", "d"), Entities: normalize.NewSet("colombo")}

	want := 0.7*0.5 + 0.3*1
	if got := Similarity(a, b); math.Abs(got-want) > 1e-9 {
		t.Errorf("Similarity() = %v, want %v", got, want)
	}
	if Similarity(a, b) != Similarity(b, a) {
		t.Error("Similarity is not symmetric")
	}

	empty := normalize.Features{Tokens: normalize.NewSet(), Entities: normalize.NewSet()}
	if got := Similarity(empty, empty); got != 0 {
		t.Errorf("Expected 0 for empty features, got %v", got)
	}
}

func TestEngine_Assign_ClustersRelatedStories(t *testing.T) {
	store := newMockClusterStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	articles := []core.Article{
		store.article("a1", "dailymirror", "President announces new budget policy"),
		store.article("a2", "newsfirst", "President unveils budget policy changes"),
		store.article("a3", "adaderana", "Cricket team wins match"),
	}

	w, err := engine.LoadWindow(ctx)
	if err != nil {
		t.Fatalf("LoadWindow() error = %v", err)
	}
	res, err := engine.Assign(ctx, w, articles)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	if res.Assigned["a1"] != res.Assigned["a2"] {
		t.Errorf("Expected budget stories to share a cluster, got %s and %s", res.Assigned["a1"], res.Assigned["a2"])
	}
	if res.Assigned["a3"] == res.Assigned["a1"] {
		t.Error("Expected cricket story in its own cluster")
	}
	if res.Created != 2 || len(res.Touched) != 2 {
		t.Errorf("Expected 2 clusters created and touched, got created=%d touched=%d", res.Created, len(res.Touched))
	}

	budget := res.Touched[res.Assigned["a1"]]
	if budget.ArticleCount != 2 || budget.SourceCount != 2 {
		t.Errorf("Expected counts 2/2, got %d/%d", budget.ArticleCount, budget.SourceCount)
	}
	if !budget.Created {
		t.Error("Expected budget cluster to be reported as created")
	}
	if budget.Headline != "President announces new budget policy" {
		t.Errorf("Expected headline from first article, got %q", budget.Headline)
	}

	stored := store.clusters[budget.ID]
	if stored.Status != core.StatusDraft {
		t.Errorf("Expected draft status, got %s", stored.Status)
	}
	if !stored.ExpiresAt.Equal(testNow.Add(30 * 24 * time.Hour)) {
		t.Errorf("Expected expiry 30 days out, got %v", stored.ExpiresAt)
	}
}

func TestEngine_Assign_MatchesExistingWindowCluster(t *testing.T) {
	store := newMockClusterStore()
	store.clusters["old"] = &core.Cluster{
		ID:          "old",
		Headline:    "Colombo port city expansion approved",
		FirstSeenAt: testNow.Add(-48 * time.Hour),
		LastSeenAt:  testNow.Add(-10 * time.Hour),
		ExpiresAt:   testNow.Add(20 * 24 * time.Hour),
	}
	store.members["seed"] = "old"
	store.sources["seed"] = "dailynews"

	engine := newTestEngine(store)
	ctx := context.Background()
	w, _ := engine.LoadWindow(ctx)

	res, err := engine.Assign(ctx, w, []core.Article{
		store.article("a1", "dailynews", "Colombo port city expansion approved by cabinet"),
	})
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	if res.Assigned["a1"] != "old" {
		t.Fatalf("Expected match with existing cluster, got %q", res.Assigned["a1"])
	}
	stats := res.Touched["old"]
	if stats.Created {
		t.Error("Existing cluster must not be reported as created")
	}
	if stats.ArticleCount != 2 || stats.SourceCount != 1 {
		t.Errorf("Expected counts 2/1, got %d/%d", stats.ArticleCount, stats.SourceCount)
	}
	if !store.clusters["old"].LastSeenAt.Equal(testNow) {
		t.Errorf("Expected last_seen_at bumped to now, got %v", store.clusters["old"].LastSeenAt)
	}
}

func TestEngine_Window_ExcludesStaleAndExpired(t *testing.T) {
	store := newMockClusterStore()
	store.clusters["stale"] = &core.Cluster{
		ID: "stale", Headline: "Fuel price cut announced",
		FirstSeenAt: testNow.Add(-100 * time.Hour), LastSeenAt: testNow.Add(-73 * time.Hour),
		ExpiresAt: testNow.Add(24 * time.Hour),
	}
	store.clusters["expired"] = &core.Cluster{
		ID: "expired", Headline: "Fuel price cut announced",
		FirstSeenAt: testNow.Add(-31 * 24 * time.Hour), LastSeenAt: testNow.Add(-time.Hour),
		ExpiresAt: testNow.Add(-time.Minute),
	}

	engine := newTestEngine(store)
	w, err := engine.LoadWindow(context.Background())
	if err != nil {
		t.Fatalf("LoadWindow() error = %v", err)
	}
	if w.Len() != 0 {
		t.Fatalf("Expected empty window, got %d clusters", w.Len())
	}

	res, _ := engine.Assign(context.Background(), w, []core.Article{
		store.article("a1", "s1", "Fuel price cut announced"),
	})
	if id := res.Assigned["a1"]; id == "stale" || id == "expired" {
		t.Errorf("Expected a new cluster, matched %s", id)
	}
}

func TestWindow_TieBreakIsDeterministic(t *testing.T) {
	norm := normalize.Default()
	base := core.Cluster{Headline: "Train strike continues", LastSeenAt: testNow, ExpiresAt: testNow.Add(time.Hour)}

	older := base
	older.ID, older.FirstSeenAt = "zzz", testNow.Add(-2*time.Hour)
	newer := base
	newer.ID, newer.FirstSeenAt = "aaa", testNow.Add(-time.Hour)
	sameTimeLowID := base
	sameTimeLowID.ID, sameTimeLowID.FirstSeenAt = "bbb", testNow.Add(-2*time.Hour)

	features := norm.Features("Train strike continues")
	orders := [][]core.Cluster{
		{older, newer, sameTimeLowID},
		{newer, sameTimeLowID, older},
		{sameTimeLowID, older, newer},
	}
	for i, clusters := range orders {
		w := NewWindow(clusters, norm, testNow.Add(-72*time.Hour), testNow)
		got, _, ok := w.Best(features, 0.4)
		if !ok || got.ID != "bbb" {
			t.Errorf("order %d: expected earliest first_seen with lowest id (bbb), got %q", i, got.ID)
		}
	}
}

func TestWindow_AddKeepsTieBreakOrder(t *testing.T) {
	norm := normalize.Default()
	features := norm.Features("Train strike continues")
	w := NewWindow(nil, norm, testNow.Add(-72*time.Hour), testNow)

	for _, id := range []string{"ccc", "aaa", "bbb"} {
		w.add(core.Cluster{ID: id, Headline: "Train strike continues", FirstSeenAt: testNow, LastSeenAt: testNow}, features)
	}
	w.add(core.Cluster{ID: "zzz", Headline: "Train strike continues", FirstSeenAt: testNow.Add(-time.Hour), LastSeenAt: testNow}, features)

	var ids []string
	for _, e := range w.entries {
		ids = append(ids, e.cluster.ID)
	}
	if got := strings.Join(ids, ","); got != "zzz,aaa,bbb,ccc" {
		t.Errorf("Window order = %s, want zzz,aaa,bbb,ccc", got)
	}
	if got, _, _ := w.Best(features, 0.4); got.ID != "zzz" {
		t.Errorf("Best() = %q, want zzz", got.ID)
	}
}

func TestEngine_Assign_CreateErrorSkipsArticle(t *testing.T) {
	store := newMockClusterStore()
	store.createErr = func(call int) error {
		if call == 1 {
			return errors.New("unique violation")
		}
		return nil
	}
	engine := newTestEngine(store)
	ctx := context.Background()
	w, _ := engine.LoadWindow(ctx)

	res, err := engine.Assign(ctx, w, []core.Article{
		store.article("bad", "s1", "Landslide warning in Badulla"),
		store.article("good", "s2", "Parliament debates tax bill"),
	})
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	if len(res.Errors) != 1 || res.Errors[0].ArticleID != "bad" {
		t.Fatalf("Expected one error for 'bad', got %+v", res.Errors)
	}
	if _, ok := res.Assigned["bad"]; ok {
		t.Error("Failed article must be left unclustered")
	}
	if _, ok := res.Assigned["good"]; !ok {
		t.Error("Expected processing to continue for remaining articles")
	}
	if !errors.Is(res.Errors[0], res.Errors[0].Err) {
		t.Error("Expected AssignError to unwrap")
	}
}

func TestEngine_Assign_SkipsAlreadyClustered(t *testing.T) {
	store := newMockClusterStore()
	engine := newTestEngine(store)
	ctx := context.Background()
	w, _ := engine.LoadWindow(ctx)

	a := store.article("a1", "s1", "Bus fares revised")
	a.ClusterID = "existing"

	res, _ := engine.Assign(ctx, w, []core.Article{a})
	if len(res.Assigned) != 0 || store.creates != 0 {
		t.Errorf("Expected no work for clustered article, assigned=%v creates=%d", res.Assigned, store.creates)
	}
}

func TestEngine_Assign_EachArticleInExactlyOneCluster(t *testing.T) {
	store := newMockClusterStore()
	engine := newTestEngine(store)
	ctx := context.Background()
	w, _ := engine.LoadWindow(ctx)

	titles := []string{
		"Central Bank holds policy rates steady",
		"CBSL holds policy rates steady again",
		"Heavy rain floods Colombo suburbs",
		"Colombo suburbs flooded after heavy rain",
		"Jaffna festival draws thousands",
		"Central Bank keeps rates unchanged",
	}
	var articles []core.Article
	for i, title := range titles {
		articles = append(articles, store.article(fmt.Sprintf("a%d", i), fmt.Sprintf("s%d", i%3), title))
	}

	res, err := engine.Assign(ctx, w, articles)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if len(res.Assigned) != len(titles) {
		t.Fatalf("Expected all articles assigned, got %d", len(res.Assigned))
	}

	total := 0
	for _, stats := range res.Touched {
		total += stats.ArticleCount
	}
	if total != len(titles) {
		t.Errorf("Member counts sum to %d, want %d", total, len(titles))
	}

	// Re-running with the same articles marked as clustered must not move them.
	for i := range articles {
		articles[i].ClusterID = res.Assigned[articles[i].ID]
	}
	again, _ := engine.Assign(ctx, w, articles)
	if len(again.Assigned) != 0 {
		t.Errorf("Expected no reassignment, got %v", again.Assigned)
	}

	ids := make([]string, 0, len(res.Touched))
	for id := range res.Touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) < 3 {
		t.Errorf("Expected at least three distinct stories, got %d", len(ids))
	}
}

func TestEngine_Assign_ContextCancelled(t *testing.T) {
	store := newMockClusterStore()
	engine := newTestEngine(store)
	w, _ := engine.LoadWindow(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Assign(ctx, w, []core.Article{store.article("a1", "s1", "Anything")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
