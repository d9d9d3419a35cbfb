package pipeline

import (
	"context"
	"sync"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// job is the working state for enriching one cluster. Stage tasks read a
// snapshot, call out without holding the lock, and commit their results
// through commit. Once sealed, and for any task whose context has ended,
// commits are dropped so that timed out tasks cannot write late.
type job struct {
	mu     sync.Mutex
	sealed bool

	cluster    core.Cluster
	summary    core.Summary
	hadSummary bool
	articles   []core.Article
	needs      Needs

	sourceLang   core.Language // Language the summary is generated in
	headlineLang core.Language // Language of the canonical headline

	regenerated    bool // Summary text replaced this run
	summaryChanged bool // Summary record must be written
	categorized    bool
	errs           []error
}

func newJob(c core.Cluster, summary *core.Summary, articles []core.Article, needs Needs) *job {
	j := &job{
		cluster:  cloneCluster(c),
		articles: articles,
		needs:    needs,
	}
	if summary != nil {
		j.summary = cloneSummary(*summary)
		j.hadSummary = true
	} else {
		j.summary = core.Summary{ClusterID: c.ID}
	}
	return j
}

// commit applies fn under the lock unless the job is sealed or ctx is done.
func (j *job) commit(ctx context.Context, fn func()) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sealed || ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

// read runs fn under the lock.
func (j *job) read(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn()
}

// addErr records a non-fatal stage error.
func (j *job) addErr(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.sealed {
		j.errs = append(j.errs, err)
	}
}

// outcome is the sealed state of a job, owned by the publisher.
type outcome struct {
	cluster        core.Cluster
	summary        core.Summary
	articles       []core.Article
	sourceLang     core.Language
	headlineLang   core.Language
	regenerated    bool
	summaryChanged bool
	categorized    bool
	errs           []error
}

// seal stops further commits and returns a private copy of the state.
func (j *job) seal() *outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sealed = true
	return &outcome{
		cluster:        cloneCluster(j.cluster),
		summary:        cloneSummary(j.summary),
		articles:       j.articles,
		sourceLang:     j.sourceLang,
		headlineLang:   j.headlineLang,
		regenerated:    j.regenerated,
		summaryChanged: j.summaryChanged,
		categorized:    j.categorized,
		errs:           append([]error(nil), j.errs...),
	}
}

// summaryText returns the summary in lang, falling back to the source
// language and then any language.
func summaryText(s core.Summary, lang core.Language) string {
	if v := s.Texts.Get(lang); v != "" {
		return v
	}
	_, v := s.Texts.Best(s.SourceLanguage)
	return v
}

// headlineText returns the headline in lang, falling back to the canonical one.
func headlineText(c core.Cluster, lang core.Language) string {
	if v := c.Headlines.Get(lang); v != "" {
		return v
	}
	return c.Headline
}

func cloneCluster(c core.Cluster) core.Cluster {
	out := c
	out.Headlines = c.Headlines.Clone()
	out.MetaTitles = c.MetaTitles.Clone()
	out.MetaDescriptions = c.MetaDescriptions.Clone()
	out.HeadlineScores = cloneScores(c.HeadlineScores)
	out.Topics = append([]string(nil), c.Topics...)
	out.Entities = append([]string(nil), c.Entities...)
	return out
}

func cloneSummary(s core.Summary) core.Summary {
	out := s
	out.Texts = s.Texts.Clone()
	out.Scores = cloneScores(s.Scores)
	out.KeyFacts = append([]string(nil), s.KeyFacts...)
	out.TranslationStatus = make(map[core.Language]core.TranslationStatus, len(s.TranslationStatus))
	for k, v := range s.TranslationStatus {
		out.TranslationStatus[k] = v
	}
	return out
}

func cloneScores(in map[core.Language]float64) map[core.Language]float64 {
	out := make(map[core.Language]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
