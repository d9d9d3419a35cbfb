package pipeline

import (
	"strings"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// repairTopics keeps known taxonomy tags and guarantees at least one
// geographic and one content tag, injecting defaults when either is missing.
// The result is sorted.
func repairTopics(topics []string) []string {
	var out []string
	var geo, content bool
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		switch {
		case core.IsGeoTopic(t):
			geo = true
		case core.IsContentTopic(t):
			content = true
		default:
			continue
		}
		out = append(out, t)
	}
	if !geo {
		out = append(out, core.TopicLocal)
	}
	if !content {
		out = append(out, core.TopicGeneral)
	}
	return core.SortStrings(out)
}

// hasRequiredTopics reports whether topics satisfy the taxonomy rule.
func hasRequiredTopics(topics []string) bool {
	var geo, content bool
	for _, t := range topics {
		geo = geo || core.IsGeoTopic(t)
		content = content || core.IsContentTopic(t)
	}
	return geo && content
}
