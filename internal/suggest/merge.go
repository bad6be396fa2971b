package suggest

import (
	"sort"
	"time"

	"github.com/MrWong99/emotive/internal/intensity"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/internal/taxonomy"
	"github.com/MrWong99/emotive/pkg/types"
)

// maxMerged is the number of suggestions kept after merging.
const maxMerged = 3

// Merge combines semantic and rule-based matches for one transcript.
//
// A top semantic match above priority leads as a "semantic" suggestion. Rule
// matches follow, each only if its emoji has not been seen yet. When nothing
// qualified but semantic matches exist, the top one is used alone as a
// "semantic-low" fallback. The result is sorted by confidence, highest first,
// and truncated to three.
func Merge(sem []semantic.Match, rules []types.Suggestion, priority float64, now time.Time) []types.Suggestion {
	var out []types.Suggestion
	seen := make(map[string]struct{})

	if len(sem) > 0 && sem[0].Similarity > priority {
		out = append(out, fromSemantic(sem[0], types.SourceSemantic, now))
		seen[sem[0].Emoji] = struct{}{}
	}

	for _, r := range rules {
		if _, dup := seen[r.Emoji]; dup {
			continue
		}
		r.Source = types.SourceRule
		out = append(out, r)
		seen[r.Emoji] = struct{}{}
	}

	if len(out) == 0 && len(sem) > 0 {
		out = append(out, fromSemantic(sem[0], types.SourceSemanticLow, now))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > maxMerged {
		out = out[:maxMerged]
	}
	return out
}

func fromSemantic(m semantic.Match, src types.SuggestionSource, now time.Time) types.Suggestion {
	s := types.Suggestion{
		Keyword:       taxonomy.ShortName(m.Category),
		Emoji:         m.Emoji,
		MediaPatterns: append([]string(nil), m.MediaPatterns...),
		Confidence:    types.Clamp01(m.Similarity),
		Source:        src,
		Timestamp:     now,
	}
	if len(m.MediaPatterns) > 0 {
		s.SearchQuery = m.MediaPatterns[0]
	}
	return s
}

// ApplyIntensity rescales every confidence by the detected intensity and
// records the level. The input is not modified.
func ApplyIntensity(in []types.Suggestion, r intensity.Result) []types.Suggestion {
	out := make([]types.Suggestion, len(in))
	for i, s := range in {
		s.Confidence = r.Adjust(s.Confidence)
		s.IntensityLevel = string(r.Level)
		out[i] = s
	}
	return out
}
