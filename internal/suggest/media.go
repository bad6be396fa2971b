package suggest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/internal/taxonomy"
	"github.com/MrWong99/emotive/pkg/types"
)

// fallbackQuery is searched when nothing better can be derived.
const fallbackQuery = "reaction gif"

// mediaQueries derives search queries for the top suggestion. When the other
// party recently spoke, their topics lead the list so results fit the
// conversation.
func (o *Orchestrator) mediaQueries(top types.Suggestion, topSem *semantic.Match, text string, cfg Config) []string {
	hint := keyword.QueryHint{
		MediaPatterns:  top.MediaPatterns,
		Emoji:          top.Emoji,
		Keyword:        top.Keyword,
		SearchQuery:    top.SearchQuery,
		IntensityLevel: top.IntensityLevel,
	}
	if len(hint.MediaPatterns) == 0 && topSem != nil {
		hint.MediaPatterns = topSem.MediaPatterns
	}
	standard := o.keywords.MediaQueries(text, hint)

	var queries []string
	if topics := o.buffer.OtherSpeakerTopics(cfg.TopicsLookback); len(topics) > 0 {
		sentiment := hint.Keyword
		if topSem != nil {
			sentiment = taxonomy.ShortName(topSem.Category)
		}
		if sentiment != "" {
			queries = append(queries, topics[0]+" "+sentiment)
		}
		if len(topics) > 1 {
			queries = append(queries, topics[0]+" "+topics[1]+" reaction")
		} else {
			queries = append(queries, topics[0]+" reaction")
		}
		if n := len(hint.MediaPatterns); n > 0 {
			queries = append(queries, hint.MediaPatterns[o.pick(n)])
		}
		queries = append(queries, standard...)
		queries = keyword.DedupeQueries(queries, 3)
	} else {
		queries = standard
	}

	if len(queries) == 0 {
		q := strings.TrimSpace(top.SearchQuery)
		if q == "" {
			q = fallbackQuery
		}
		queries = []string{q}
	}
	return queries
}

func (o *Orchestrator) pick(n int) int {
	i := int(o.rnd() * float64(n))
	return min(max(i, 0), n-1)
}

// fetchMedia runs the top suggestion's queries in order and collects unique
// items until the configured limit. Failed queries are skipped.
func (o *Orchestrator) fetchMedia(ctx context.Context, suggestions []types.Suggestion, topSem *semantic.Match, text string, cfg Config) []types.MediaItem {
	if len(suggestions) == 0 {
		return nil
	}
	queries := o.mediaQueries(suggestions[0], topSem, text, cfg)
	if len(queries) > cfg.MaxMediaQueries {
		queries = queries[:cfg.MaxMediaQueries]
	}

	seen := make(map[string]struct{})
	var out []types.MediaItem
	for _, q := range queries {
		if ctx.Err() != nil {
			return out
		}
		items, err := o.searchCached(ctx, q, cfg.MediaPerQuery)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("suggest: media search failed", "query", q, "err", err)
			}
			continue
		}
		for _, it := range items {
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			out = append(out, it)
			if len(out) >= cfg.MaxMediaItems {
				return out
			}
		}
	}
	return out
}

// searchCached serves query results from the query cache, searching the
// provider on a miss.
func (o *Orchestrator) searchCached(ctx context.Context, query string, limit int) ([]types.MediaItem, error) {
	if items, ok := o.queries.Get(query); ok {
		o.metrics.RecordCacheLookup(ctx, "query", true)
		return items, nil
	}
	o.metrics.RecordCacheLookup(ctx, "query", false)
	items, err := o.media.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	o.queries.Put(query, items)
	return items, nil
}
