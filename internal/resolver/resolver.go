// Package resolver picks the single best answer for a query.
//
// Three tiers run in strict priority order, short-circuiting on the first
// hit: full-text relevance, then literal substring containment, then tag
// intersection. Each tier is strictly less precise than the one before it;
// the ordering trades recall for precision.
package resolver

import (
	"context"
	"strings"

	"github.com/faqbot/faqbot/internal/domain"
	"github.com/faqbot/faqbot/internal/log"
)

// Searcher is the read side of the knowledge store used by the resolver.
type Searcher interface {
	TextSearch(ctx context.Context, query string) ([]domain.ScoredRecord, error)
	RegexSearch(ctx context.Context, query string) ([]domain.KnowledgeRecord, error)
	TagSearch(ctx context.Context, tags []string) ([]domain.KnowledgeRecord, error)
}

// Recorder receives one entry per resolution attempt, hit or miss.
type Recorder interface {
	Record(entry domain.QueryLogEntry)
}

// Resolver resolves queries against the knowledge store.
type Resolver struct {
	store          Searcher
	recorder       Recorder
	logger         log.Logger
	fallbackAnswer string
}

// New wires the resolver to its store and query recorder.
func New(store Searcher, recorder Recorder, fallbackAnswer string, logger log.Logger) *Resolver {
	return &Resolver{
		store:          store,
		recorder:       recorder,
		logger:         logger,
		fallbackAnswer: fallbackAnswer,
	}
}

// Resolve returns the best match for query and tags. Every invocation records
// exactly one query-log entry, including when both inputs are empty and
// nothing is searched. A store failure in one tier is logged and treated as a
// miss for that tier.
func (r *Resolver) Resolve(ctx context.Context, query string, tags []string) *domain.Resolution {
	res := r.lookup(ctx, query, tags)

	r.recorder.Record(domain.QueryLogEntry{
		Query:     query,
		RecordID:  res.RecordID,
		Score:     res.Score,
		MatchedBy: res.MatchedBy,
	})

	return res
}

func (r *Resolver) lookup(ctx context.Context, query string, tags []string) *domain.Resolution {
	hasQuery := strings.TrimSpace(query) != ""

	if hasQuery {
		scored, err := r.store.TextSearch(ctx, query)
		if err != nil {
			r.logger.Error("text search failed", "error", err, "query", query)
		} else if len(scored) > 0 {
			best := scored[0]
			score := best.Score
			return &domain.Resolution{
				Answer:    best.Answer,
				Source:    best.Source,
				Tags:      best.Tags,
				MatchedBy: domain.TierText,
				Score:     &score,
				RecordID:  best.ID,
			}
		}

		records, err := r.store.RegexSearch(ctx, query)
		if err != nil {
			r.logger.Error("regex search failed", "error", err, "query", query)
		} else if len(records) > 0 {
			return resolution(records[0], domain.TierRegex)
		}
	}

	if len(tags) > 0 {
		records, err := r.store.TagSearch(ctx, tags)
		if err != nil {
			r.logger.Error("tag search failed", "error", err, "tags", tags)
		} else if len(records) > 0 {
			return resolution(records[0], domain.TierTag)
		}
	}

	return &domain.Resolution{
		Answer:    r.fallbackAnswer,
		MatchedBy: domain.TierNone,
	}
}

func resolution(rec domain.KnowledgeRecord, tier domain.MatchTier) *domain.Resolution {
	return &domain.Resolution{
		Answer:    rec.Answer,
		Source:    rec.Source,
		Tags:      rec.Tags,
		MatchedBy: tier,
		RecordID:  rec.ID,
	}
}
