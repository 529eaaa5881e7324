package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqbot/faqbot/internal/domain"
	"github.com/faqbot/faqbot/internal/log"
	"github.com/faqbot/faqbot/internal/store"
)

// captureRecorder collects entries synchronously for assertions
type captureRecorder struct {
	entries []domain.QueryLogEntry
}

func (c *captureRecorder) Record(entry domain.QueryLogEntry) {
	c.entries = append(c.entries, entry)
}

// failingSearcher errors on every tier
type failingSearcher struct{}

func (failingSearcher) TextSearch(context.Context, string) ([]domain.ScoredRecord, error) {
	return nil, assert.AnError
}
func (failingSearcher) RegexSearch(context.Context, string) ([]domain.KnowledgeRecord, error) {
	return nil, assert.AnError
}
func (failingSearcher) TagSearch(context.Context, []string) ([]domain.KnowledgeRecord, error) {
	return nil, assert.AnError
}

const fallback = "Sorry, I don't know."

func newTestResolver(t *testing.T) (*Resolver, *store.Store, *captureRecorder) {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rec := &captureRecorder{}
	return New(s, rec, fallback, log.NewNop()), s, rec
}

func seed(t *testing.T, s *store.Store, question, answer string, tags []string) *domain.KnowledgeRecord {
	t.Helper()
	r, err := s.Add(context.Background(), question, answer, tags, "")
	require.NoError(t, err)
	return r
}

func TestResolve_TextTier(t *testing.T) {
	r, s, rec := newTestResolver(t)
	ctx := context.Background()

	stored := seed(t, s, "When is orientation?", "Sept 1", []string{"orientation"})

	res := r.Resolve(ctx, "orientation day", nil)

	assert.Equal(t, "Sept 1", res.Answer)
	assert.Equal(t, domain.TierText, res.MatchedBy)
	assert.Equal(t, stored.ID, res.RecordID)
	require.NotNil(t, res.Score)
	assert.Greater(t, *res.Score, 0.0)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "orientation day", rec.entries[0].Query)
	assert.Equal(t, domain.TierText, rec.entries[0].MatchedBy)
	assert.Equal(t, stored.ID, rec.entries[0].RecordID)
	assert.NotNil(t, rec.entries[0].Score)
}

func TestResolve_TextTierTakesPrecedence(t *testing.T) {
	r, s, _ := newTestResolver(t)
	ctx := context.Background()

	// Matches by text, by substring and by tag; the text tier must win.
	seed(t, s, "Where do I park?", "Lot B", []string{"parking"})

	res := r.Resolve(ctx, "park", []string{"parking"})

	assert.Equal(t, domain.TierText, res.MatchedBy)
	assert.NotNil(t, res.Score)
}

func TestResolve_RegexTier(t *testing.T) {
	r, s, rec := newTestResolver(t)
	ctx := context.Background()

	stored := seed(t, s, "When is orientation?", "Sept 1", nil)

	// "rientation" is not a word the text index knows, but it is a
	// substring of the stored question.
	res := r.Resolve(ctx, "rientation", nil)

	assert.Equal(t, domain.TierRegex, res.MatchedBy)
	assert.Equal(t, stored.ID, res.RecordID)
	assert.Nil(t, res.Score, "regex tier carries no score")

	require.Len(t, rec.entries, 1)
	assert.Nil(t, rec.entries[0].Score)
}

func TestResolve_TagTier(t *testing.T) {
	r, s, rec := newTestResolver(t)
	ctx := context.Background()

	stored := seed(t, s, "Where do I park?", "Lot B", []string{"parking"})

	res := r.Resolve(ctx, "", []string{"parking"})

	assert.Equal(t, "Lot B", res.Answer)
	assert.Equal(t, domain.TierTag, res.MatchedBy)
	assert.Equal(t, stored.ID, res.RecordID)
	assert.Nil(t, res.Score)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, domain.TierTag, rec.entries[0].MatchedBy)
}

func TestResolve_NoMatch(t *testing.T) {
	r, s, rec := newTestResolver(t)
	ctx := context.Background()

	seed(t, s, "When is orientation?", "Sept 1", []string{"orientation"})

	res := r.Resolve(ctx, "zzzzzz", []string{"nonexistent"})

	assert.Equal(t, fallback, res.Answer)
	assert.Equal(t, domain.TierNone, res.MatchedBy)
	assert.Empty(t, res.RecordID)
	assert.Nil(t, res.Score)

	require.Len(t, rec.entries, 1, "a miss still logs exactly once")
	assert.Equal(t, domain.TierNone, rec.entries[0].MatchedBy)
	assert.Empty(t, rec.entries[0].RecordID)
}

func TestResolve_EmptyQueryAndTags(t *testing.T) {
	r, _, rec := newTestResolver(t)

	res := r.Resolve(context.Background(), "", nil)

	assert.Equal(t, domain.TierNone, res.MatchedBy)
	assert.Equal(t, fallback, res.Answer)
	require.Len(t, rec.entries, 1, "nothing searched, still logged")
}

func TestResolve_BlankQuerySkipsTextTiers(t *testing.T) {
	r, s, _ := newTestResolver(t)

	seed(t, s, "Where do I park?", "Lot B", []string{"parking"})

	// Whitespace-only query goes straight to the tag tier.
	res := r.Resolve(context.Background(), "   ", []string{"parking"})
	assert.Equal(t, domain.TierTag, res.MatchedBy)
}

func TestResolve_StoreFailureDegradesToMiss(t *testing.T) {
	rec := &captureRecorder{}
	r := New(failingSearcher{}, rec, fallback, log.NewNop())

	res := r.Resolve(context.Background(), "anything", []string{"parking"})

	assert.Equal(t, domain.TierNone, res.MatchedBy)
	assert.Equal(t, fallback, res.Answer)
	require.Len(t, rec.entries, 1)
}

func TestResolve_Idempotent(t *testing.T) {
	r, s, _ := newTestResolver(t)
	ctx := context.Background()

	seed(t, s, "When is orientation?", "Sept 1", []string{"orientation"})

	first := r.Resolve(ctx, "orientation", nil)
	second := r.Resolve(ctx, "orientation", nil)

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.MatchedBy, second.MatchedBy)
	require.NotNil(t, first.Score)
	require.NotNil(t, second.Score)
	assert.Equal(t, *first.Score, *second.Score)
}
