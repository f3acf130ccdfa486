package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/portfolio-rag/internal/storage"
)

type fakeEmbedder struct {
	calls []string
	err   error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeMatcher struct {
	queries []storage.MatchQuery
	matches []storage.Match
	err     error
}

func (f *fakeMatcher) Match(_ context.Context, q storage.MatchQuery) ([]storage.Match, error) {
	f.queries = append(f.queries, q)
	return f.matches, f.err
}

func TestRetrieve_SingleMatch(t *testing.T) {
	embedder := &fakeEmbedder{}
	matcher := &fakeMatcher{matches: []storage.Match{{Content: "X", Similarity: 0.9}}}
	r := New(embedder, matcher, "user-1", nil)

	got := r.Retrieve(context.Background(), "what are your skills?", WithTopK(5), WithMinSimilarity(0.3))
	assert.Equal(t, "[Source 1]\nX", got)

	require.Len(t, matcher.queries, 1)
	q := matcher.queries[0]
	assert.Equal(t, 5, q.Count)
	assert.Equal(t, 0.3, q.Threshold)
	assert.Equal(t, "user-1", q.OwnerID)
	assert.Equal(t, []float32{0.1, 0.2}, q.Embedding)
	assert.Equal(t, []string{"what are your skills?"}, embedder.calls)
}

func TestRetrieve_BlankQuery(t *testing.T) {
	embedder := &fakeEmbedder{}
	matcher := &fakeMatcher{}
	r := New(embedder, matcher, "user-1", nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		assert.Equal(t, "", r.Retrieve(context.Background(), q))
	}
	assert.Empty(t, embedder.calls, "blank queries must not be embedded")
	assert.Empty(t, matcher.queries)
}

func TestRetrieve_NoMatches(t *testing.T) {
	r := New(&fakeEmbedder{}, &fakeMatcher{}, "user-1", nil)
	assert.Equal(t, "", r.Retrieve(context.Background(), "anything"))
}

func TestRetrieve_PreservesStoreOrder(t *testing.T) {
	matcher := &fakeMatcher{matches: []storage.Match{
		{Content: "first", Similarity: 0.95},
		{Content: "second", Similarity: 0.8},
		{Content: "third", Similarity: 0.5},
	}}
	r := New(&fakeEmbedder{}, matcher, "user-1", nil)

	got := r.Retrieve(context.Background(), "experience")
	assert.Equal(t, "[Source 1]\nfirst\n\n[Source 2]\nsecond\n\n[Source 3]\nthird", got)
}

func TestRetrieve_ErrorsDegradeToEmpty(t *testing.T) {
	t.Run("embedder", func(t *testing.T) {
		r := New(&fakeEmbedder{err: errors.New("quota")}, &fakeMatcher{}, "user-1", nil)
		assert.Equal(t, "", r.Retrieve(context.Background(), "skills"))
	})
	t.Run("store", func(t *testing.T) {
		r := New(&fakeEmbedder{}, &fakeMatcher{err: errors.New("timeout")}, "user-1", nil)
		assert.Equal(t, "", r.Retrieve(context.Background(), "skills"))
	})
}

func TestSearch_ReturnsErrors(t *testing.T) {
	storeErr := errors.New("timeout")
	r := New(&fakeEmbedder{}, &fakeMatcher{err: storeErr}, "user-1", nil)

	_, err := r.Search(context.Background(), "skills")
	assert.ErrorIs(t, err, storeErr)
}

func TestNew_Defaults(t *testing.T) {
	matcher := &fakeMatcher{}
	r := New(&fakeEmbedder{}, matcher, "user-1", nil)
	r.Retrieve(context.Background(), "q")

	require.Len(t, matcher.queries, 1)
	assert.Equal(t, DefaultTopK, matcher.queries[0].Count)
	assert.Equal(t, DefaultMinSimilarity, matcher.queries[0].Threshold)
}

func TestNew_OverrideDefaults(t *testing.T) {
	matcher := &fakeMatcher{}
	r := New(&fakeEmbedder{}, matcher, "user-1", nil, WithTopK(3), WithMinSimilarity(0.5))
	r.Retrieve(context.Background(), "q", WithTopK(0))

	require.Len(t, matcher.queries, 1)
	assert.Equal(t, 3, matcher.queries[0].Count, "non-positive top-k keeps the default")
	assert.Equal(t, 0.5, matcher.queries[0].Threshold)
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, "", FormatContext(nil))
	assert.Equal(t, "[Source 1]\na\n\n[Source 2]\nb", FormatContext([]storage.Match{{Content: "a"}, {Content: "b"}}))
}
