package paginate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentwallet/internal/domain"
)

type pager struct {
	pages    map[domain.Offset]domain.RecordsBundle
	requests []domain.Offset
}

func (p *pager) fetch(_ context.Context, offset domain.Offset) (domain.RecordsBundle, error) {
	p.requests = append(p.requests, offset)
	page, ok := p.pages[offset]
	if !ok {
		return domain.RecordsBundle{}, errors.New("unexpected offset " + string(offset))
	}
	return page, nil
}

func records(ids ...string) map[string]domain.ProcessingRecord {
	out := map[string]domain.ProcessingRecord{}
	for _, id := range ids {
		out[id] = domain.ProcessingRecord{UUID: id}
	}
	return out
}

func TestAllStopsWhenCursorIsAbsent(t *testing.T) {
	p := &pager{pages: map[domain.Offset]domain.RecordsBundle{
		"":                     {ProcessingRecords: records("r1", "r2"), NextOffset: "2024-01-01T00:00:00Z"},
		"2024-01-01T00:00:00Z": {ProcessingRecords: records("r3")},
	}}
	merged, err := All(context.Background(), p.fetch, "")
	require.NoError(t, err)
	assert.Equal(t, []domain.Offset{"", "2024-01-01T00:00:00Z"}, p.requests)
	assert.Len(t, merged.ProcessingRecords, 3)
	assert.True(t, merged.Next().IsZero())
}

func TestAllMergeIsKeyUnion(t *testing.T) {
	p := &pager{pages: map[domain.Offset]domain.RecordsBundle{
		"":   {ProcessingRecords: records("a", "b"), NextOffset: "20"},
		"20": {ProcessingRecords: records("c", "d"), NextOffset: "40"},
		"40": {ProcessingRecords: records("e")},
	}}
	merged, err := All(context.Background(), p.fetch, "")
	require.NoError(t, err)
	keys := make([]string, 0, len(merged.ProcessingRecords))
	for k := range merged.ProcessingRecords {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, keys)
}

func TestAllStopsOnRepeatedCursor(t *testing.T) {
	p := &pager{pages: map[domain.Offset]domain.RecordsBundle{
		"":  {ProcessingRecords: records("a"), NextOffset: "x"},
		"x": {ProcessingRecords: records("b"), NextOffset: "x"},
	}}
	merged, err := All(context.Background(), p.fetch, "")
	require.NoError(t, err)
	assert.Len(t, p.requests, 2)
	assert.Len(t, merged.ProcessingRecords, 2)
}

func TestAllPropagatesErrors(t *testing.T) {
	p := &pager{pages: map[domain.Offset]domain.RecordsBundle{
		"": {NextOffset: "missing"},
	}}
	_, err := All(context.Background(), p.fetch, "")
	assert.ErrorContains(t, err, "unexpected offset missing")
}

func TestFeedLoadsIncrementally(t *testing.T) {
	p := &pager{pages: map[domain.Offset]domain.RecordsBundle{
		"start": {ProcessingRecords: records("a"), NextOffset: "p2"},
		"p2":    {ProcessingRecords: records("b")},
	}}
	feed := NewFeed(p.fetch, "start")
	assert.True(t, feed.HasMore())
	assert.Equal(t, domain.Offset("start"), feed.Cursor())

	items, err := feed.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Len(t, items.ProcessingRecords, 1)
	assert.True(t, feed.HasMore())
	assert.Equal(t, domain.Offset("p2"), feed.Cursor())

	items, err = feed.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Len(t, items.ProcessingRecords, 2)
	assert.False(t, feed.HasMore())

	_, err = feed.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, feed.Pages())
	assert.Len(t, p.requests, 2)
	assert.Len(t, feed.Items().ProcessingRecords, 2)
}

func TestFeedLoadPagesResumesFromCursor(t *testing.T) {
	p := &pager{pages: map[domain.Offset]domain.RecordsBundle{
		"20": {ProcessingRecords: records("c", "d"), NextOffset: "40"},
		"40": {ProcessingRecords: records("e"), NextOffset: "60"},
		"60": {ProcessingRecords: records("f")},
	}}
	feed := NewFeed(p.fetch, "20")
	assert.Equal(t, domain.Offset("20"), feed.Cursor())

	got, err := feed.LoadPages(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, got.ProcessingRecords, 3)
	assert.True(t, feed.HasMore())
	assert.Equal(t, domain.Offset("60"), feed.Cursor())

	got, err = feed.LoadPages(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, got.ProcessingRecords, 4)
	assert.False(t, feed.HasMore())
	assert.Equal(t, []domain.Offset{"20", "40", "60"}, p.requests)
}
