// Package paginate drives the cursor pagination used by the MDS API.
package paginate

import (
	"context"
	"fmt"
	"sync"

	"consentwallet/internal/domain"
)

// DefaultMaxPages bounds All so a server that never stops returning a
// cursor cannot loop forever.
const DefaultMaxPages = 1000

// Page is a bundle that carries a cursor and can be merged by key union.
type Page[T any] interface {
	Next() domain.Offset
	Merge(other T) T
}

// FetchFunc fetches the page starting at offset. An empty offset is the
// first page.
type FetchFunc[T any] func(ctx context.Context, offset domain.Offset) (T, error)

// All fetches pages until one omits next_offset and returns their merge.
func All[T Page[T]](ctx context.Context, fetch FetchFunc[T], start domain.Offset) (T, error) {
	var merged T
	offset := start
	for i := 0; ; i++ {
		if i >= DefaultMaxPages {
			return merged, fmt.Errorf("pagination did not finish after %d pages", DefaultMaxPages)
		}
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		page, err := fetch(ctx, offset)
		if err != nil {
			return merged, err
		}
		if i == 0 {
			merged = page
		} else {
			merged = merged.Merge(page)
		}
		next := page.Next()
		if next.IsZero() || next == offset {
			return merged, nil
		}
		offset = next
	}
}

// Feed loads pages on demand, as a scrolling list asks for more rows.
type Feed[T Page[T]] struct {
	fetch FetchFunc[T]
	start domain.Offset

	mu      sync.Mutex
	merged  T
	next    domain.Offset
	pages   int
	done    bool
	loading bool
}

func NewFeed[T Page[T]](fetch FetchFunc[T], start domain.Offset) *Feed[T] {
	return &Feed[T]{fetch: fetch, start: start}
}

// LoadMore fetches the next page. It is a no-op when everything is loaded
// or another load is in flight.
func (f *Feed[T]) LoadMore(ctx context.Context) (T, error) {
	f.mu.Lock()
	if f.done || f.loading {
		merged := f.merged
		f.mu.Unlock()
		return merged, nil
	}
	offset := f.next
	if f.pages == 0 {
		offset = f.start
	}
	f.loading = true
	f.mu.Unlock()

	page, err := f.fetch(ctx, offset)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	if err != nil {
		return f.merged, err
	}
	if f.pages == 0 {
		f.merged = page
	} else {
		f.merged = f.merged.Merge(page)
	}
	f.pages++
	f.next = page.Next()
	if f.next.IsZero() || f.next == offset {
		f.done = true
	}
	return f.merged, nil
}

// LoadPages calls LoadMore until n pages are loaded in total or the feed is
// exhausted, and returns the merge.
func (f *Feed[T]) LoadPages(ctx context.Context, n int) (T, error) {
	if n < 1 {
		n = 1
	}
	for f.Pages() < n && f.HasMore() {
		if _, err := f.LoadMore(ctx); err != nil {
			return f.Items(), err
		}
	}
	return f.Items(), nil
}

// HasMore reports whether another page may exist.
func (f *Feed[T]) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.done
}

func (f *Feed[T]) Pages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages
}

// Items returns everything loaded so far.
func (f *Feed[T]) Items() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.merged
}

// Cursor is the offset the next LoadMore will use.
func (f *Feed[T]) Cursor() domain.Offset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages == 0 {
		return f.start
	}
	return f.next
}
