package core

import (
	"context"
	"fmt"
	"iter"
)

// DefaultDrainPageSize is the page size used when draining a paged listing.
const DefaultDrainPageSize = 100

// Sort directions accepted by PageLink.
const (
	SortASC  = "ASC"
	SortDESC = "DESC"
)

// SortOrder selects the sort column and direction of a page request.
type SortOrder struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

// PageLink is a page cursor. Page is zero based.
type PageLink struct {
	PageSize   int        `json:"pageSize"`
	Page       int        `json:"page"`
	TextSearch string     `json:"textSearch,omitempty"`
	SortOrder  *SortOrder `json:"sortOrder,omitempty"`
}

// NewPageLink builds a link to the first page.
func NewPageLink(pageSize int) PageLink {
	return PageLink{PageSize: pageSize}
}

// NextPageLink returns the cursor for the page following l.
func (l PageLink) NextPageLink() PageLink {
	next := l
	next.Page = l.Page + 1
	return next
}

// Offset is the number of rows preceding the page.
func (l PageLink) Offset() int {
	return l.Page * l.PageSize
}

// Validate checks the numeric bounds of the link.
func (l PageLink) Validate() error {
	if l.PageSize < 1 {
		return NewInvalidParameterError("Incorrect pageSize %d", l.PageSize)
	}
	if l.Page < 0 {
		return NewInvalidParameterError("Incorrect page %d", l.Page)
	}
	if l.SortOrder != nil && l.SortOrder.Direction != SortASC && l.SortOrder.Direction != SortDESC {
		return NewInvalidParameterError("Incorrect sortOrder %q", l.SortOrder.Direction)
	}
	return nil
}

// PageData is one page of a listing.
type PageData[T any] struct {
	Data          []T   `json:"data"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	HasNext       bool  `json:"hasNext"`
}

// NewPageData computes the paging totals for items fetched with link.
func NewPageData[T any](items []T, total int64, link PageLink) PageData[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if link.PageSize > 0 {
		pages = int((total + int64(link.PageSize) - 1) / int64(link.PageSize))
	}
	return PageData[T]{
		Data:          items,
		TotalPages:    pages,
		TotalElements: total,
		HasNext:       int64(link.Offset()+len(items)) < total,
	}
}

// MapPage copies a page with each item transformed by fn.
func MapPage[T, R any](page PageData[T], fn func(T) R) PageData[R] {
	out := make([]R, len(page.Data))
	for i, item := range page.Data {
		out[i] = fn(item)
	}
	return PageData[R]{
		Data:          out,
		TotalPages:    page.TotalPages,
		TotalElements: page.TotalElements,
		HasNext:       page.HasNext,
	}
}

// PageFetcher returns the page addressed by link.
type PageFetcher[T any] func(ctx context.Context, link PageLink) (PageData[T], error)

// DrainAll follows fetch from the first page while HasNext is true and returns every
// item in page order. The result is complete only if the source is not mutated during
// the drain; concurrent inserts or deletes can duplicate or skip items.
func DrainAll[T any](ctx context.Context, pageSize int, fetch PageFetcher[T]) ([]T, error) {
	var all []T
	for item, err := range Pages(ctx, pageSize, fetch) {
		if err != nil {
			return all, err
		}
		all = append(all, item)
	}
	return all, nil
}

// Pages is the lazy form of DrainAll. The sequence is finite and not restartable once
// iteration stops early. A fetch error is yielded once and ends the sequence.
func Pages[T any](ctx context.Context, pageSize int, fetch PageFetcher[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if pageSize < 1 {
			yield(zero, fmt.Errorf("page size must be positive, got %d", pageSize))
			return
		}
		link := NewPageLink(pageSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			page, err := fetch(ctx, link)
			if err != nil {
				yield(zero, fmt.Errorf("failed to fetch page %d: %w", link.Page, err))
				return
			}
			for _, item := range page.Data {
				if !yield(item, nil) {
					return
				}
			}
			if !page.HasNext {
				return
			}
			link = link.NextPageLink()
		}
	}
}
