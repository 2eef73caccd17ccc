package inventory

import (
	"context"

	"stocksync-api/internal/model"
)

// Page is one page of the remote catalog listing.
type Page struct {
	Number       int
	Size         int
	Items        []model.CatalogItem
	Received     int // entries the remote sent, including unreadable ones
	Skipped      int // entries dropped because they could not be read
	TotalEntries int
}

// Last reports whether this page ends the catalog.
func (p *Page) Last() bool {
	if p.Received < p.Size {
		return true
	}
	return p.TotalEntries > 0 && p.Number*p.Size >= p.TotalEntries
}

// PageFetcher fetches a single catalog page.
type PageFetcher interface {
	FetchInventoryPage(ctx context.Context, pageNumber, pageSize int) (*Page, error)
}

// Pager walks the catalog one page at a time. Pages are fetched only when
// Next is called, and a pager can be rewound or resumed from a cursor.
// A Pager is not safe for concurrent use.
type Pager struct {
	fetcher  PageFetcher
	pageSize int
	next     int
	done     bool
}

// NewPager creates a pager starting at page 1.
func NewPager(fetcher PageFetcher, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Pager{fetcher: fetcher, pageSize: pageSize, next: 1}
}

// Next fetches the next page. It returns nil, nil once the catalog is exhausted.
// On error the cursor is not advanced, so calling Next again retries the same page.
func (p *Pager) Next(ctx context.Context) (*Page, error) {
	if p.done {
		return nil, nil
	}
	page, err := p.fetcher.FetchInventoryPage(ctx, p.next, p.pageSize)
	if err != nil {
		return nil, err
	}
	p.next++
	if page.Last() {
		p.done = true
	}
	return page, nil
}

// Cursor returns the number of the page the next call to Next will fetch.
func (p *Pager) Cursor() int {
	return p.next
}

// Seek positions the pager so that Next fetches pageNumber.
func (p *Pager) Seek(pageNumber int) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	p.next = pageNumber
	p.done = false
}

// Reset rewinds the pager to the first page.
func (p *Pager) Reset() {
	p.Seek(1)
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int {
	return p.pageSize
}
