package events

import (
	"context"
	"fmt"
)

// PagedEvents is one stable page of the event stream plus the total
// matching row count.
type PagedEvents struct {
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int64           `json:"total"`
	List  []ActivityEvent `json:"list"`
}

// Pager returns ordered pages of events, newest first.
type Pager struct {
	store Store
}

// NewPager creates a pager over store.
func NewPager(store Store) *Pager {
	return &Pager{store: store}
}

// Page returns the 1-based page of the given size. Zero or negative
// page numbers and sizes fail with ErrInvalidPageRequest rather than
// silently returning an empty or unbounded page.
func (p *Pager) Page(ctx context.Context, page, size int) (*PagedEvents, error) {
	if page <= 0 || size <= 0 {
		return nil, fmt.Errorf("page %d size %d: %w", page, size, ErrInvalidPageRequest)
	}

	list, err := p.store.ListEvents(ctx, size, (page-1)*size)
	if err != nil {
		return nil, err
	}

	total, err := p.store.CountEvents(ctx)
	if err != nil {
		return nil, err
	}

	return &PagedEvents{
		Page:  page,
		Limit: size,
		Total: total,
		List:  list,
	}, nil
}
