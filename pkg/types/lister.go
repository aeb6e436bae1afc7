package types

import (
	"context"

	serrors "github.com/stratastore/strata/pkg/errors"
)

// PageFunc fetches one page of a listing. token is the opaque continuation
// handle from the previous page, empty for the first page. It returns the
// page's entries and the next token; an empty next token ends the listing.
type PageFunc func(ctx context.Context, token string) (entries []Entry, next string, err error)

// NewPageLister adapts a page-fetch function into a Lister. Pages are fetched
// on demand as the previous page is drained, so a partially consumed lister
// never fetches more than one page past what the caller saw.
func NewPageLister(fetch PageFunc) Lister {
	return &pageLister{fetch: fetch}
}

type pageLister struct {
	fetch PageFunc
	buf   []Entry
	token string
	done  bool
}

func (l *pageLister) Next(ctx context.Context) (*Entry, error) {
	for len(l.buf) == 0 {
		if l.done {
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, serrors.FromContext(err)
		}
		entries, next, err := l.fetch(ctx, l.token)
		if err != nil {
			return nil, err
		}
		l.buf = entries
		l.token = next
		if next == "" {
			l.done = true
		}
	}
	e := l.buf[0]
	l.buf = l.buf[1:]
	return &e, nil
}

// NewSliceLister returns a Lister over a fixed set of entries. Mostly useful
// for services whose backends list in one shot, and for tests.
func NewSliceLister(entries []Entry) Lister {
	return &sliceLister{entries: entries}
}

type sliceLister struct {
	entries []Entry
	pos     int
}

func (l *sliceLister) Next(ctx context.Context) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, serrors.FromContext(err)
	}
	if l.pos >= len(l.entries) {
		return nil, nil
	}
	e := l.entries[l.pos]
	l.pos++
	return &e, nil
}
