package retrieval

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/henrikfb/mailsift/internal/model"
)

// FetchAndSearch runs the fetch chain and the search backend concurrently
// and keeps whichever successful result carries more content.
type FetchAndSearch struct {
	fetch  Retriever
	search Retriever
}

func NewFetchAndSearch(fetch, search Retriever) *FetchAndSearch {
	return &FetchAndSearch{fetch: fetch, search: search}
}

func (f *FetchAndSearch) Name() string { return "fetch-and-search" }

func (f *FetchAndSearch) Retrieve(ctx context.Context, req Request) (*model.RetrievedUnit, error) {
	var fetched, searched *model.RetrievedUnit
	var fetchErr, searchErr error

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, fetchErr = f.fetch.Retrieve(gCtx, req)
		return nil
	})
	g.Go(func() error {
		searched, searchErr = f.search.Retrieve(gCtx, req)
		return nil
	})
	_ = g.Wait()

	switch {
	case fetchErr == nil && searchErr == nil:
		if len(searched.Content) > len(fetched.Content) {
			return searched, nil
		}
		return fetched, nil
	case fetchErr == nil:
		return fetched, nil
	case searchErr == nil:
		return searched, nil
	default:
		return nil, eris.Wrap(fetchErr, "retrieval: both fetch and search failed")
	}
}
