package github

import (
	"context"
	"fmt"
	"iter"

	"github.com/shurcooL/githubv4"
)

// PageInfo mirrors the GraphQL PageInfo object.
type PageInfo struct {
	HasNextPage bool
	EndCursor   githubv4.String
}

// PageFunc fetches the page after cursor (nil for the first page).
type PageFunc[T any] func(ctx context.Context, cursor *githubv4.String) ([]T, PageInfo, error)

// Pages returns a lazy sequence over the pages of a connection. Each
// iteration of the sequence starts again from the first page. Iteration
// stops after the first error, which is yielded with a nil page.
func Pages[T any](ctx context.Context, fetch PageFunc[T]) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		var cursor *githubv4.String
		for page := 0; ; page++ {
			if page >= MaxPages {
				yield(nil, fmt.Errorf("pagination exceeded %d pages", MaxPages))
				return
			}
			nodes, info, err := fetch(ctx, cursor)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(nodes, nil) {
				return
			}
			if !info.HasNextPage {
				return
			}
			next := info.EndCursor
			cursor = &next
		}
	}
}

// Collect consumes every page of seq.
func Collect[T any](seq iter.Seq2[[]T, error]) ([]T, error) {
	var all []T
	for page, err := range seq {
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return all, nil
}
