package fleetapi

import (
	"context"
	"fmt"
)

// Page fetches one page starting at token and returns its items and the
// token of the next page ("" when there is none).
type Page[T any] func(ctx context.Context, token string) ([]T, string, error)

// Paginate drains every page of fetch
func Paginate[T any](ctx context.Context, fetch Page[T]) ([]T, error) {
	var (
		all   []T
		token string
		seen  = make(map[string]struct{})
	)
	for {
		items, next, err := fetch(ctx, token)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("pagination token %q repeated", next)
		}
		seen[next] = struct{}{}
		token = next
	}
}

// DescribeAllFleets drains DescribeFleets for the given names (all fleets when empty)
func DescribeAllFleets(ctx context.Context, api API, names ...string) ([]FleetDescription, error) {
	return Paginate(ctx, func(ctx context.Context, token string) ([]FleetDescription, string, error) {
		out, err := api.DescribeFleets(ctx, &DescribeFleetsInput{FleetNames: names, NextToken: token})
		if err != nil {
			return nil, "", err
		}
		return out.Fleets, out.NextToken, nil
	})
}
