package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/livepoll/go/internal/archive"
)

func setupArchive(ctx context.Context, databaseURL string) (*archive.Archive, *pgxpool.Pool, error) {
	pool, err := archive.Connect(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}

	results := archive.New(pool)
	if err := results.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to prepare archive schema: %w", err)
	}
	return results, pool, nil
}
