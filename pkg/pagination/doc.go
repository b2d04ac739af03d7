// Package pagination walks every page of a paginated Payload collection.
//
// Payload list responses carry totalPages in their envelope. The batch
// fetcher reads page 1 to learn the page count, then distributes the
// remaining pages over a bounded worker pool.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher(source, config)
//	pages, err := fetcher.FetchAllPages(ctx, "posts", query.Params{}.Add("limit", 50))
//
// The batch fetcher:
//   - Fetches the first page to determine total pages (failure aborts the walk)
//   - Spawns a worker pool (default 5 workers)
//   - Records each remaining page's document or error individually
//   - Returns results ordered by page number
package pagination
