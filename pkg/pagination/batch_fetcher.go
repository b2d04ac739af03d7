package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/payload-cache/pkg/payload"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

// PageParam is the query parameter selecting a page.
const PageParam = "page"

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages caps the walk; 0 means no cap
	MaxPages int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
	}
}

// PageFetcher fetches a single page of a collection.
type PageFetcher interface {
	FetchPage(ctx context.Context, endpoint string, params query.Params, page int) (payload.Document, error)
}

// PageResult is the outcome of fetching one page.
type PageResult struct {
	PageNumber int
	Params     query.Params
	Document   payload.Document
	Error      error
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// PageParams returns a copy of params selecting page.
func PageParams(params query.Params, page int) query.Params {
	return params.Set(PageParam, page)
}

// FetchAllPages fetches every page of endpoint. Only a failure of the first
// page is returned as an error; later page failures are reported in their
// PageResult.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, endpoint string, params query.Params) ([]PageResult, error) {
	start := time.Now()

	first, err := bf.fetch(ctx, endpoint, params, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	totalPages := first.TotalPages()
	if bf.config.MaxPages > 0 && totalPages > bf.config.MaxPages {
		log.Warn().
			Str("endpoint", endpoint).
			Int("total_pages", totalPages).
			Int("max_pages", bf.config.MaxPages).
			Msg("Capping collection walk")
		totalPages = bf.config.MaxPages
	}

	results := []PageResult{{PageNumber: 1, Params: PageParams(params, 1), Document: first}}
	if totalPages == 1 {
		log.Info().
			Str("endpoint", endpoint).
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	log.Info().
		Str("endpoint", endpoint).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	pageQueue := make(chan int, totalPages-1)
	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	pageResults := make(chan PageResult, totalPages-1)
	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency && i < totalPages-1; i++ {
		wg.Add(1)
		go bf.worker(ctx, endpoint, params, pageQueue, pageResults, &wg, i)
	}
	go func() {
		wg.Wait()
		close(pageResults)
	}()

	failed := 0
	for result := range pageResults {
		if result.Error != nil {
			failed++
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].PageNumber < results[j].PageNumber
	})

	log.Info().
		Str("endpoint", endpoint).
		Int("pages", len(results)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

func (bf *BatchFetcher) fetch(ctx context.Context, endpoint string, params query.Params, page int) (payload.Document, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.fetcher.FetchPage(pageCtx, endpoint, params, page)
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, endpoint string, params query.Params, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		result := PageResult{PageNumber: pageNum, Params: PageParams(params, pageNum)}

		if err := ctx.Err(); err != nil {
			result.Error = err
		} else {
			result.Document, result.Error = bf.fetch(ctx, endpoint, params, pageNum)
		}

		if result.Error != nil {
			log.Warn().
				Err(result.Error).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
		}

		results <- result
		pagesProcessed++
	}

	log.Debug().
		Int("worker_id", workerID).
		Int("pages_processed", pagesProcessed).
		Msg("Worker completed")
}
