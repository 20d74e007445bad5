package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/olivere/elastic/v7"
	"go.uber.org/zap"
)

const searchRetries = 3

var searchBackoff = 5 * time.Second

func search(ctx context.Context, searchService *elastic.SearchService) (*elastic.SearchResult, error) {
	for attempt := 1; ; attempt++ {
		result, err := searchService.Do(ctx)
		if err == nil || !elastic.IsStatusCode(err, 429) || attempt == searchRetries {
			return result, err
		}

		zap.L().With(zap.Int("attempt", attempt)).Warn("Elastic: 429 (Too Many Requests)")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(searchBackoff):
		}
	}
}

func decodeHits[T any](results *elastic.SearchResult) ([]T, error) {
	docs := make([]T, 0, len(results.Hits.Hits))
	for _, hit := range results.Hits.Hits {
		var doc T
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}
