package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/agora/pkg/cache"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SearchResult is the paginated, cacheable outcome of one keyword search.
// GeneratedAt is the data-freshness stamp surfaced by the API envelope: a
// cached page reports when it was built, not when it was served.
type SearchResult struct {
	Items       []*types.Product `json:"items"`
	TotalCount  int              `json:"total_count"`
	PageCount   int              `json:"page_count"`
	Page        int              `json:"page"`
	PageSize    int              `json:"page_size"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Search runs a cached keyword search over the tenant's active products.
// Pages of the same query fill independently; concurrent identical requests
// collapse into one load.
func (s *Service) Search(ctx context.Context, query string, page, size int) (*SearchResult, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	bind, err := tenant.Current(ctx)
	if err != nil {
		return nil, err
	}

	key := cache.SearchKey(bind.Tenant.ID, query, page, size)
	raw, err := s.loader.Do(ctx, key, s.ttl, func(ctx context.Context) ([]byte, error) {
		result, err := s.search(ctx, query, page, size)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode cached search page: %w", err)
	}
	return &result, nil
}

func (s *Service) search(ctx context.Context, query string, page, size int) (*SearchResult, error) {
	products, err := s.guard.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*types.Product, 0, len(products))
	for _, p := range products {
		if p.Status != types.ProductStatusActive {
			continue
		}
		if query != "" && !matches(p, query) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	pageCount := (total + size - 1) / size

	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	return &SearchResult{
		Items:       matched[start:end],
		TotalCount:  total,
		PageCount:   pageCount,
		Page:        page,
		PageSize:    size,
		GeneratedAt: s.now().UTC(),
	}, nil
}

func matches(p *types.Product, query string) bool {
	return strings.Contains(strings.ToLower(p.Name), query) ||
		strings.Contains(strings.ToLower(p.Description), query) ||
		strings.Contains(strings.ToLower(p.SKU), query)
}
