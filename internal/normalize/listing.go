package normalize

import (
	"encoding/json"
	"math"

	"storedash/internal/lookup"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

var (
	itemArrayPaths    = []string{"data", "products", "items", "results", "data.data", "data.items", "@this"}
	paginationPaths   = []string{"pagination", "meta.pagination", "data.pagination"}
	totalPagesPaths   = []string{"total_pages", "totalPages", "last_page", "lastPage"}
	totalPaths        = []string{"total", "total_count", "totalCount", "count"}
	currentPagePaths  = []string{"current_page", "currentPage", "page"}
	pagePerPagePaths  = []string{"per_page", "perPage", "limit"}
	metaHasTotalPaths = append(append([]string{}, totalPaths...), totalPagesPaths...)
)

// PaginationMeta is what upstream reported about paging. Any field may be
// missing.
type PaginationMeta struct {
	TotalPages  *int `json:"totalPages,omitempty"`
	Total       *int `json:"total,omitempty"`
	CurrentPage *int `json:"currentPage,omitempty"`
	PerPage     *int `json:"perPage,omitempty"`
}

// Listing is a product page split into raw items and pagination.
type Listing struct {
	Items      []json.RawMessage
	Pagination *PaginationMeta
}

// ParseListing never fails: an unrecognised payload yields no items and nil
// pagination.
func ParseListing(raw []byte) Listing {
	doc := parse(raw)
	if !doc.Exists() {
		return Listing{Items: []json.RawMessage{}}
	}

	entries, ok := lookup.FirstArray(doc, itemArrayPaths...)
	if !ok {
		return Listing{Items: []json.RawMessage{}}
	}

	return Listing{
		Items:      lo.Map(entries, func(r gjson.Result, _ int) json.RawMessage { return json.RawMessage(r.Raw) }),
		Pagination: parsePagination(doc),
	}
}

func parsePagination(doc gjson.Result) *PaginationMeta {
	src, ok := lookup.FirstFunc(doc, func(r gjson.Result) (gjson.Result, bool) {
		return r, r.IsObject()
	}, paginationPaths...)
	if !ok {
		meta := doc.Get("meta")
		if !meta.IsObject() || !lookup.First(meta, metaHasTotalPaths...).Exists() {
			return nil
		}
		src = meta
	}

	return &PaginationMeta{
		TotalPages:  firstInt(src, totalPagesPaths...),
		Total:       firstInt(src, totalPaths...),
		CurrentPage: firstInt(src, currentPagePaths...),
		PerPage:     firstInt(src, pagePerPagePaths...),
	}
}

// TotalPages prefers an explicit page count, then ceil(total/perPage), then 1.
func TotalPages(meta *PaginationMeta, perPage int) int {
	if meta == nil {
		return 1
	}
	if meta.TotalPages != nil && *meta.TotalPages > 0 {
		return *meta.TotalPages
	}
	if meta.Total != nil && *meta.Total > 0 && perPage > 0 {
		return max(1, int(math.Ceil(float64(*meta.Total)/float64(perPage))))
	}
	return 1
}
