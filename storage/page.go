package storage

import "sort"

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Page is one page of a larger result set. PageIndex is 1-based.
type Page[T any] struct {
	Items      []T `json:"items"`
	PageIndex  int `json:"page_index"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	PageCount  int `json:"page_count"`
}

// NormalizePaging clamps page to >= 1 and pageSize to [1, MaxPageSize],
// substituting DefaultPageSize for non-positive sizes.
func NormalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// NewPage builds the page for a known total. Backends that slice in memory
// pass the window they produced; SQL backends pass the LIMIT/OFFSET rows.
func NewPage[T any](items []T, page, pageSize, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		PageIndex:  page,
		PageSize:   pageSize,
		TotalCount: total,
		PageCount:  (total + pageSize - 1) / pageSize,
	}
}

// Paginate slices all according to page and pageSize (already normalised).
func Paginate[T any](all []T, page, pageSize int) Page[T] {
	total := len(all)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	window := make([]T, end-start)
	copy(window, all[start:end])
	return NewPage(window, page, pageSize, total)
}

// MapPage converts the items of p with fn, keeping the paging metadata.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	items := make([]U, len(p.Items))
	for i, item := range p.Items {
		items[i] = fn(item)
	}
	return Page[U]{
		Items:      items,
		PageIndex:  p.PageIndex,
		PageSize:   p.PageSize,
		TotalCount: p.TotalCount,
		PageCount:  p.PageCount,
	}
}

// SortSessionsNewestFirst orders sessions by CreatedAt descending, with ID as
// the tie-break so paging is stable.
func SortSessionsNewestFirst(sessions []SessionRecord) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}
