package social

import "math"

// maxOffset caps page*size; it is also the largest LIMIT Cassandra accepts.
const maxOffset = math.MaxInt32

// PageLimits bounds page sizes for one kind of listing.
type PageLimits struct {
	Default int
	Max     int
}

// normalize defaults page to 1 and size to l.Default. A size above l.Max is
// rejected, as is a page whose offset does not fit in maxOffset.
func (l PageLimits) normalize(page, size int) (int, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = l.Default
	}
	if l.Max > 0 && size > l.Max {
		return 0, 0, validationErr("page size %d exceeds maximum %d", size, l.Max)
	}
	if size > 0 && page > maxOffset/size {
		return 0, 0, validationErr("page %d is out of range", page)
	}
	return page, size, nil
}

// Listing is the shape shared by every paginated result.
type Listing[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

func newPage[T any](items []T, total, page, size int) Listing[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if size > 0 {
		totalPages = (total + size - 1) / size
	}
	return Listing[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
	}
}

// window returns the items of the given 1-based page.
func window[T any](items []T, page, size int) []T {
	if page <= 0 || size <= 0 || page-1 > len(items)/size {
		return nil
	}
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
