package catalog

// Page is one page of an ordered result. Pages are 1-based.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// normalizePage clamps page and size: page < 1 becomes 1, a non-positive size
// becomes the default and sizes above the maximum are capped.
func (c *Catalog) normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = c.opts.DefaultPageSize
	}
	if size > c.opts.MaxPageSize {
		size = c.opts.MaxPageSize
	}
	return page, size
}

// sliceBounds returns [start, end) of the requested page within total items.
// A page past the end yields an empty range. page and size must be positive;
// the page count is compared before multiplying so huge pages cannot overflow.
func sliceBounds(page, size, total int) (start, end int) {
	if total == 0 || page-1 >= (total+size-1)/size {
		return total, total
	}
	start = (page - 1) * size
	end = start + size
	if end > total {
		end = total
	}
	return start, end
}

func newPage[T any](items []T, total, page, size int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 {
		pages = (total + size - 1) / size
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: pages,
	}
}
