package domain

// Page is one slice of a listing.
type Page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	HasNext bool `json:"has_next"`
}

// Paginate returns items[page*perPage : page*perPage+perPage], clamped to the slice.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	total := len(items)
	out := Page[T]{Data: []T{}, Total: total, Page: page, PerPage: perPage}

	if page < 0 || perPage <= 0 {
		return out
	}

	// compare page numbers, not offsets: page*perPage can overflow
	if total == 0 || page > (total-1)/perPage {
		return out
	}

	start := page * perPage

	end := min(start+perPage, total)
	out.Data = items[start:end]
	out.HasNext = end < total

	return out
}
