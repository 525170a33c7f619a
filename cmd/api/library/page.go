package library

const MaxPageSize = 30

type Page[T any] struct {
	PageCurrent int
	PageTotal   int
	PageSize    int
	ItemsTotal  int
	Results     []T
}

/* Returns the amount of pages needed for itemsTotal, or an error when the requested page is not reachable. */
func countPages(itemsTotal, page, pageSize int) (int, error) {
	if page < 1 || pageSize < 1 || pageSize > MaxPageSize {
		return 0, ErrResponseQueryPageInvalid
	}

	pageTotal := itemsTotal / pageSize
	if itemsTotal%pageSize != 0 {
		pageTotal++
	}
	if page > pageTotal {
		return 0, ErrResponseQueryPageOutOfRange
	}

	return pageTotal, nil
}
