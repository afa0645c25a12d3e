package util

// Paginate clamps page/size query values and converts them to an offset and
// limit usable in a database query.
func Paginate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return (page - 1) * size, size
}
