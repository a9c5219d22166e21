package matching

// DefaultPerPage 每页结果数
const DefaultPerPage = 9

// Page 分页窗口
type Page struct {
	Offset  int
	End     int
	HasMore bool
}

// Paginate 计算 1 起始页码的切片窗口，超出范围时返回空窗口且 HasMore 为 false
func Paginate(total, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * perPage
	if offset >= total {
		return Page{Offset: total, End: total}
	}
	end := offset + perPage
	if end > total {
		end = total
	}
	return Page{Offset: offset, End: end, HasMore: offset+perPage < total}
}

// PageOf 返回 items 的第 page 页
func PageOf[T any](items []T, page, perPage int) ([]T, Page) {
	p := Paginate(len(items), page, perPage)
	return items[p.Offset:p.End], p
}
