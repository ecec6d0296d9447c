package tgui

import (
	"fmt"
	"strconv"
)

const defaultPageSize = 10

// Page is one window over a list of Total items. Index is 0-based.
type Page struct {
	Index, Size, Total int
	From, To           int // items[From:To]
}

// Paginate clamps index into [0, last page] so a stale Next button still
// lands on a real page after items were removed.
func Paginate(total, index, size int) Page {
	if size <= 0 {
		size = defaultPageSize
	}
	p := Page{Size: size, Total: max(total, 0)}
	p.Index = min(max(index, 0), p.Pages()-1)
	p.From = min(p.Index*size, p.Total)
	p.To = min(p.From+size, p.Total)
	return p
}

// Pages is at least 1, even for an empty list.
func (p Page) Pages() int {
	if p.Total <= 0 || p.Size <= 0 {
		return 1
	}
	return (p.Total + p.Size - 1) / p.Size
}

func (p Page) HasPrev() bool { return p.Index > 0 }
func (p Page) HasNext() bool { return p.To < p.Total }

// Label reads like "Page 2/3 • 11–20 of 25".
func (p Page) Label() string {
	if p.Total == 0 {
		return "Page 1/1"
	}
	return fmt.Sprintf("Page %d/%d • %d–%d of %d", p.Index+1, p.Pages(), p.From+1, p.To, p.Total)
}

// Nav returns « Prev / Next » buttons carrying the target page index as
// payload, or nil when everything fits on one page.
func (p Page) Nav(ns, action string) *Inline {
	var row []Button
	if p.HasPrev() {
		row = append(row, Btn("« Prev", Data(ns, action, strconv.Itoa(p.Index-1))))
	}
	if p.HasNext() {
		row = append(row, Btn("Next »", Data(ns, action, strconv.Itoa(p.Index+1))))
	}
	if len(row) == 0 {
		return nil
	}
	return NewInline().Row(row...)
}

// Slice returns the items of page p.
func Slice[T any](items []T, p Page) []T {
	return items[min(p.From, len(items)):min(p.To, len(items))]
}
