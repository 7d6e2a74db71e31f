package user

import "math"

const (
	DefaultPage         = 1
	DefaultItemsPerPage = 10
	MaxItemsPerPage     = 100

	// MaxPage keeps Offset from overflowing int.
	MaxPage = math.MaxInt / MaxItemsPerPage
)

// Page is a 1-indexed page request.
type Page struct {
	Number       int
	ItemsPerPage int
}

func NewPage(number, itemsPerPage int) Page {
	if number < 1 {
		number = DefaultPage
	}
	if itemsPerPage < 1 {
		itemsPerPage = DefaultItemsPerPage
	}
	if itemsPerPage > MaxItemsPerPage {
		itemsPerPage = MaxItemsPerPage
	}
	if number > MaxPage {
		number = MaxPage
	}
	return Page{Number: number, ItemsPerPage: itemsPerPage}
}

func (p Page) Limit() int {
	return p.ItemsPerPage
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.ItemsPerPage
}
