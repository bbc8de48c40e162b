package session

import (
	"github.com/gravitas-games/screwsort/pkg/models"
)

// ColorBag deals a level's planned spawn order, one color at a time.
type ColorBag struct {
	colors []models.Color
	next   int
}

// NewColorBag deals order as given.
func NewColorBag(order []models.Color) *ColorBag {
	return &ColorBag{colors: append([]models.Color(nil), order...)}
}

// Next deals one color. ok is false once the bag is empty.
func (b *ColorBag) Next() (c models.Color, ok bool) {
	if b.next >= len(b.colors) {
		return "", false
	}
	c = b.colors[b.next]
	b.next++
	return c, true
}

// Dealt is how many colors have been dealt.
func (b *ColorBag) Dealt() int { return b.next }

// Remaining is how many colors are left.
func (b *ColorBag) Remaining() int { return len(b.colors) - b.next }

// Len is the bag's total size.
func (b *ColorBag) Len() int { return len(b.colors) }
