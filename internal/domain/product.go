package domain

import (
	"strconv"
	"strings"
)

// Product is a product card supplied by the backend. It is display data only.
type Product struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Price          float64  `json:"price"`
	FormattedPrice string   `json:"formattedPrice,omitempty"`
	Type           string   `json:"type"`
	Brand          string   `json:"brand,omitempty"`
	Features       []string `json:"features,omitempty"`
	Image          string   `json:"image,omitempty"`
	Rating         float64  `json:"rating,omitempty"`
	Availability   string   `json:"availability,omitempty"`
}

// Normalize fills display defaults and formats the price.
func (p Product) Normalize() Product {
	if strings.TrimSpace(p.Title) == "" {
		p.Title = "Producto"
	}
	if p.Type == "" {
		p.Type = "general"
	}
	if p.Availability == "" {
		p.Availability = "disponible"
	}
	if p.Rating < 0 {
		p.Rating = 0
	}
	if p.Rating > 5 {
		p.Rating = 5
	}
	if p.Price < 0 {
		p.Price = 0
	}
	p.FormattedPrice = FormatPrice(p.Price)
	return p
}

// FormatPrice renders a price in pesos with "." as thousands separator,
// e.g. 1500000 -> "$1.500.000". Cents are rounded away.
func FormatPrice(price float64) string {
	n := int64(price + 0.5)
	digits := strconv.FormatInt(n, 10)

	var b strings.Builder
	b.WriteByte('$')
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
