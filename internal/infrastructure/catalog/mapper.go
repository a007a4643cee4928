package catalog

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// RawProduct is a product as delivered by the commerce API or a fixture file.
// Scalar fields are untyped because upstream sends ids and prices as either
// numbers or strings.
type RawProduct struct {
	ID          any          `json:"id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	BodyHTML    string       `json:"body_html" yaml:"body_html"`
	Description string       `json:"description" yaml:"description"`
	Tags        any          `json:"tags" yaml:"tags"`
	Image       *RawImage    `json:"image" yaml:"image"`
	Images      []RawImage   `json:"images" yaml:"images"`
	Variants    []RawVariant `json:"variants" yaml:"variants"`
}

// RawImage is an image reference on a RawProduct.
type RawImage struct {
	Src string `json:"src" yaml:"src"`
	Alt string `json:"alt" yaml:"alt"`
}

// RawVariant is a purchasable option on a RawProduct.
type RawVariant struct {
	Title             *string `json:"title" yaml:"title"`
	Price             any     `json:"price" yaml:"price"`
	InventoryQuantity any     `json:"inventory_quantity" yaml:"inventory_quantity"`
	Available         *bool   `json:"available" yaml:"available"`
	AvailableForSale  *bool   `json:"available_for_sale" yaml:"available_for_sale"`
}

// productsEnvelope is the commerce API list response.
type productsEnvelope struct {
	Products []RawProduct `json:"products" yaml:"products"`
}

// MapProducts converts raw products, skipping entries without a title.
func MapProducts(raw []RawProduct) []domain.Product {
	products := make([]domain.Product, 0, len(raw))
	for _, r := range raw {
		if p, ok := MapProduct(r); ok {
			products = append(products, p)
		}
	}
	return products
}

// MapProduct applies the defaulting rules for optional fields.
// It reports false when the product has no usable title.
func MapProduct(r RawProduct) (domain.Product, bool) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return domain.Product{}, false
	}

	description := r.Description
	if description == "" {
		description = stripHTML(r.BodyHTML)
	}

	id, _ := scalarString(r.ID)

	product := domain.Product{
		ID:          id,
		Title:       title,
		Description: strings.TrimSpace(description),
		Tags:        tagsString(r.Tags),
		Variants:    make([]domain.Variant, 0, len(r.Variants)),
	}

	switch {
	case r.Image != nil && r.Image.Src != "":
		product.Image, product.ImageAlt = r.Image.Src, r.Image.Alt
	case len(r.Images) > 0:
		product.Image, product.ImageAlt = r.Images[0].Src, r.Images[0].Alt
	}

	for _, v := range r.Variants {
		product.Variants = append(product.Variants, mapVariant(v))
	}

	return product, true
}

func mapVariant(v RawVariant) domain.Variant {
	variant := domain.Variant{
		Price:             ParsePrice(v.Price),
		InventoryQuantity: parseQuantity(v.InventoryQuantity),
	}
	if v.Title != nil {
		variant.Title = strings.TrimSpace(*v.Title)
	}

	switch {
	case v.AvailableForSale != nil:
		variant.AvailableForSale = *v.AvailableForSale
	case v.Available != nil:
		variant.AvailableForSale = *v.Available
	default:
		variant.AvailableForSale = variant.InventoryQuantity > 0
	}

	return variant
}

// ParsePrice converts a number or numeric string into a price.
// Absent or unparseable values yield an invalid (absent) price.
func ParsePrice(v any) decimal.NullDecimal {
	s, ok := scalarString(v)
	if !ok {
		return decimal.NullDecimal{}
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// parseQuantity reads an integer quantity; negatives and garbage become 0.
func parseQuantity(v any) int {
	s, ok := scalarString(v)
	if !ok {
		return 0
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n < 0 {
		return 0
	}
	return int(n)
}

// scalarString renders JSON/YAML scalars as strings.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	default:
		return "", false
	}
}

// tagsString accepts "a, b" or ["a", "b"] and returns a comma-separated string.
func tagsString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		tags := make([]string, 0, len(t))
		for _, item := range t {
			tags = append(tags, strings.TrimSpace(fmt.Sprint(item)))
		}
		return strings.Join(tags, ", ")
	default:
		return ""
	}
}

func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
