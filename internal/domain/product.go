package domain

import "github.com/shopspring/decimal"

// Product is a read-only catalog entry as served by a CatalogRepository.
type Product struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Tags        string    `json:"tags,omitempty" yaml:"tags"`
	Image       string    `json:"image,omitempty" yaml:"image"`
	ImageAlt    string    `json:"imageAlt,omitempty" yaml:"image_alt"`
	Variants    []Variant `json:"variants" yaml:"variants"`
}

// Variant is a purchasable option of a product (size, grade, strand length).
type Variant struct {
	Title             string              `json:"title,omitempty"`
	Price             decimal.NullDecimal `json:"price"`
	InventoryQuantity int                 `json:"inventoryQuantity"`
	AvailableForSale  bool                `json:"availableForSale"`
}

// MatchResult pairs a product with the search tokens that matched it.
// MatchedTokens is for diagnostics only and never affects ordering.
type MatchResult struct {
	Product       Product  `json:"product"`
	IsMatch       bool     `json:"isMatch"`
	MatchedTokens []string `json:"matchedTokens,omitempty"`
}

// SearchResult is the outcome of one search pass.
type SearchResult struct {
	Tokens   []string  `json:"tokens"`
	Total    int       `json:"total"`
	Products []Product `json:"products"`
	Text     string    `json:"text"`
}
