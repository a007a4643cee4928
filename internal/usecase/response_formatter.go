package usecase

import (
	"fmt"
	"strings"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
)

const (
	maxVariantLines     = 3
	defaultVariantTitle = "Standard"
	priceOnRequest      = "Price on request"
	headerFormat        = "Found %d product(s) for you:\n\n"
	callToAction        = "Would you like more details about any of these products? Just ask! 💎"
)

// ResponseFormatter renders a filtered product list as a chat reply.
type ResponseFormatter struct {
	displayLimit int
}

// NewResponseFormatter creates a formatter that shows at most displayLimit products.
func NewResponseFormatter(displayLimit int) *ResponseFormatter {
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	return &ResponseFormatter{displayLimit: displayLimit}
}

// Format renders products (the full filtered set) for the given tokens.
func (f *ResponseFormatter) Format(products []domain.Product, tokens []string) string {
	if len(products) == 0 {
		return NoResultsText(tokens)
	}

	total := len(products)

	var b strings.Builder
	fmt.Fprintf(&b, headerFormat, total)

	for _, product := range products[:min(total, f.displayLimit)] {
		writeProduct(&b, product)
	}

	if total > f.displayLimit {
		fmt.Fprintf(&b, "... and %d more products available!\n", total-f.displayLimit)
	}

	b.WriteString("\n")
	b.WriteString(callToAction)
	return b.String()
}

// NoResultsText is the reply used when nothing matched.
func NoResultsText(tokens []string) string {
	query := "your search"
	if len(tokens) > 0 {
		query = strings.Join(tokens, ", ")
	}
	return fmt.Sprintf("I couldn't find any products matching \"%s\". Please try different keywords "+
		"or ask me to show you our available gemstone beads and jewelry supplies.", query)
}

func writeProduct(b *strings.Builder, product domain.Product) {
	fmt.Fprintf(b, "💎 %s\n", product.Title)
	if product.Image != "" {
		fmt.Fprintf(b, "   🖼️ %s\n", product.Image)
	}

	for _, v := range product.Variants[:min(len(product.Variants), maxVariantLines)] {
		fmt.Fprintf(b, "   • %s: %s %s\n", variantTitle(v), FormatPrice(v), StockLabel(v))
	}
	b.WriteString("\n")
}

func variantTitle(v domain.Variant) string {
	if strings.TrimSpace(v.Title) == "" {
		return defaultVariantTitle
	}
	return v.Title
}

// FormatPrice renders the variant price with two decimals, or "Price on request".
func FormatPrice(v domain.Variant) string {
	if !v.Price.Valid {
		return priceOnRequest
	}
	return "$" + v.Price.Decimal.StringFixed(2)
}

// StockLabel renders the stock annotation. Only the quantity is considered;
// AvailableForSale is carried but does not affect the label.
func StockLabel(v domain.Variant) string {
	if v.InventoryQuantity > 0 {
		return fmt.Sprintf("(In Stock - %d left)", v.InventoryQuantity)
	}
	return "(Out of Stock)"
}
