package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSource_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml list",
			file: "catalog.yaml",
			content: `
- id: 1
  title: Ruby Beads
  description: Deep red beads
  tags: [ruby, red]
  variants:
    - title: 6mm
      price: 12.5
      inventory_quantity: 5
- id: gid-2
  title: Amethyst Strand
`,
		},
		{
			name: "yaml envelope",
			file: "catalog.yml",
			content: `
products:
  - id: 1
    title: Ruby Beads
    description: Deep red beads
    tags: ruby, red
    variants:
      - title: 6mm
        price: "12.50"
        inventory_quantity: 5
  - id: gid-2
    title: Amethyst Strand
`,
		},
		{
			name: "json envelope",
			file: "catalog.json",
			content: `{"products": [
				{"id": 1, "title": "Ruby Beads", "body_html": "<p>Deep red beads</p>", "tags": "ruby, red",
				 "variants": [{"title": "6mm", "price": "12.50", "inventory_quantity": 5}]},
				{"id": "gid-2", "title": "Amethyst Strand"}
			]}`,
		},
		{
			name: "json list",
			file: "catalog.json",
			content: `[
				{"id": 1, "title": "Ruby Beads", "description": "Deep red beads", "tags": ["ruby", "red"],
				 "variants": [{"title": "6mm", "price": 12.5, "inventory_quantity": 5}]},
				{"id": "gid-2", "title": "Amethyst Strand"}
			]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewFileSource(writeFixture(t, tt.file, tt.content))

			products, err := source.ListProducts(context.Background())
			require.NoError(t, err)
			require.Len(t, products, 2)

			ruby := products[0]
			assert.Equal(t, "1", ruby.ID)
			assert.Equal(t, "Ruby Beads", ruby.Title)
			assert.Equal(t, "Deep red beads", ruby.Description)
			assert.Equal(t, "ruby, red", ruby.Tags)
			require.Len(t, ruby.Variants, 1)
			assert.Equal(t, "$12.50", "$"+ruby.Variants[0].Price.Decimal.StringFixed(2))
			assert.Equal(t, 5, ruby.Variants[0].InventoryQuantity)

			assert.Equal(t, "gid-2", products[1].ID)
			assert.Equal(t, "Amethyst Strand", products[1].Title)
		})
	}
}

func TestFileSource_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.yaml")).ListProducts(context.Background())
		assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFixture(t, "catalog.csv", "id,title\n1,Ruby")
		_, err := NewFileSource(path).ListProducts(context.Background())
		assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := writeFixture(t, "catalog.json", "{not json")
		_, err := NewFileSource(path).ListProducts(context.Background())
		assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewFileSource("ignored.yaml").ListProducts(ctx)
		assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	})
}

func TestFileSource_EmptyFile(t *testing.T) {
	path := writeFixture(t, "catalog.yaml", "   \n")
	products, err := NewFileSource(path).ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}
