package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	"gopkg.in/yaml.v3"
)

// FileSource serves a catalog from a YAML or JSON file. The file holds either a
// list of products or a {"products": [...]} envelope in the commerce API shape.
type FileSource struct {
	path string
}

// NewFileSource creates a catalog source backed by path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// ListProducts reads and maps the file on every call.
func (f *FileSource) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrCatalogUnavailable, f.path, err)
	}

	raw, err := parseCatalogFile(f.path, data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrCatalogUnavailable, f.path, err)
	}
	return MapProducts(raw), nil
}

func parseCatalogFile(path string, data []byte) ([]RawProduct, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []RawProduct{}, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if trimmed[0] == '[' {
			var list []RawProduct
			dec := json.NewDecoder(bytes.NewReader(trimmed))
			dec.UseNumber()
			if err := dec.Decode(&list); err != nil {
				return nil, err
			}
			return list, nil
		}
		return decodeProducts(trimmed)
	case ".yaml", ".yml":
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, err
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			var list []RawProduct
			if err := node.Decode(&list); err != nil {
				return nil, err
			}
			return list, nil
		}
		var envelope productsEnvelope
		if err := node.Decode(&envelope); err != nil {
			return nil, err
		}
		return envelope.Products, nil
	default:
		return nil, fmt.Errorf("unsupported catalog file extension %q", filepath.Ext(path))
	}
}
