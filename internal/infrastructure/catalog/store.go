package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		position    INTEGER NOT NULL,
		title       TEXT NOT NULL,
		description TEXT,
		tags        TEXT,
		image       TEXT,
		image_alt   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS variants (
		product_id         TEXT NOT NULL,
		position           INTEGER NOT NULL,
		title              TEXT,
		price              TEXT,
		inventory_quantity INTEGER NOT NULL DEFAULT 0,
		available_for_sale BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (product_id, position)
	)`,
}

// Store reads and writes the catalog in a relational database.
type Store struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// OpenStore opens the database, verifies connectivity and ensures the schema exists.
func OpenStore(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: unsupported catalog driver %q", domain.ErrInvalidRequest, driver)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrCatalogUnavailable, driver, err)
	}
	if driver == DriverSQLite {
		// in-memory databases are per connection
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", domain.ErrCatalogUnavailable, driver, err)
	}

	store := &Store{db: db, driver: driver, logger: logger.Named("catalog_store")}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create schema: %v", domain.ErrCatalogUnavailable, err)
		}
	}
	return nil
}

// ListProducts returns the stored catalog in its saved order.
func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, tags, image, image_alt FROM products ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: query products: %v", domain.ErrCatalogUnavailable, err)
	}
	defer rows.Close()

	var products []domain.Product
	index := make(map[string]int)
	for rows.Next() {
		var p domain.Product
		var description, tags, image, imageAlt sql.NullString
		if err := rows.Scan(&p.ID, &p.Title, &description, &tags, &image, &imageAlt); err != nil {
			return nil, fmt.Errorf("%w: scan product: %v", domain.ErrCatalogUnavailable, err)
		}
		p.Description = description.String
		p.Tags = tags.String
		p.Image = image.String
		p.ImageAlt = imageAlt.String
		p.Variants = []domain.Variant{}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate products: %v", domain.ErrCatalogUnavailable, err)
	}
	rows.Close()

	if err := s.attachVariants(ctx, products, index); err != nil {
		return nil, err
	}

	s.logger.Debug("catalog loaded from database", zap.Int("products", len(products)))
	return products, nil
}

func (s *Store) attachVariants(ctx context.Context, products []domain.Product, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, title, price, inventory_quantity, available_for_sale
		 FROM variants ORDER BY product_id, position`)
	if err != nil {
		return fmt.Errorf("%w: query variants: %v", domain.ErrCatalogUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID    string
			title, price sql.NullString
			quantity     int
			available    bool
		)
		if err := rows.Scan(&productID, &title, &price, &quantity, &available); err != nil {
			return fmt.Errorf("%w: scan variant: %v", domain.ErrCatalogUnavailable, err)
		}
		i, ok := index[productID]
		if !ok {
			continue
		}

		v := domain.Variant{
			Title:             title.String,
			InventoryQuantity: max(quantity, 0),
			AvailableForSale:  available,
		}
		if price.Valid {
			v.Price = ParsePrice(price.String)
		}
		products[i].Variants = append(products[i].Variants, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate variants: %v", domain.ErrCatalogUnavailable, err)
	}
	return nil
}

// SaveProducts replaces the stored catalog with products, in one transaction.
func (s *Store) SaveProducts(ctx context.Context, products []domain.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrCatalogUnavailable, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM variants`, `DELETE FROM products`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: clear catalog: %v", domain.ErrCatalogUnavailable, err)
		}
	}

	insertProduct, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO products (id, position, title, description, tags, image, image_alt)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("%w: prepare product insert: %v", domain.ErrCatalogUnavailable, err)
	}
	defer insertProduct.Close()

	insertVariant, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO variants (product_id, position, title, price, inventory_quantity, available_for_sale)
		 VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("%w: prepare variant insert: %v", domain.ErrCatalogUnavailable, err)
	}
	defer insertVariant.Close()

	seen := make(map[string]bool, len(products))
	for pos, p := range products {
		id := p.ID
		if id == "" || seen[id] {
			id = "local-" + strconv.Itoa(pos)
		}
		seen[id] = true

		if _, err := insertProduct.ExecContext(ctx, id, pos, p.Title, p.Description, p.Tags, p.Image, p.ImageAlt); err != nil {
			return fmt.Errorf("%w: insert product %s: %v", domain.ErrCatalogUnavailable, id, err)
		}

		for vpos, v := range p.Variants {
			var price sql.NullString
			if v.Price.Valid {
				price = sql.NullString{String: v.Price.Decimal.String(), Valid: true}
			}
			if _, err := insertVariant.ExecContext(ctx, id, vpos, v.Title, price, max(v.InventoryQuantity, 0), v.AvailableForSale); err != nil {
				return fmt.Errorf("%w: insert variant %s/%d: %v", domain.ErrCatalogUnavailable, id, vpos, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrCatalogUnavailable, err)
	}

	s.logger.Info("catalog saved", zap.Int("products", len(products)))
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
