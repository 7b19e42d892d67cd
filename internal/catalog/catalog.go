// Package catalog lists the products the shop sells. Line items name a
// product by its Type.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the optional override read by Load from the data directory.
const File = "products.yaml"

type Product struct {
	ID   int    `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

// Catalog is an ordered, read-only product list.
type Catalog struct {
	products []Product
	byType   map[string]Product
}

// Defaults are the products stocked by the shop.
func Defaults() []Product {
	return []Product{
		{ID: 1, Name: "Amul Gold (500ml)", Type: "Amul Gold"},
		{ID: 2, Name: "TIP TOP (500ml)", Type: "TIP TOP 500ml"},
		{ID: 3, Name: "Taza (150ml)", Type: "Taza"},
		{ID: 4, Name: "TIP TOP (150ml)", Type: "TIP TOP 150ml"},
		{ID: 5, Name: "Chhas (500ml)", Type: "Chhas"},
	}
}

func New(products []Product) (*Catalog, error) {
	c := &Catalog{byType: make(map[string]Product, len(products))}
	for i, p := range products {
		p.Name = strings.TrimSpace(p.Name)
		p.Type = strings.TrimSpace(p.Type)
		if p.Type == "" {
			return nil, fmt.Errorf("product %d: type is required", i+1)
		}
		if p.Name == "" {
			p.Name = p.Type
		}
		if _, dup := c.byType[p.Type]; dup {
			return nil, fmt.Errorf("product %d: duplicate type %q", i+1, p.Type)
		}
		c.byType[p.Type] = p
		c.products = append(c.products, p)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, _ := New(Defaults())
	return c
}

// Load reads dir/products.yaml, falling back to the defaults when the
// file does not exist.
func Load(dir string) (*Catalog, error) {
	raw, err := os.ReadFile(filepath.Join(dir, File))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc struct {
		Products []Product `yaml:"products"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", File, err)
	}
	if len(doc.Products) == 0 {
		return nil, fmt.Errorf("%s lists no products", File)
	}
	return New(doc.Products)
}

// Products returns a copy of the product list in display order.
func (c *Catalog) Products() []Product {
	return append([]Product(nil), c.products...)
}

// Lookup finds a product by type.
func (c *Catalog) Lookup(productType string) (Product, bool) {
	p, ok := c.byType[productType]
	return p, ok
}
