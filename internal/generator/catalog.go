// Package generator produces validated candidate alphas from a
// language model, backed by the platform's operator and data-field
// catalogs.
package generator

import (
	"context"
	"sync"

	"brain-alpha-lab/internal/brain"
)

// CatalogClient is the slice of the platform client the catalog needs.
type CatalogClient interface {
	GetOperators(ctx context.Context) ([]brain.Operator, error)
	GetDataFields(ctx context.Context, q brain.DataFieldsQuery) ([]brain.DataField, error)
}

// Catalog caches the operator list and per-(dataset, region, universe)
// data-field listings. It is owned by whoever constructs it and passed
// explicitly; there is no package-level instance. Safe for concurrent
// use.
type Catalog struct {
	client CatalogClient

	mu        sync.Mutex
	operators []brain.Operator
	fields    map[brain.DataFieldsQuery][]brain.DataField
}

// NewCatalog creates an empty catalog around the given client.
func NewCatalog(client CatalogClient) *Catalog {
	return &Catalog{client: client, fields: make(map[brain.DataFieldsQuery][]brain.DataField)}
}

// Operators returns the cached operator list, fetching it on first use
// or when refresh is set.
func (c *Catalog) Operators(ctx context.Context, refresh bool) ([]brain.Operator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.operators != nil && !refresh {
		return c.operators, nil
	}
	ops, err := c.client.GetOperators(ctx)
	if err != nil {
		return nil, err
	}
	c.operators = ops
	return ops, nil
}

// DataFields returns the cached field listing for the query, fetching
// it on first use or when refresh is set.
func (c *Catalog) DataFields(ctx context.Context, q brain.DataFieldsQuery, refresh bool) ([]brain.DataField, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.fields[q]; ok && !refresh {
		return cached, nil
	}
	fields, err := c.client.GetDataFields(ctx, q)
	if err != nil {
		return nil, err
	}
	c.fields[q] = fields
	return fields, nil
}
