// Package milvus wraps the Milvus SDK client for exact inner-product vector search.
package milvus

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
)

const (
	// FieldID is the auto-generated primary key.
	FieldID = "id"
	// FieldVector is the float vector field.
	FieldVector = "embedding"

	// MaxQueryWindow is the largest result window a single query may request.
	MaxQueryWindow = 16384
)

// Client is a Milvus connection whose operations are each bounded by the
// configured timeout.
type Client struct {
	mc      *milvusclient.Client
	timeout time.Duration
}

// NewWithContext dials Milvus. ctx and opts.Timeout both bound the dial.
func NewWithContext(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus: nil options")
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	mc, err := milvusclient.New(dialCtx, &milvusclient.ClientConfig{
		Address:       opts.Address,
		Username:      opts.Username,
		Password:      opts.Password,
		DBName:        opts.Database,
		APIKey:        opts.APIKey,
		EnableTLSAuth: opts.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("milvus: connect %s: %w", opts.Address, err)
	}
	return &Client{mc: mc, timeout: opts.Timeout}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.mc.Close(ctx)
}

func (c *Client) op(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// CollectionSchema describes a collection: the auto-id primary key and the
// vector field are implicit, MetaFields are added after them.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	MetaFields  []MetaField
}

type MetaField struct {
	Name     string
	DataType entity.FieldType
	// MaxLen applies to VARCHAR fields.
	MaxLen int
}

func (s *CollectionSchema) entity() *entity.Schema {
	sch := entity.NewSchema().
		WithName(s.Name).
		WithDescription(s.Description).
		WithAutoID(true).
		WithField(entity.NewField().
			WithName(FieldID).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true)).
		WithField(entity.NewField().
			WithName(FieldVector).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(s.Dimension)))

	for _, m := range s.MetaFields {
		f := entity.NewField().WithName(m.Name).WithDataType(m.DataType)
		if m.DataType == entity.FieldTypeVarChar && m.MaxLen > 0 {
			f.WithMaxLength(int64(m.MaxLen))
		}
		sch.WithField(f)
	}
	return sch
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()

	ok, err := c.mc.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("milvus: has collection %s: %w", name, err)
	}
	return ok, nil
}

// CreateCollection makes sure the collection exists with a FLAT inner-product
// index and is loaded. An existing collection is only loaded.
func (c *Client) CreateCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.HasCollection(ctx, schema.Name)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.create(ctx, schema); err != nil {
			return err
		}
	}
	return c.load(ctx, schema.Name)
}

func (c *Client) create(ctx context.Context, schema *CollectionSchema) error {
	ctx, cancel := c.op(ctx)
	defer cancel()

	if err := c.mc.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, schema.entity())); err != nil {
		return fmt.Errorf("milvus: create collection %s: %w", schema.Name, err)
	}
	// FLAT 为暴力检索，结果精确。
	task, err := c.mc.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, FieldVector, index.NewFlatIndex(entity.IP)))
	if err == nil {
		err = task.Await(ctx)
	}
	if err != nil {
		return fmt.Errorf("milvus: index %s.%s: %w", schema.Name, FieldVector, err)
	}
	return nil
}

func (c *Client) load(ctx context.Context, name string) error {
	ctx, cancel := c.op(ctx)
	defer cancel()

	task, err := c.mc.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err == nil {
		err = task.Await(ctx)
	}
	if err != nil {
		return fmt.Errorf("milvus: load collection %s: %w", name, err)
	}
	return nil
}

// InsertData holds one row per embedding; every Metadata column must be as
// long as Embeddings and hold string or int64 values.
type InsertData struct {
	Embeddings [][]float32
	Metadata   map[string][]any
}

func (d *InsertData) columns() ([]column.Column, error) {
	n := len(d.Embeddings)
	cols := []column.Column{column.NewColumnFloatVector(FieldVector, len(d.Embeddings[0]), d.Embeddings)}
	for name, values := range d.Metadata {
		if len(values) != n {
			return nil, fmt.Errorf("milvus: column %s has %d values, want %d", name, len(values), n)
		}
		col, err := metaColumn(name, values)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func metaColumn(name string, values []any) (column.Column, error) {
	switch values[0].(type) {
	case string:
		return column.NewColumnVarChar(name, typed[string](values)), nil
	case int64:
		return column.NewColumnInt64(name, typed[int64](values)), nil
	default:
		return nil, fmt.Errorf("milvus: column %s: unsupported type %T", name, values[0])
	}
}

func typed[T any](values []any) []T {
	out := make([]T, len(values))
	for i, v := range values {
		out[i] = v.(T)
	}
	return out
}

// Insert writes the rows and flushes, so they are visible to the next Search.
// It returns the generated primary keys.
func (c *Client) Insert(ctx context.Context, collection string, data *InsertData) ([]int64, error) {
	if len(data.Embeddings) == 0 {
		return nil, nil
	}
	cols, err := data.columns()
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.op(ctx)
	defer cancel()

	res, err := c.mc.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collection, cols...))
	if err != nil {
		return nil, fmt.Errorf("milvus: insert into %s: %w", collection, err)
	}
	task, err := c.mc.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err == nil {
		err = task.Await(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("milvus: flush %s: %w", collection, err)
	}

	ids, ok := res.IDs.(*column.ColumnInt64)
	if !ok {
		return nil, fmt.Errorf("milvus: unexpected id column %T", res.IDs)
	}
	return ids.Data(), nil
}

// SearchResult is one hit. Metadata holds the requested output fields.
type SearchResult struct {
	ID       int64
	Score    float32
	Metadata map[string]any
}

// Search returns the topK rows by inner product with vector, best first.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK int, outputFields []string) ([]SearchResult, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()

	sets, err := c.mc.Search(ctx, milvusclient.NewSearchOption(collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldVector).
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("milvus: search %s: %w", collection, err)
	}
	if len(sets) == 0 {
		return []SearchResult{}, nil
	}

	rs := sets[0]
	ids, _ := rs.IDs.(*column.ColumnInt64)
	hits := make([]SearchResult, rs.ResultCount)
	for i := range hits {
		hits[i] = SearchResult{Score: rs.Scores[i], Metadata: make(map[string]any, len(rs.Fields))}
		if ids != nil {
			hits[i].ID = ids.Data()[i]
		}
		for _, f := range rs.Fields {
			switch col := f.(type) {
			case *column.ColumnVarChar:
				hits[i].Metadata[col.Name()] = col.Data()[i]
			case *column.ColumnInt64:
				hits[i].Metadata[col.Name()] = col.Data()[i]
			}
		}
	}
	return hits, nil
}

// QueryStrings returns a VARCHAR field for every row, in primary-key order.
func (c *Client) QueryStrings(ctx context.Context, collection, field string) ([]string, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()

	rs, err := c.mc.Query(ctx, milvusclient.NewQueryOption(collection).
		WithFilter(FieldID+" >= 0").
		WithOutputFields(FieldID, field).
		WithLimit(MaxQueryWindow))
	if err != nil {
		return nil, fmt.Errorf("milvus: query %s.%s: %w", collection, field, err)
	}

	vals, ok := rs.GetColumn(field).(*column.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("milvus: %s.%s is not a varchar column", collection, field)
	}
	ids, ok := rs.GetColumn(FieldID).(*column.ColumnInt64)
	if !ok {
		return vals.Data(), nil
	}
	return orderByID(vals.Data(), ids.Data()), nil
}

// orderByID 按主键升序重排 values。
func orderByID(values []string, ids []int64) []string {
	pos := make([]int, len(values))
	for i := range pos {
		pos[i] = i
	}
	slices.SortStableFunc(pos, func(a, b int) int { return cmp.Compare(ids[a], ids[b]) })

	out := make([]string, len(values))
	for i, p := range pos {
		out[i] = values[p]
	}
	return out
}

// DropCollection is a no-op when the collection does not exist.
func (c *Client) DropCollection(ctx context.Context, collection string) error {
	exists, err := c.HasCollection(ctx, collection)
	if err != nil || !exists {
		return err
	}

	ctx, cancel := c.op(ctx)
	defer cancel()
	if err := c.mc.DropCollection(ctx, milvusclient.NewDropCollectionOption(collection)); err != nil {
		return fmt.Errorf("milvus: drop collection %s: %w", collection, err)
	}
	return nil
}

// ResolveAlias returns the collection alias points to, or "" when the alias
// does not exist.
func (c *Client) ResolveAlias(ctx context.Context, alias string) (string, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()

	aliases, err := c.mc.ListAliases(ctx, milvusclient.NewListAliasesOption(""))
	if err != nil {
		return "", fmt.Errorf("milvus: list aliases: %w", err)
	}
	if !slices.Contains(aliases, alias) {
		return "", nil
	}
	desc, err := c.mc.DescribeAlias(ctx, milvusclient.NewDescribeAliasOption(alias))
	if err != nil {
		return "", fmt.Errorf("milvus: describe alias %s: %w", alias, err)
	}
	return desc.CollectionName, nil
}

// SwitchAlias points alias at collection, creating the alias if needed.
// Searches through the alias move to the new collection atomically.
func (c *Client) SwitchAlias(ctx context.Context, alias, collection string) error {
	current, err := c.ResolveAlias(ctx, alias)
	if err != nil {
		return err
	}

	ctx, cancel := c.op(ctx)
	defer cancel()
	if current == "" {
		err = c.mc.CreateAlias(ctx, milvusclient.NewCreateAliasOption(collection, alias))
	} else {
		err = c.mc.AlterAlias(ctx, milvusclient.NewAlterAliasOption(alias, collection))
	}
	if err != nil {
		return fmt.Errorf("milvus: alias %s -> %s: %w", alias, collection, err)
	}
	return nil
}
