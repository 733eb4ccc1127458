package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/pkg/textutil"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/llm/llmtest"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

type fakeRow struct {
	id     int64
	vector []float32
	meta   map[string]any
}

// fakeMilvus 在内存中模拟集合与别名，检索为精确内积。
// 与 Milvus 一致：别名不能与集合同名，被别名引用的集合不能删除。
type fakeMilvus struct {
	mu          sync.Mutex
	nextID      int64
	collections map[string][]fakeRow
	aliases     map[string]string
	insertErr   error
	aliasErr    error
	drops       int
}

func (f *fakeMilvus) init() {
	if f.collections == nil {
		f.collections = make(map[string][]fakeRow)
	}
	if f.aliases == nil {
		f.aliases = make(map[string]string)
	}
}

func (f *fakeMilvus) resolve(name string) string {
	if target, ok := f.aliases[name]; ok {
		return target
	}
	return name
}

func (f *fakeMilvus) HasCollection(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeMilvus) CreateCollection(_ context.Context, schema *milvus.CollectionSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if _, ok := f.aliases[schema.Name]; ok {
		return fmt.Errorf("collection name %s conflicts with an alias", schema.Name)
	}
	if _, ok := f.collections[schema.Name]; !ok {
		f.collections[schema.Name] = []fakeRow{}
	}
	return nil
}

func (f *fakeMilvus) Insert(_ context.Context, collection string, data *milvus.InsertData) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	name := f.resolve(collection)
	if _, ok := f.collections[name]; !ok {
		return nil, fmt.Errorf("collection %s not found", collection)
	}
	ids := make([]int64, len(data.Embeddings))
	for i, v := range data.Embeddings {
		f.nextID++
		meta := make(map[string]any)
		for k, vals := range data.Metadata {
			meta[k] = vals[i]
		}
		f.collections[name] = append(f.collections[name], fakeRow{id: f.nextID, vector: v, meta: meta})
		ids[i] = f.nextID
	}
	return ids, nil
}

func (f *fakeMilvus) Search(_ context.Context, collection string, vector []float32, topK int, _ []string) ([]milvus.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	rows, ok := f.collections[f.resolve(collection)]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", collection)
	}
	out := make([]milvus.SearchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, milvus.SearchResult{ID: r.id, Score: float32(textutil.Dot(vector, r.vector)), Metadata: r.meta})
	}
	// Milvus 不保证平分结果的顺序，这里刻意倒序
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].ID > out[b].ID
	})
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeMilvus) QueryStrings(_ context.Context, collection string, field string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	rows, ok := f.collections[f.resolve(collection)]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", collection)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.meta[field].(string))
	}
	return out, nil
}

func (f *fakeMilvus) DropCollection(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	for alias, target := range f.aliases {
		if target == collection {
			return fmt.Errorf("collection %s is referenced by alias %s", collection, alias)
		}
	}
	if _, ok := f.collections[collection]; !ok {
		return nil
	}
	delete(f.collections, collection)
	f.drops++
	return nil
}

func (f *fakeMilvus) ResolveAlias(_ context.Context, alias string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return f.aliases[alias], nil
}

func (f *fakeMilvus) SwitchAlias(_ context.Context, alias, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.aliasErr != nil {
		return f.aliasErr
	}
	if _, ok := f.collections[alias]; ok {
		return fmt.Errorf("alias %s conflicts with a collection", alias)
	}
	if _, ok := f.collections[collection]; !ok {
		return fmt.Errorf("collection %s not found", collection)
	}
	f.aliases[alias] = collection
	return nil
}

func (f *fakeMilvus) Close(context.Context) error { return nil }

// rowCount 返回别名当前指向的集合的行数。
func (f *fakeMilvus) rowCount(alias string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return len(f.collections[f.resolve(alias)])
}

func (f *fakeMilvus) collectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.collections)
}

func newMilvusIndex(t *testing.T, client *fakeMilvus) *MilvusIndex {
	t.Helper()
	idx, err := NewMilvusIndex(context.Background(), client, llmtest.NewHashEmbedder(testDim), MilvusConfig{
		Collection: "docqa_chunks",
		Dimension:  testDim,
	})
	require.NoError(t, err)
	return idx
}

func TestMilvusIndex_AddAndSearch(t *testing.T) {
	client := &fakeMilvus{}
	idx := newMilvusIndex(t, client)
	require.Equal(t, 1, client.collectionCount())

	require.NoError(t, idx.Add(context.Background(), sampleChunks()))
	assert.Equal(t, 4, idx.Count())
	assert.Equal(t, []string{"paris.txt", "berlin.txt", "tokyo.txt"}, idx.Sources())

	results, err := idx.Search(context.Background(), "The capital of France is Paris.", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, sampleChunks()[0], results[0].Chunk)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestMilvusIndex_TiesByInsertionOrder(t *testing.T) {
	idx := newMilvusIndex(t, &fakeMilvus{})
	require.NoError(t, idx.Add(context.Background(), []Chunk{
		{ID: "first", Text: "same words", Source: "a"},
		{ID: "second", Text: "same words", Source: "b"},
	}))

	results, err := idx.Search(context.Background(), "same words", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].ID)
	assert.Equal(t, "second", results[1].ID)
}

func TestMilvusIndex_ReplaceAndClear(t *testing.T) {
	client := &fakeMilvus{}
	idx := newMilvusIndex(t, client)
	require.NoError(t, idx.Add(context.Background(), sampleChunks()))

	require.NoError(t, idx.Replace(context.Background(), sampleChunks()[:1]))
	assert.Equal(t, 1, idx.Count())
	assert.Equal(t, []string{"paris.txt"}, idx.Sources())

	require.NoError(t, idx.Clear(context.Background()))
	assert.Zero(t, idx.Count())
	assert.Equal(t, 2, client.drops)
	assert.Equal(t, 1, client.collectionCount())

	results, err := idx.Search(context.Background(), "Paris", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMilvusIndex_LoadsExistingStats(t *testing.T) {
	client := &fakeMilvus{}
	first := newMilvusIndex(t, client)
	require.NoError(t, first.Add(context.Background(), sampleChunks()))

	second := newMilvusIndex(t, client)
	assert.Equal(t, 4, second.Count())
	assert.Equal(t, []string{"paris.txt", "berlin.txt", "tokyo.txt"}, second.Sources())
}

func TestMilvusIndex_InsertFailure(t *testing.T) {
	client := &fakeMilvus{}
	idx := newMilvusIndex(t, client)
	require.NoError(t, idx.Add(context.Background(), sampleChunks()[:1]))

	client.insertErr = fmt.Errorf("milvus unavailable")
	err := idx.Add(context.Background(), sampleChunks()[1:])
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIndexWrite))
	assert.Equal(t, 1, idx.Count())
}

// 重建失败时旧集合继续提供检索，暂存集合被清理。
func TestMilvusIndex_FailedReplaceKeepsPreviousCollection(t *testing.T) {
	client := &fakeMilvus{}
	idx := newMilvusIndex(t, client)
	require.NoError(t, idx.Add(context.Background(), sampleChunks()))

	const query = "The capital of France is Paris."
	before, err := idx.Search(context.Background(), query, 1)
	require.NoError(t, err)
	require.Len(t, before, 1)

	replacement := []Chunk{{ID: "rome.txt_chunk_0", Text: "Rome is the capital of Italy.", Source: "rome.txt", ChunkCount: 1}}

	client.insertErr = fmt.Errorf("milvus unavailable")
	err = idx.Replace(context.Background(), replacement)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIndexWrite))
	client.insertErr = nil

	client.aliasErr = fmt.Errorf("alias service unavailable")
	err = idx.Replace(context.Background(), replacement)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIndexWrite))
	client.aliasErr = fmt.Errorf("alias service unavailable")
	err = idx.Clear(context.Background())
	require.Error(t, err)
	client.aliasErr = nil

	assert.Equal(t, 4, idx.Count())
	assert.Equal(t, 4, client.rowCount("docqa_chunks"))
	assert.Equal(t, []string{"paris.txt", "berlin.txt", "tokyo.txt"}, idx.Sources())
	assert.Equal(t, 1, client.collectionCount())

	after, err := idx.Search(context.Background(), query, 1)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].Chunk, after[0].Chunk)

	require.NoError(t, idx.Replace(context.Background(), replacement))
	assert.Equal(t, 1, idx.Count())
	assert.Equal(t, 1, client.rowCount("docqa_chunks"))
	assert.Equal(t, 1, client.collectionCount())
}

// 别名不存在而同名集合存在时，首次重建把它迁移到别名之下。
func TestMilvusIndex_MigratesPlainCollection(t *testing.T) {
	client := &fakeMilvus{}
	require.NoError(t, client.CreateCollection(context.Background(), &milvus.CollectionSchema{Name: "docqa_chunks"}))
	_, err := client.Insert(context.Background(), "docqa_chunks", &milvus.InsertData{
		Embeddings: [][]float32{make([]float32, testDim)},
		Metadata:   map[string][]any{fieldSource: {"old.txt"}},
	})
	require.NoError(t, err)

	idx := newMilvusIndex(t, client)
	assert.Equal(t, 1, idx.Count())
	assert.Equal(t, []string{"old.txt"}, idx.Sources())

	require.NoError(t, idx.Replace(context.Background(), sampleChunks()))
	assert.Equal(t, 4, idx.Count())
	assert.Equal(t, 4, client.rowCount("docqa_chunks"))
	assert.Equal(t, 1, client.collectionCount())

	target, err := client.ResolveAlias(context.Background(), "docqa_chunks")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(target, "docqa_chunks_"), target)
}

func TestNewMilvusIndex_Validation(t *testing.T) {
	_, err := NewMilvusIndex(context.Background(), &fakeMilvus{}, llmtest.NewHashEmbedder(4), MilvusConfig{Collection: "c"})
	assert.Error(t, err)

	_, err = NewMilvusIndex(context.Background(), nil, llmtest.NewHashEmbedder(4), MilvusConfig{Collection: "c", Dimension: 4})
	assert.Error(t, err)
}
