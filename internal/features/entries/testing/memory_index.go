package entries_testing

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"debuglens/internal/opensearch"
)

// MemoryIndex is an in-process stand-in for the OpenSearch document API. It
// understands the subset of the query DSL the entry store emits: bool
// filter/must/must_not, term, terms, nested, range and match_all, plus
// from/size and multi-key sort.
type MemoryIndex struct {
	mu      sync.Mutex
	indices map[string]map[string]map[string]any
	calls   map[string]int

	// FailedIDs makes bulk items with these ids fail with the given reason.
	FailedIDs map[string]string
	// SearchErr, when set, is returned by every Search call.
	SearchErr error
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		indices:   map[string]map[string]map[string]any{},
		calls:     map[string]int{},
		FailedIDs: map[string]string{},
	}
}

// Calls returns how many times an operation ("get", "search", "bulk",
// "delete_by_query", "index_exists", "create_index", "delete_index",
// "list_indices") was invoked.
func (m *MemoryIndex) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[operation]
}

// TotalCalls counts every invocation regardless of operation.
func (m *MemoryIndex) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, count := range m.calls {
		total += count
	}
	return total
}

// Put stores a raw source directly, creating the index if needed.
func (m *MemoryIndex) Put(index string, id string, source map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indices[index] == nil {
		m.indices[index] = map[string]map[string]any{}
	}
	m.indices[index][id] = roundTrip(source)
}

// Source returns the stored source of a document, or nil.
func (m *MemoryIndex) Source(index string, id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.indices[index][id]
}

// Count returns the number of documents across all indices.
func (m *MemoryIndex) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, documents := range m.indices {
		total += len(documents)
	}
	return total
}

func (m *MemoryIndex) Get(ctx context.Context, index string, id string) (*opensearch.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get"]++

	documents, ok := m.indices[index]
	if !ok {
		return nil, opensearch.ErrIndexNotFound
	}

	source, ok := documents[id]
	if !ok {
		return nil, opensearch.ErrDocumentNotFound
	}

	return &opensearch.Document{ID: id, Index: index, Source: roundTrip(source)}, nil
}

func (m *MemoryIndex) Search(ctx context.Context, index string, body map[string]any) (*opensearch.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["search"]++

	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	hits, err := m.match(index, body)
	if err != nil {
		return nil, err
	}

	sortHits(hits, body["sort"])

	total := int64(len(hits))
	from := min(toInt(body["from"], 0), len(hits))
	size := toInt(body["size"], 10)
	hits = hits[from:min(from+size, len(hits))]

	result := &opensearch.SearchResult{Hits: make([]opensearch.Document, 0, len(hits)), Total: total}
	for _, hit := range hits {
		result.Hits = append(result.Hits, opensearch.Document{
			ID:     hit.ID,
			Index:  hit.Index,
			Source: roundTrip(hit.Source),
		})
	}

	return result, nil
}

func (m *MemoryIndex) Bulk(
	ctx context.Context,
	defaultIndex string,
	documents []opensearch.Document,
) (*opensearch.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &opensearch.BulkResult{Items: []opensearch.BulkItemResult{}}
	if len(documents) == 0 {
		return result, nil
	}
	m.calls["bulk"]++

	for _, document := range documents {
		index := document.Index
		if index == "" {
			index = defaultIndex
		}

		item := opensearch.BulkItemResult{Action: "index", ID: document.ID, Index: index}

		if reason, failed := m.FailedIDs[document.ID]; failed {
			item.Status = 400
			item.Error = reason
			result.Errors = true
			result.Items = append(result.Items, item)
			continue
		}

		if m.indices[index] == nil {
			m.indices[index] = map[string]map[string]any{}
		}

		item.Status = 201
		if _, exists := m.indices[index][document.ID]; exists {
			item.Status = 200
		}

		m.indices[index][document.ID] = roundTrip(document.Source)
		result.Items = append(result.Items, item)
	}

	return result, nil
}

func (m *MemoryIndex) DeleteByQuery(ctx context.Context, index string, body map[string]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete_by_query"]++

	hits, err := m.match(index, body)
	if err != nil {
		return 0, err
	}

	for _, hit := range hits {
		delete(m.indices[hit.Index], hit.ID)
	}

	return int64(len(hits)), nil
}

func (m *MemoryIndex) IndexExists(ctx context.Context, index string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["index_exists"]++

	_, exists := m.indices[index]
	return exists, nil
}

func (m *MemoryIndex) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["create_index"]++

	if _, exists := m.indices[index]; exists {
		return opensearch.ErrIndexAlreadyExists
	}

	m.indices[index] = map[string]map[string]any{}
	return nil
}

func (m *MemoryIndex) DeleteIndex(ctx context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete_index"]++

	if _, exists := m.indices[index]; !exists {
		return opensearch.ErrIndexNotFound
	}

	delete(m.indices, index)
	return nil
}

func (m *MemoryIndex) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["list_indices"]++

	return m.resolve(pattern), nil
}

type hit struct {
	ID     string
	Index  string
	Source map[string]any
}

func (m *MemoryIndex) resolve(pattern string) []string {
	var names []string
	for name := range m.indices {
		if matched, _ := path.Match(pattern, name); matched {
			names = append(names, name)
		}
	}

	slices.Sort(names)
	return names
}

func (m *MemoryIndex) match(index string, body map[string]any) ([]hit, error) {
	names := m.resolve(index)
	if len(names) == 0 && !strings.Contains(index, "*") {
		return nil, opensearch.ErrIndexNotFound
	}

	query, _ := body["query"].(map[string]any)

	var hits []hit
	for _, name := range names {
		for id, source := range m.indices[name] {
			if query == nil || matches(query, source) {
				hits = append(hits, hit{ID: id, Index: name, Source: source})
			}
		}
	}

	return hits, nil
}

func matches(query map[string]any, source map[string]any) bool {
	for kind, clause := range query {
		switch kind {
		case "match_all":
		case "bool":
			if !matchesBool(asMap(clause), source) {
				return false
			}
		case "term":
			for field, expected := range asMap(clause) {
				if !valuesEqual(lookup(source, field), expected) {
					return false
				}
			}
		case "terms":
			for field, expected := range asMap(clause) {
				actual := lookup(source, field)
				if !slices.ContainsFunc(asSlice(expected), func(value any) bool {
					return valuesEqual(actual, value)
				}) {
					return false
				}
			}
		case "range":
			for field, bounds := range asMap(clause) {
				if !inRange(lookup(source, field), asMap(bounds)) {
					return false
				}
			}
		case "nested":
			if !matchesNested(asMap(clause), source) {
				return false
			}
		default:
			panic(fmt.Sprintf("memory index does not support %q queries", kind))
		}
	}

	return true
}

func matchesBool(clause map[string]any, source map[string]any) bool {
	for _, key := range []string{"filter", "must"} {
		for _, sub := range asSlice(clause[key]) {
			if !matches(asMap(sub), source) {
				return false
			}
		}
	}

	for _, sub := range asSlice(clause["must_not"]) {
		if matches(asMap(sub), source) {
			return false
		}
	}

	return true
}

func matchesNested(clause map[string]any, source map[string]any) bool {
	nestedPath, _ := clause["path"].(string)
	inner := asMap(clause["query"])

	for _, element := range asSlice(source[nestedPath]) {
		object := asMap(element)
		if object == nil {
			continue
		}

		// inner fields are addressed as "<path>.<field>"
		if matches(inner, map[string]any{nestedPath: object}) {
			return true
		}
	}

	return false
}

func lookup(source map[string]any, field string) any {
	var current any = source
	for _, part := range strings.Split(field, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = object[part]
	}
	return current
}

func valuesEqual(actual any, expected any) bool {
	if actual == nil || expected == nil {
		return false
	}
	return fmt.Sprint(normalize(actual)) == fmt.Sprint(normalize(expected))
}

func inRange(value any, bounds map[string]any) bool {
	if value == nil {
		return false
	}

	for operator, bound := range bounds {
		comparison := compare(value, bound)
		switch operator {
		case "lt":
			if comparison >= 0 {
				return false
			}
		case "lte":
			if comparison > 0 {
				return false
			}
		case "gt":
			if comparison <= 0 {
				return false
			}
		case "gte":
			if comparison < 0 {
				return false
			}
		}
	}

	return true
}

// compare orders numbers numerically and everything else as strings; the
// created_at layout sorts lexicographically.
func compare(a any, b any) int {
	a, b = normalize(a), normalize(b)

	aNumber, aIsNumber := a.(float64)
	bNumber, bIsNumber := b.(float64)
	if aIsNumber && bIsNumber {
		switch {
		case aNumber < bNumber:
			return -1
		case aNumber > bNumber:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func sortHits(hits []hit, sortClause any) {
	type sortKey struct {
		field      string
		descending bool
	}

	var keys []sortKey
	for _, item := range asSlice(sortClause) {
		for field, options := range asMap(item) {
			order, _ := asMap(options)["order"].(string)
			keys = append(keys, sortKey{field: field, descending: order == "desc"})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		for _, key := range keys {
			comparison := compare(lookup(hits[i].Source, key.field), lookup(hits[j].Source, key.field))
			if comparison == 0 {
				continue
			}
			if key.descending {
				return comparison > 0
			}
			return comparison < 0
		}
		return hits[i].ID < hits[j].ID
	})
}

func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case float32:
		return float64(v)
	default:
		return value
	}
}

func toInt(value any, fallback int) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func asMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	default:
		return nil
	}
}

func asSlice(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []map[string]any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}
		return items
	case []string:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}
		return items
	default:
		return nil
	}
}

// roundTrip copies a source the way it would come back from the wire, so
// numbers become float64 and typed slices become []any.
func roundTrip(source map[string]any) map[string]any {
	data, err := json.Marshal(source)
	if err != nil {
		panic(fmt.Sprintf("memory index cannot encode source: %v", err))
	}

	var copied map[string]any
	if err := json.Unmarshal(data, &copied); err != nil {
		panic(fmt.Sprintf("memory index cannot decode source: %v", err))
	}

	return copied
}
