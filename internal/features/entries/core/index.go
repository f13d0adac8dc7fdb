package entries_core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"debuglens/internal/opensearch"

	"golang.org/x/sync/singleflight"
)

// DocumentIndex is the document store capability set the entry store needs.
// *opensearch.Client implements it.
type DocumentIndex interface {
	Get(ctx context.Context, index string, id string) (*opensearch.Document, error)
	Search(ctx context.Context, index string, body map[string]any) (*opensearch.SearchResult, error)
	Bulk(ctx context.Context, defaultIndex string, documents []opensearch.Document) (*opensearch.BulkResult, error)
	DeleteByQuery(ctx context.Context, index string, body map[string]any) (int64, error)
	IndexExists(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index string, body map[string]any) error
	DeleteIndex(ctx context.Context, index string) error
	ListIndices(ctx context.Context, pattern string) ([]string, error)
}

type IndexSettings struct {
	Name string
	// SuffixLayout is a Go time layout. When set, writes go to a daily (or
	// hourly, monthly...) index "<name>-<suffix>" and reads span "<name>-*".
	SuffixLayout string
	Shards       int
	Replicas     int
}

// EntryIndex owns the name and schema of the entries index.
type EntryIndex struct {
	client   DocumentIndex
	settings IndexSettings
	logger   *slog.Logger
	now      func() time.Time

	ensureGroup singleflight.Group
	ensuredMu   sync.Mutex
	ensured     map[string]bool
}

func NewEntryIndex(client DocumentIndex, settings IndexSettings, logger *slog.Logger) *EntryIndex {
	if settings.Shards <= 0 {
		settings.Shards = 1
	}
	if settings.Replicas < 0 {
		settings.Replicas = 0
	}

	return &EntryIndex{
		client:   client,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		ensured:  map[string]bool{},
	}
}

func (i *EntryIndex) Name() string {
	return i.settings.Name
}

func (i *EntryIndex) IsRolling() bool {
	return i.settings.SuffixLayout != ""
}

// WriteIndex is the concrete index new documents go to.
func (i *EntryIndex) WriteIndex() string {
	if !i.IsRolling() {
		return i.settings.Name
	}
	return i.settings.Name + "-" + i.now().UTC().Format(i.settings.SuffixLayout)
}

// ReadIndex is the index or pattern searches and deletes run against.
func (i *EntryIndex) ReadIndex() string {
	if !i.IsRolling() {
		return i.settings.Name
	}
	return i.settings.Name + "-*"
}

// Exists reports whether the write index exists. Transport failures are
// logged and reported as "not confirmed" (false).
func (i *EntryIndex) Exists(ctx context.Context) bool {
	indexName := i.WriteIndex()

	exists, err := i.client.IndexExists(ctx, indexName)
	if err != nil {
		i.logger.Error("failed to check entries index existence",
			slog.String("index", indexName),
			slog.String("error", err.Error()))
		return false
	}

	return exists
}

// Create creates the write index with the entries mapping. Failures are
// logged, not returned; a later write against a missing index will fail.
func (i *EntryIndex) Create(ctx context.Context) bool {
	indexName := i.WriteIndex()

	err := i.client.CreateIndex(ctx, indexName, i.Definition())
	if err != nil && !errors.Is(err, opensearch.ErrIndexAlreadyExists) {
		i.logger.Error("failed to create entries index",
			slog.String("index", indexName),
			slog.String("error", err.Error()))
		return false
	}

	if err == nil {
		i.logger.Info("created entries index", slog.String("index", indexName))
	}

	return true
}

// EnsureExists creates the write index if it is absent. Concurrent callers
// share one check, and a confirmed index is not checked again.
func (i *EntryIndex) EnsureExists(ctx context.Context) {
	indexName := i.WriteIndex()

	i.ensuredMu.Lock()
	isEnsured := i.ensured[indexName]
	i.ensuredMu.Unlock()
	if isEnsured {
		return
	}

	_, _, _ = i.ensureGroup.Do(indexName, func() (any, error) {
		confirmed := i.Exists(ctx)
		if !confirmed {
			confirmed = i.Create(ctx)
		}

		if confirmed {
			i.ensuredMu.Lock()
			i.ensured[indexName] = true
			i.ensuredMu.Unlock()
		}

		return nil, nil
	})
}

// Drop deletes the index, or every rolling index, with all documents. A
// missing index is not an error.
func (i *EntryIndex) Drop(ctx context.Context) error {
	defer i.forgetEnsured()

	if !i.IsRolling() {
		return i.dropIndex(ctx, i.settings.Name)
	}

	indices, err := i.client.ListIndices(ctx, i.ReadIndex())
	if err != nil {
		return fmt.Errorf("failed to list entries indices: %w", err)
	}

	var dropErrors []error
	for _, indexName := range indices {
		if err := i.dropIndex(ctx, indexName); err != nil {
			dropErrors = append(dropErrors, err)
		}
	}

	return errors.Join(dropErrors...)
}

func (i *EntryIndex) dropIndex(ctx context.Context, indexName string) error {
	err := i.client.DeleteIndex(ctx, indexName)
	if err == nil || errors.Is(err, opensearch.ErrIndexNotFound) {
		i.logger.Info("dropped entries index", slog.String("index", indexName))
		return nil
	}

	i.logger.Error("failed to drop entries index",
		slog.String("index", indexName),
		slog.String("error", err.Error()))

	return fmt.Errorf("failed to drop index %s: %w", indexName, err)
}

func (i *EntryIndex) forgetEnsured() {
	i.ensuredMu.Lock()
	defer i.ensuredMu.Unlock()

	i.ensured = map[string]bool{}
}

func (i *EntryIndex) Definition() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"number_of_shards":   i.settings.Shards,
				"number_of_replicas": i.settings.Replicas,
			},
		},
		"mappings": map[string]any{
			"_source":    map[string]any{"enabled": true},
			"properties": Properties(),
		},
	}
}

// Properties is the field mapping of an entry document. content is stored
// but not indexed since its shape depends on the entry type.
func Properties() map[string]any {
	keyword := func() map[string]any { return map[string]any{"type": "keyword"} }

	return map[string]any{
		"uuid":        keyword(),
		"batch_id":    keyword(),
		"family_hash": keyword(),
		"type":        keyword(),
		"should_display_on_index": map[string]any{
			"type":       "boolean",
			"null_value": true,
		},
		"content": map[string]any{
			"type":    "object",
			"dynamic": false,
		},
		"tags": map[string]any{
			"type":    "nested",
			"dynamic": false,
			"properties": map[string]any{
				"raw":   keyword(),
				"name":  keyword(),
				"value": keyword(),
			},
		},
		"created_at": map[string]any{
			"type":   "date",
			"format": "yyyy-MM-dd HH:mm:ss",
		},
		"@timestamp": map[string]any{
			"type": "date",
		},
	}
}
