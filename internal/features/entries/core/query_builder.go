package entries_core

import (
	"log/slog"
	"time"
)

// maxFamilyOccurrences caps how many prior occurrences of one exception
// family are loaded (and superseded) per store.
const maxFamilyOccurrences = 1000

type QueryBuilder struct {
	logger *slog.Logger
}

// BuildSearchBody builds the OpenSearch DSL body of a listing. Every present
// filter is ANDed; absent filters add no clause. Without a batch, family or
// tag scope, superseded entries are hidden from the listing.
func (builder *QueryBuilder) BuildSearchBody(entryType EntryType, options *EntryQueryOptions) map[string]any {
	filters := []any{}

	if entryType != "" {
		filters = append(filters, term("type", string(entryType)))
	}

	if options != nil {
		if options.BatchID != "" {
			filters = append(filters, term("batch_id", options.BatchID))
		}
		if options.FamilyHash != "" {
			filters = append(filters, term("family_hash", options.FamilyHash))
		}
		if options.Tag != "" {
			filters = append(filters, nestedTag(options.Tag))
		}
		if len(options.UUIDs) > 0 {
			filters = append(filters, terms("uuid", options.UUIDs))
		}
	}

	if !options.hasScopeFilter() {
		filters = append(filters, term("should_display_on_index", true))
	}

	builder.logger.Debug("built entry search body",
		slog.String("type", string(entryType)),
		slog.Int("filters", len(filters)),
		slog.Int64("from", options.Offset()),
		slog.Int("size", options.EffectiveLimit()))

	return map[string]any{
		"from":             options.Offset(),
		"size":             options.EffectiveLimit(),
		"track_total_hits": true,
		"sort":             newestFirst(),
		"query":            boolFilter(filters),
	}
}

// BuildFamilyOccurrencesBody finds stored exceptions of one family.
func (builder *QueryBuilder) BuildFamilyOccurrencesBody(familyHash string) map[string]any {
	return map[string]any{
		"size":             maxFamilyOccurrences,
		"track_total_hits": true,
		"sort":             newestFirst(),
		"query": boolFilter([]any{
			term("family_hash", familyHash),
			term("type", string(EntryTypeException)),
		}),
	}
}

// BuildEntryLookupBody finds the single document of an (uuid, type) pair.
func (builder *QueryBuilder) BuildEntryLookupBody(entryUUID string, entryType EntryType) map[string]any {
	filters := []any{term("uuid", entryUUID)}
	if entryType != "" {
		filters = append(filters, term("type", string(entryType)))
	}

	return map[string]any{
		"size":  1,
		"query": boolFilter(filters),
	}
}

// BuildPruneBody matches documents created strictly before the cut-off.
// created_at is stored at second precision, so the cut-off is truncated to
// the second as well: an entry from the same second as a sub-second cut-off
// is kept.
func (builder *QueryBuilder) BuildPruneBody(before time.Time, keepExceptions bool) map[string]any {
	boolQuery := map[string]any{
		"filter": []any{
			map[string]any{
				"range": map[string]any{
					"created_at": map[string]any{"lt": before.UTC().Format(createdAtLayout)},
				},
			},
		},
	}

	if keepExceptions {
		boolQuery["must_not"] = []any{term("type", string(EntryTypeException))}
	}

	return map[string]any{"query": map[string]any{"bool": boolQuery}}
}

func newestFirst() []any {
	return []any{
		map[string]any{"created_at": map[string]any{"order": "desc"}},
		map[string]any{"uuid": map[string]any{"order": "desc"}},
	}
}

func boolFilter(filters []any) map[string]any {
	return map[string]any{"bool": map[string]any{"filter": filters}}
}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func terms(field string, values []string) map[string]any {
	arr := make([]any, len(values))
	for i, v := range values {
		arr[i] = v
	}
	return map[string]any{"terms": map[string]any{field: arr}}
}

func nestedTag(raw string) map[string]any {
	return map[string]any{
		"nested": map[string]any{
			"path":  "tags",
			"query": term("tags.raw", raw),
		},
	}
}
