package entries_core

import (
	"testing"
	"time"

	"debuglens/internal/util/logger"

	"github.com/stretchr/testify/assert"
)

func Test_BuildSearchBody_WhenNoFiltersGiven_ListsOnlyDisplayedEntries(t *testing.T) {
	body := createTestQueryBuilder().BuildSearchBody("", nil)

	assert.Equal(t, int64(0), body["from"])
	assert.Equal(t, DefaultQueryLimit, body["size"])
	assert.Equal(t, newestFirst(), body["sort"])
	assert.Equal(t, boolFilter([]any{term("should_display_on_index", true)}), body["query"])
}

func Test_BuildSearchBody_WhenAllFiltersGiven_CombinesThemWithoutDisplayClause(t *testing.T) {
	body := createTestQueryBuilder().BuildSearchBody(EntryTypeException, &EntryQueryOptions{
		BatchID:        "batch-1",
		FamilyHash:     "abc123",
		Tag:            "env:prod",
		BeforeSequence: 50,
		Limit:          25,
	})

	assert.Equal(t, int64(50), body["from"])
	assert.Equal(t, 25, body["size"])
	assert.Equal(t, boolFilter([]any{
		term("type", "exception"),
		term("batch_id", "batch-1"),
		term("family_hash", "abc123"),
		nestedTag("env:prod"),
	}), body["query"])
}

func Test_BuildSearchBody_WhenLimitIsNotPositive_UsesDefaultLimit(t *testing.T) {
	for _, limit := range []int{0, -1, -100} {
		body := createTestQueryBuilder().BuildSearchBody("", &EntryQueryOptions{Limit: limit})
		assert.Equal(t, DefaultQueryLimit, body["size"])
	}
}

func Test_BuildSearchBody_WhenOnlyTypeGiven_StillHidesSupersededEntries(t *testing.T) {
	body := createTestQueryBuilder().BuildSearchBody(EntryTypeRequest, &EntryQueryOptions{})

	assert.Equal(t, boolFilter([]any{
		term("type", "request"),
		term("should_display_on_index", true),
	}), body["query"])
}

func Test_BuildPruneBody_WhenKeepExceptionsSet_ExcludesExceptions(t *testing.T) {
	before := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		keepExceptions bool
		expectMustNot  bool
	}{
		{"Keep exceptions", true, true},
		{"Delete everything", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := createTestQueryBuilder().BuildPruneBody(before, tt.keepExceptions)
			boolQuery := body["query"].(map[string]any)["bool"].(map[string]any)

			assert.Equal(t, []any{
				map[string]any{"range": map[string]any{
					"created_at": map[string]any{"lt": "2024-03-01 12:00:00"},
				}},
			}, boolQuery["filter"])

			_, hasMustNot := boolQuery["must_not"]
			assert.Equal(t, tt.expectMustNot, hasMustNot)
		})
	}
}

func Test_BuildPruneBody_WhenCutoffHasSubSeconds_TruncatesToStoredPrecision(t *testing.T) {
	before := time.Date(2024, 3, 1, 14, 0, 5, 750_000_000, time.FixedZone("CET", 2*60*60))

	body := createTestQueryBuilder().BuildPruneBody(before, false)
	boolQuery := body["query"].(map[string]any)["bool"].(map[string]any)

	assert.Equal(t, []any{
		map[string]any{"range": map[string]any{
			"created_at": map[string]any{"lt": "2024-03-01 12:00:05"},
		}},
	}, boolQuery["filter"])
}

func Test_BuildEntryLookupBody_WhenTypeGiven_MatchesUuidAndType(t *testing.T) {
	body := createTestQueryBuilder().BuildEntryLookupBody("id-1", EntryTypeJob)

	assert.Equal(t, 1, body["size"])
	assert.Equal(t, boolFilter([]any{term("uuid", "id-1"), term("type", "job")}), body["query"])
}

func createTestQueryBuilder() *QueryBuilder {
	return &QueryBuilder{logger: logger.GetLogger()}
}
