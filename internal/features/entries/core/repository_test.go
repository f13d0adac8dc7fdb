package entries_core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	entries_testing "debuglens/internal/features/entries/testing"
	"debuglens/internal/util/logger"

	"github.com/stretchr/testify/assert"
)

func Test_Store_WhenSameFamilyStoredThreeTimes_OnlyLatestIsVisibleWithOccurrences(t *testing.T) {
	repository, memory := createTestRepository()
	ctx := context.Background()

	var storedUUIDs []string
	for i := range 3 {
		exception := NewEntry(EntryTypeException,
			map[string]any{"class": "RuntimeException", "message": fmt.Sprintf("boom %d", i)},
			WithFamilyHash("abc123"),
			WithRecordedAt(time.Now().Add(time.Duration(i)*time.Second)),
		)
		storedUUIDs = append(storedUUIDs, exception.UUID)

		_, err := repository.Store(ctx, []*Entry{exception})
		assert.NoError(t, err)
	}

	for i, storedUUID := range storedUUIDs {
		source := memory.Source("telescope", storedUUID)
		assert.NotNil(t, source)

		isLatest := i == len(storedUUIDs)-1
		assert.Equal(t, isLatest, source["should_display_on_index"], "entry %d", i)
	}

	latest := memory.Source("telescope", storedUUIDs[2])
	assert.EqualValues(t, 3, latest["content"].(map[string]any)["occurrences"])
	assert.Contains(t, RawTags(latest["tags"]), "RuntimeException")

	listed, err := repository.Get(ctx, EntryTypeException, nil)
	assert.NoError(t, err)
	assert.Len(t, listed, 1)
	assert.Equal(t, storedUUIDs[2], listed[0].ID)

	family, err := repository.Get(ctx, EntryTypeException, &EntryQueryOptions{FamilyHash: "abc123"})
	assert.NoError(t, err)
	assert.Len(t, family, 3)
}

func Test_Store_WhenFamilyRepeatsWithinBatch_CountsEarlierBatchOccurrences(t *testing.T) {
	repository, memory := createTestRepository()

	first := NewEntry(EntryTypeException, map[string]any{"class": "E"}, WithFamilyHash("fam"))
	second := NewEntry(EntryTypeException, map[string]any{"class": "E"}, WithFamilyHash("fam"))

	_, err := repository.Store(context.Background(), []*Entry{first, second})
	assert.NoError(t, err)

	firstSource := memory.Source("telescope", first.UUID)
	secondSource := memory.Source("telescope", second.UUID)

	assert.Equal(t, false, firstSource["should_display_on_index"])
	assert.Equal(t, true, secondSource["should_display_on_index"])
	assert.EqualValues(t, 1, firstSource["content"].(map[string]any)["occurrences"])
	assert.EqualValues(t, 2, secondSource["content"].(map[string]any)["occurrences"])
}

func Test_Store_WhenFamilyHashMissing_DerivesItFromLocation(t *testing.T) {
	repository, memory := createTestRepository()
	content := map[string]any{"class": "E", "file": "app.php", "line": 42}

	first := NewEntry(EntryTypeException, content)
	second := NewEntry(EntryTypeException, content)

	_, err := repository.Store(context.Background(), []*Entry{first})
	assert.NoError(t, err)
	_, err = repository.Store(context.Background(), []*Entry{second})
	assert.NoError(t, err)

	assert.Equal(t, FamilyHashFor(content), memory.Source("telescope", second.UUID)["family_hash"])
	assert.Equal(t, false, memory.Source("telescope", first.UUID)["should_display_on_index"])
	assert.Empty(t, first.FamilyHash, "caller's entry must not be mutated")
}

func Test_Store_WhenBatchIsEmpty_PerformsNoIO(t *testing.T) {
	repository, memory := createTestRepository()

	report, err := repository.Store(context.Background(), nil)

	assert.NoError(t, err)
	assert.Equal(t, 0, report.Written())
	assert.Equal(t, 0, memory.TotalCalls())
}

func Test_Store_WhenIndexRejectsItems_ReturnsBulkWriteErrorWithReport(t *testing.T) {
	repository, memory := createTestRepository()

	good := NewEntry(EntryTypeRequest, map[string]any{"uri": "/ok"})
	bad := NewEntry(EntryTypeRequest, map[string]any{"uri": "/bad"})
	memory.FailedIDs[bad.UUID] = "mapper_parsing_exception: failed to parse"

	report, err := repository.Store(context.Background(), []*Entry{good, bad})

	var bulkErr *BulkWriteError
	assert.ErrorAs(t, err, &bulkErr)
	assert.Len(t, bulkErr.Failed, 1)
	assert.Equal(t, bad.UUID, bulkErr.Failed[0].UUID)
	assert.Equal(t, 2, bulkErr.Total)
	assert.Equal(t, 1, report.Written())
	assert.NotNil(t, memory.Source("telescope", good.UUID))
}

func Test_Store_WhenSearchFails_PropagatesError(t *testing.T) {
	repository, memory := createTestRepository()
	memory.SearchErr = errors.New("cluster unavailable")

	_, err := repository.Store(context.Background(), []*Entry{
		NewEntry(EntryTypeException, map[string]any{"class": "E"}, WithFamilyHash("fam")),
	})

	assert.ErrorContains(t, err, "cluster unavailable")
	assert.Equal(t, 0, memory.Calls("bulk"))
}

func Test_Get_WhenMoreEntriesThanLimit_ReturnsNewestFirstWithSequence(t *testing.T) {
	repository, _ := createTestRepository()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var entries []*Entry
	for i := range 5 {
		entries = append(entries, NewEntry(EntryTypeRequest,
			map[string]any{"index": i},
			WithRecordedAt(base.Add(time.Duration(i)*time.Minute)),
		))
	}
	_, err := repository.Store(context.Background(), entries)
	assert.NoError(t, err)

	firstPage, err := repository.Get(context.Background(), EntryTypeRequest, &EntryQueryOptions{Limit: 2})
	assert.NoError(t, err)
	assert.Len(t, firstPage, 2)
	assert.Equal(t, entries[4].UUID, firstPage[0].ID)
	assert.Equal(t, entries[3].UUID, firstPage[1].ID)
	assert.Equal(t, int64(2), firstPage[0].Sequence)

	secondPage, err := repository.Get(context.Background(), EntryTypeRequest, &EntryQueryOptions{
		Limit:          2,
		BeforeSequence: firstPage[0].Sequence,
	})
	assert.NoError(t, err)
	assert.Len(t, secondPage, 2)
	assert.Equal(t, entries[2].UUID, secondPage[0].ID)
	assert.Equal(t, int64(4), secondPage[0].Sequence)
}

func Test_Get_WhenDocumentHasNonObjectContent_LeavesItOut(t *testing.T) {
	repository, memory := createTestRepository()

	valid := NewEntry(EntryTypeLog, map[string]any{"message": "hello"})
	_, err := repository.Store(context.Background(), []*Entry{valid})
	assert.NoError(t, err)

	memory.Put("telescope", "broken", map[string]any{
		"uuid":                    "broken",
		"type":                    "log",
		"content":                 "not an object",
		"should_display_on_index": true,
		"created_at":              "2099-01-01 00:00:00",
	})

	results, err := repository.Get(context.Background(), EntryTypeLog, &EntryQueryOptions{Limit: 1000})

	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, valid.UUID, results[0].ID)
}

func Test_Get_WhenFilteringByTagAndBatch_ReturnsOnlyMatchingEntries(t *testing.T) {
	repository, _ := createTestRepository()

	tagged := NewEntry(EntryTypeQuery, map[string]any{}, WithTags("env:prod"), WithBatchID("batch-1"))
	otherBatch := NewEntry(EntryTypeQuery, map[string]any{}, WithTags("env:prod"), WithBatchID("batch-2"))
	untagged := NewEntry(EntryTypeQuery, map[string]any{}, WithBatchID("batch-1"))

	_, err := repository.Store(context.Background(), []*Entry{tagged, otherBatch, untagged})
	assert.NoError(t, err)

	byTag, err := repository.Get(context.Background(), "", &EntryQueryOptions{Tag: "env:prod"})
	assert.NoError(t, err)
	assert.Len(t, byTag, 2)

	byTagAndBatch, err := repository.Get(context.Background(), "", &EntryQueryOptions{Tag: "env:prod", BatchID: "batch-1"})
	assert.NoError(t, err)
	assert.Len(t, byTagAndBatch, 1)
	assert.Equal(t, tagged.UUID, byTagAndBatch[0].ID)
}

func Test_Get_WhenIndexIsRolling_SearchesAllIndices(t *testing.T) {
	repository, memory := createRollingTestRepository()

	entry := NewEntry(EntryTypeEvent, map[string]any{"name": "Registered"})
	_, err := repository.Store(context.Background(), []*Entry{entry})
	assert.NoError(t, err)

	memory.Put("telescope-2000.01.01", "old", map[string]any{
		"uuid":                    "old",
		"type":                    "event",
		"content":                 map[string]any{},
		"created_at":              "2000-01-01 00:00:00",
		"tags":                    []any{},
		"should_display_on_index": true,
	})

	results, err := repository.Get(context.Background(), EntryTypeEvent, nil)
	assert.NoError(t, err)
	assert.Len(t, results, 2)

	found, err := repository.Find(context.Background(), "old")
	assert.NoError(t, err)
	assert.Equal(t, "old", found.ID)
}

func Test_Store_WhenIndexIsRolling_SupersedesPriorOccurrenceInItsOwnIndex(t *testing.T) {
	repository, memory := createRollingTestRepository()
	ctx := context.Background()

	memory.Put("telescope-2000.01.01", "old", map[string]any{
		"uuid":                    "old",
		"type":                    "exception",
		"family_hash":             "fam",
		"content":                 map[string]any{"class": "E", "occurrences": 1},
		"created_at":              "2000-01-01 00:00:00",
		"tags":                    []any{},
		"should_display_on_index": true,
	})

	latest := NewEntry(EntryTypeException, map[string]any{"class": "E"}, WithFamilyHash("fam"))
	_, err := repository.Store(ctx, []*Entry{latest})
	assert.NoError(t, err)

	writeIndex := repository.Index().WriteIndex()
	assert.NotEqual(t, "telescope-2000.01.01", writeIndex)

	old := memory.Source("telescope-2000.01.01", "old")
	assert.NotNil(t, old)
	assert.Equal(t, false, old["should_display_on_index"])
	assert.Nil(t, memory.Source(writeIndex, "old"))

	latestSource := memory.Source(writeIndex, latest.UUID)
	assert.NotNil(t, latestSource)
	assert.Equal(t, true, latestSource["should_display_on_index"])
	assert.EqualValues(t, 2, latestSource["content"].(map[string]any)["occurrences"])
	assert.Equal(t, 2, memory.Count())

	listed, err := repository.Get(ctx, EntryTypeException, nil)
	assert.NoError(t, err)
	assert.Len(t, listed, 1)
	assert.Equal(t, latest.UUID, listed[0].ID)
}

func Test_Find_WhenEntryIsHidden_StillReturnsIt(t *testing.T) {
	repository, _ := createTestRepository()

	hidden := NewEntry(EntryTypeCache, map[string]any{"key": "users"}, WithDisplayOnIndex(false))
	_, err := repository.Store(context.Background(), []*Entry{hidden})
	assert.NoError(t, err)

	found, err := repository.Find(context.Background(), hidden.UUID)

	assert.NoError(t, err)
	assert.Equal(t, hidden.UUID, found.ID)
	assert.Equal(t, "users", found.Content["key"])
}

func Test_Find_WhenEntryOrIndexIsMissing_ReturnsErrEntryNotFound(t *testing.T) {
	repository, _ := createTestRepository()

	_, err := repository.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = repository.Store(context.Background(), []*Entry{NewEntry(EntryTypeLog, map[string]any{})})
	assert.NoError(t, err)

	_, err = repository.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func Test_Update_WhenEntryExists_MergesContentAndTags(t *testing.T) {
	repository, memory := createTestRepository()

	entry := NewEntry(EntryTypeJob,
		map[string]any{"status": "pending", "name": "SendMail"},
		WithTags("queue:default", "slow"),
		WithDisplayOnIndex(false),
	)
	_, err := repository.Store(context.Background(), []*Entry{entry})
	assert.NoError(t, err)

	report, err := repository.Update(context.Background(), []*EntryUpdate{
		NewEntryUpdate(entry.UUID, EntryTypeJob,
			map[string]any{"status": "processed"},
			AddTags("failed", "queue:default"),
			RemoveTags("slow"),
		),
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Written())

	source := memory.Source("telescope", entry.UUID)
	assert.Equal(t, map[string]any{"status": "processed", "name": "SendMail"}, source["content"])
	assert.Equal(t, []string{"queue:default", "failed"}, RawTags(source["tags"]))
	assert.Equal(t, false, source["should_display_on_index"])
}

func Test_Update_WhenEntryDoesNotExist_IsNoOp(t *testing.T) {
	repository, memory := createTestRepository()

	entry := NewEntry(EntryTypeJob, map[string]any{"status": "pending"})
	_, err := repository.Store(context.Background(), []*Entry{entry})
	assert.NoError(t, err)
	bulkCalls := memory.Calls("bulk")

	report, err := repository.Update(context.Background(), []*EntryUpdate{
		NewEntryUpdate("does-not-exist", EntryTypeJob, map[string]any{"status": "processed"}),
		NewEntryUpdate(entry.UUID, EntryTypeMail, map[string]any{"status": "processed"}),
	})

	assert.NoError(t, err)
	assert.Equal(t, 0, report.Written())
	assert.Equal(t, bulkCalls, memory.Calls("bulk"))
	assert.Equal(t, 1, memory.Count())
	assert.Equal(t, "pending", memory.Source("telescope", entry.UUID)["content"].(map[string]any)["status"])
}

func Test_Update_WhenSameEntryUpdatedTwiceInOneCall_AppliesBothInOrder(t *testing.T) {
	repository, memory := createTestRepository()

	entry := NewEntry(EntryTypeJob, map[string]any{"status": "pending"})
	_, err := repository.Store(context.Background(), []*Entry{entry})
	assert.NoError(t, err)

	report, err := repository.Update(context.Background(), []*EntryUpdate{
		NewEntryUpdate(entry.UUID, EntryTypeJob, map[string]any{"a": 1, "status": "running"}, AddTags("first")),
		NewEntryUpdate(entry.UUID, EntryTypeJob, map[string]any{"b": 2, "status": "processed"}, AddTags("second")),
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, report.Written())

	source := memory.Source("telescope", entry.UUID)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2), "status": "processed"}, source["content"])
	assert.Equal(t, []string{"first", "second"}, RawTags(source["tags"]))
}

func Test_Prune_WhenEntriesSpanCutoff_RemovesOnlyOlderEntries(t *testing.T) {
	repository, memory := createTestRepository()
	cutoff := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	older := NewEntry(EntryTypeRequest, map[string]any{}, WithRecordedAt(cutoff.Add(-time.Hour)))
	exactly := NewEntry(EntryTypeRequest, map[string]any{}, WithRecordedAt(cutoff))
	newer := NewEntry(EntryTypeRequest, map[string]any{}, WithRecordedAt(cutoff.Add(time.Hour)))

	_, err := repository.Store(context.Background(), []*Entry{older, exactly, newer})
	assert.NoError(t, err)

	deleted, err := repository.Prune(context.Background(), cutoff, false)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Nil(t, memory.Source("telescope", older.UUID))
	assert.NotNil(t, memory.Source("telescope", exactly.UUID))
	assert.NotNil(t, memory.Source("telescope", newer.UUID))

	assert.NoError(t, repository.Clear(context.Background()))

	for _, entry := range []*Entry{older, exactly, newer} {
		_, err := repository.Find(context.Background(), entry.UUID)
		assert.ErrorIs(t, err, ErrEntryNotFound)
	}
}

func Test_Prune_WhenKeepExceptionsSet_KeepsOldExceptions(t *testing.T) {
	repository, memory := createTestRepository()
	old := time.Now().Add(-48 * time.Hour)

	exception := NewEntry(EntryTypeException, map[string]any{"class": "E"}, WithFamilyHash("fam"), WithRecordedAt(old))
	request := NewEntry(EntryTypeRequest, map[string]any{}, WithRecordedAt(old))

	_, err := repository.Store(context.Background(), []*Entry{exception, request})
	assert.NoError(t, err)

	deleted, err := repository.Prune(context.Background(), time.Now(), true)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.NotNil(t, memory.Source("telescope", exception.UUID))
	assert.Nil(t, memory.Source("telescope", request.UUID))
}

func Test_Prune_WhenIndexIsMissing_ReturnsZero(t *testing.T) {
	repository, _ := createTestRepository()

	deleted, err := repository.Prune(context.Background(), time.Now(), false)

	assert.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func Test_Clear_WhenIndexIsMissing_ReturnsNoError(t *testing.T) {
	repository, _ := createTestRepository()

	assert.NoError(t, repository.Clear(context.Background()))
}

func Test_Monitoring_WhenTagsMonitored_NothingIsPersisted(t *testing.T) {
	repository, memory := createTestRepository()
	ctx := context.Background()

	repository.Monitor(ctx, []string{"user:1"})

	assert.False(t, repository.IsMonitoring(ctx, []string{"user:1"}))
	assert.Empty(t, repository.Monitoring(ctx))

	repository.StopMonitoring(ctx, []string{"user:1"})
	repository.Terminate()

	assert.False(t, repository.IsMonitoring(ctx, []string{"user:1"}))
	assert.Equal(t, 0, memory.TotalCalls())
}

func Test_Store_WhenFamilyLockerFails_DoesNotWrite(t *testing.T) {
	memory := entries_testing.NewMemoryIndex()
	index := NewEntryIndex(memory, IndexSettings{Name: "telescope"}, logger.GetLogger())
	repository := NewEntryRepository(memory, index, failingLocker{}, logger.GetLogger())

	_, err := repository.Store(context.Background(), []*Entry{
		NewEntry(EntryTypeException, map[string]any{"class": "E"}, WithFamilyHash("fam")),
	})

	assert.ErrorContains(t, err, "lock unavailable")
	assert.Equal(t, 0, memory.Calls("bulk"))
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock unavailable")
}

func createTestRepository() (*EntryRepository, *entries_testing.MemoryIndex) {
	memory := entries_testing.NewMemoryIndex()
	index := NewEntryIndex(memory, IndexSettings{Name: "telescope"}, logger.GetLogger())

	return NewEntryRepository(memory, index, nil, logger.GetLogger()), memory
}

func createRollingTestRepository() (*EntryRepository, *entries_testing.MemoryIndex) {
	memory := entries_testing.NewMemoryIndex()
	index := NewEntryIndex(memory, IndexSettings{Name: "telescope", SuffixLayout: "2006.01.02"}, logger.GetLogger())

	return NewEntryRepository(memory, index, nil, logger.GetLogger()), memory
}
