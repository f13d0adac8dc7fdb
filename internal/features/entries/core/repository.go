package entries_core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"debuglens/internal/opensearch"

	"golang.org/x/sync/errgroup"
)

// updateLookupConcurrency bounds the parallel (uuid, type) lookups of one update call.
const updateLookupConcurrency = 8

// FamilyLocker serialises exception stores of the same family across
// processes. The returned unlock must be called once the write is done.
type FamilyLocker interface {
	Lock(ctx context.Context, familyHash string) (unlock func(), err error)
}

type noopFamilyLocker struct{}

func (noopFamilyLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

type EntryRepository struct {
	client       DocumentIndex
	index        *EntryIndex
	codec        *EntryCodec
	queryBuilder *QueryBuilder
	familyLocker FamilyLocker
	logger       *slog.Logger

	monitoredTagsMu sync.Mutex
	monitoredTags   []string
}

func NewEntryRepository(
	client DocumentIndex,
	index *EntryIndex,
	familyLocker FamilyLocker,
	logger *slog.Logger,
) *EntryRepository {
	if familyLocker == nil {
		familyLocker = noopFamilyLocker{}
	}

	return &EntryRepository{
		client:       client,
		index:        index,
		codec:        NewEntryCodec(),
		queryBuilder: &QueryBuilder{logger: logger},
		familyLocker: familyLocker,
		logger:       logger,
	}
}

func (repository *EntryRepository) Index() *EntryIndex {
	return repository.index
}

// Find returns the entry with the given id, including superseded ones.
func (repository *EntryRepository) Find(ctx context.Context, id string) (*EntryResult, error) {
	document, err := repository.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	return repository.codec.ToEntryResult(*document, 0)
}

func (repository *EntryRepository) findDocument(ctx context.Context, id string) (*opensearch.Document, error) {
	if !repository.index.IsRolling() {
		document, err := repository.client.Get(ctx, repository.index.ReadIndex(), id)
		if errors.Is(err, opensearch.ErrDocumentNotFound) || errors.Is(err, opensearch.ErrIndexNotFound) {
			return nil, ErrEntryNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
		}
		return document, nil
	}

	// a pattern cannot be addressed by id, so look the uuid up instead
	result, err := repository.client.Search(
		ctx,
		repository.index.ReadIndex(),
		repository.queryBuilder.BuildEntryLookupBody(id, ""),
	)
	if errors.Is(err, opensearch.ErrIndexNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up entry %s: %w", id, err)
	}
	if len(result.Hits) == 0 {
		return nil, ErrEntryNotFound
	}

	return &result.Hits[0], nil
}

// Get lists entries of a type (all types when empty), newest first. Documents
// that do not decode into an entry are left out of the result.
func (repository *EntryRepository) Get(
	ctx context.Context,
	entryType EntryType,
	options *EntryQueryOptions,
) ([]*EntryResult, error) {
	searchBody := repository.queryBuilder.BuildSearchBody(entryType, options)

	result, err := repository.client.Search(ctx, repository.index.ReadIndex(), searchBody)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}

	sequence := options.NextSequence()
	entries := make([]*EntryResult, 0, len(result.Hits))

	for _, hit := range result.Hits {
		entry, err := repository.codec.ToEntryResult(hit, sequence)
		if err != nil {
			repository.logger.Debug("skipping undecodable entry document",
				slog.String("id", hit.ID),
				slog.String("error", err.Error()))
			continue
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// Store writes a batch of new entries. Exceptions are deduplicated by family:
// the newest one carries the occurrence count and stays listed, the earlier
// occurrences are rewritten as hidden.
func (repository *EntryRepository) Store(ctx context.Context, entries []*Entry) (*WriteReport, error) {
	if len(entries) == 0 {
		return &WriteReport{}, nil
	}

	repository.index.EnsureExists(ctx)

	var exceptions, others []*Entry
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if entry.IsException() {
			exceptions = append(exceptions, entry.clone())
		} else {
			others = append(others, entry)
		}
	}

	var documents []opensearch.Document

	if len(exceptions) > 0 {
		unlock, err := repository.lockFamilies(ctx, exceptions)
		if err != nil {
			return nil, err
		}
		defer unlock()

		exceptionEntries, err := repository.prepareExceptions(ctx, exceptions)
		if err != nil {
			return nil, err
		}

		for _, entry := range exceptionEntries {
			documents = append(documents, repository.codec.ToDocument(entry))
		}
	}

	for _, entry := range others {
		documents = append(documents, repository.codec.ToDocument(entry))
	}

	return repository.bulkSend(ctx, documents)
}

// prepareExceptions resolves the family of every exception and returns the
// exceptions plus the prior occurrences that must be hidden.
func (repository *EntryRepository) prepareExceptions(ctx context.Context, exceptions []*Entry) ([]*Entry, error) {
	type familyState struct {
		priorCount int64
		visible    *Entry
	}

	families := map[string]*familyState{}
	batchUUIDs := map[string]bool{}
	for _, exception := range exceptions {
		batchUUIDs[exception.UUID] = true
	}

	var prepared []*Entry

	for _, exception := range exceptions {
		if exception.FamilyHash == "" {
			exception.FamilyHash = FamilyHashFor(exception.Content)
		}

		state, seen := families[exception.FamilyHash]
		if !seen {
			occurrences, total, err := repository.findFamilyOccurrences(ctx, exception.FamilyHash)
			if err != nil {
				return nil, err
			}

			state = &familyState{priorCount: total}
			families[exception.FamilyHash] = state

			for _, occurrence := range occurrences {
				if batchUUIDs[occurrence.UUID] {
					// re-stored in this batch, it is rewritten below anyway
					state.priorCount--
					continue
				}

				occurrence.DisplayOnIndex = false
				prepared = append(prepared, occurrence)
			}
		}

		if state.visible != nil {
			state.visible.DisplayOnIndex = false
		}

		state.priorCount++
		exception.Content["occurrences"] = state.priorCount
		exception.DisplayOnIndex = true
		exception.addTag(exception.ExceptionClass())
		state.visible = exception

		prepared = append(prepared, exception)
	}

	return prepared, nil
}

func (repository *EntryRepository) findFamilyOccurrences(
	ctx context.Context,
	familyHash string,
) ([]*Entry, int64, error) {
	result, err := repository.client.Search(
		ctx,
		repository.index.ReadIndex(),
		repository.queryBuilder.BuildFamilyOccurrencesBody(familyHash),
	)
	if errors.Is(err, opensearch.ErrIndexNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find occurrences of family %s: %w", familyHash, err)
	}

	occurrences := make([]*Entry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		occurrence, err := repository.codec.ToEntry(hit)
		if err != nil {
			repository.logger.Warn("skipping undecodable exception occurrence",
				slog.String("familyHash", familyHash),
				slog.String("id", hit.ID),
				slog.String("error", err.Error()))
			continue
		}

		occurrences = append(occurrences, occurrence)
	}

	return occurrences, max(result.Total, int64(len(result.Hits))), nil
}

func (repository *EntryRepository) lockFamilies(ctx context.Context, exceptions []*Entry) (func(), error) {
	familyHashes := make([]string, 0, len(exceptions))
	for _, exception := range exceptions {
		familyHash := exception.FamilyHash
		if familyHash == "" {
			familyHash = FamilyHashFor(exception.Content)
		}
		familyHashes = append(familyHashes, familyHash)
	}

	// a fixed order keeps two batches with overlapping families from deadlocking
	slices.Sort(familyHashes)
	familyHashes = slices.Compact(familyHashes)

	unlocks := make([]func(), 0, len(familyHashes))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, familyHash := range familyHashes {
		unlock, err := repository.familyLocker.Lock(ctx, familyHash)
		if err != nil {
			unlockAll()
			return nil, fmt.Errorf("failed to lock exception family %s: %w", familyHash, err)
		}
		unlocks = append(unlocks, unlock)
	}

	return unlockAll, nil
}

// Update merges changes into stored entries. Updates whose (uuid, type) has
// no stored document are skipped. Several updates to the same entry are
// applied in order onto one lookup and written once.
func (repository *EntryRepository) Update(ctx context.Context, updates []*EntryUpdate) (*WriteReport, error) {
	if len(updates) == 0 {
		return &WriteReport{}, nil
	}

	type updateKey struct {
		uuid      string
		entryType EntryType
	}

	var keys []updateKey
	updatesByKey := make(map[updateKey][]*EntryUpdate)
	for _, update := range updates {
		if update == nil {
			continue
		}

		key := updateKey{uuid: update.UUID, entryType: update.Type}
		if _, ok := updatesByKey[key]; !ok {
			keys = append(keys, key)
		}
		updatesByKey[key] = append(updatesByKey[key], update)
	}

	updatedEntries := make([]*Entry, len(keys))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(updateLookupConcurrency)

	for i, key := range keys {
		group.Go(func() error {
			entry, err := repository.lookupEntry(groupCtx, key.uuid, key.entryType)
			if err != nil {
				return err
			}
			if entry == nil {
				repository.logger.Debug("skipping update of missing entry",
					slog.String("uuid", key.uuid),
					slog.String("type", string(key.entryType)))
				return nil
			}

			for _, update := range updatesByKey[key] {
				update.apply(entry)
			}
			updatedEntries[i] = entry

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	var documents []opensearch.Document
	for _, entry := range updatedEntries {
		if entry != nil {
			documents = append(documents, repository.codec.ToDocument(entry))
		}
	}

	if len(documents) == 0 {
		return &WriteReport{}, nil
	}

	return repository.bulkSend(ctx, documents)
}

func (repository *EntryRepository) lookupEntry(
	ctx context.Context,
	entryUUID string,
	entryType EntryType,
) (*Entry, error) {
	result, err := repository.client.Search(
		ctx,
		repository.index.ReadIndex(),
		repository.queryBuilder.BuildEntryLookupBody(entryUUID, entryType),
	)
	if errors.Is(err, opensearch.ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up entry %s: %w", entryUUID, err)
	}
	if len(result.Hits) == 0 {
		return nil, nil
	}

	entry, err := repository.codec.ToEntry(result.Hits[0])
	if err != nil {
		repository.logger.Warn("cannot update undecodable entry document",
			slog.String("uuid", entryUUID),
			slog.String("error", err.Error()))
		return nil, nil
	}

	return entry, nil
}

// Prune deletes entries created strictly before the cut-off and returns how
// many were removed. With keepExceptions, exception entries are kept.
func (repository *EntryRepository) Prune(ctx context.Context, before time.Time, keepExceptions bool) (int64, error) {
	deleted, err := repository.client.DeleteByQuery(
		ctx,
		repository.index.ReadIndex(),
		repository.queryBuilder.BuildPruneBody(before, keepExceptions),
	)
	if errors.Is(err, opensearch.ErrIndexNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to prune entries: %w", err)
	}

	repository.logger.Info("pruned entries",
		slog.Time("before", before),
		slog.Bool("keepExceptions", keepExceptions),
		slog.Int64("deleted", deleted))

	return deleted, nil
}

// Clear drops the entries index with its schema and all documents.
func (repository *EntryRepository) Clear(ctx context.Context) error {
	if err := repository.index.Drop(ctx); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	return nil
}

// Monitoring returns the tags currently being monitored. Tag monitoring is
// not backed by storage, so the list is always empty.
func (repository *EntryRepository) Monitoring(ctx context.Context) []string {
	return []string{}
}

// IsMonitoring reports whether any of the tags is monitored. The monitored
// list is loaded once per unit of work and reset by Terminate.
func (repository *EntryRepository) IsMonitoring(ctx context.Context, tags []string) bool {
	repository.monitoredTagsMu.Lock()
	defer repository.monitoredTagsMu.Unlock()

	if repository.monitoredTags == nil {
		repository.monitoredTags = repository.Monitoring(ctx)
	}

	for _, tag := range tags {
		if slices.Contains(repository.monitoredTags, tag) {
			return true
		}
	}

	return false
}

func (repository *EntryRepository) Monitor(ctx context.Context, tags []string) {
	monitored := repository.Monitoring(ctx)

	tags = slices.DeleteFunc(slices.Clone(tags), func(tag string) bool {
		return slices.Contains(monitored, tag)
	})
	if len(tags) == 0 {
		return
	}

	repository.logger.Debug("tag monitoring is not persisted", slog.Any("tags", tags))
}

func (repository *EntryRepository) StopMonitoring(ctx context.Context, tags []string) {}

// Terminate resets per-unit-of-work state. Call it once after each batch of
// entries has been stored.
func (repository *EntryRepository) Terminate() {
	repository.monitoredTagsMu.Lock()
	defer repository.monitoredTagsMu.Unlock()

	repository.monitoredTags = nil
}

func (repository *EntryRepository) bulkSend(ctx context.Context, documents []opensearch.Document) (*WriteReport, error) {
	if len(documents) == 0 {
		return &WriteReport{}, nil
	}

	repository.index.EnsureExists(ctx)

	bulkResult, err := repository.client.Bulk(ctx, repository.index.WriteIndex(), documents)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk write entries: %w", err)
	}

	report := &WriteReport{Items: make([]WriteItem, 0, len(bulkResult.Items))}
	var failed []WriteItem

	for _, item := range bulkResult.Items {
		writeItem := WriteItem{
			UUID:   item.ID,
			Index:  item.Index,
			Status: item.Status,
		}
		if item.Failed() {
			writeItem.Error = item.Error
			if writeItem.Error == "" {
				writeItem.Error = fmt.Sprintf("status %d", item.Status)
			}
			failed = append(failed, writeItem)
		}

		report.Items = append(report.Items, writeItem)
	}

	if len(failed) > 0 {
		repository.logger.Error("bulk write rejected entries",
			slog.Int("failed", len(failed)),
			slog.Int("total", len(documents)))

		return report, &BulkWriteError{Failed: failed, Total: len(documents)}
	}

	return report, nil
}
