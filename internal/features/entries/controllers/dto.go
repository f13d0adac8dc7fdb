package entries_controllers

import (
	"time"

	entries_core "debuglens/internal/features/entries/core"
)

type ListEntriesRequestDTO struct {
	Type           entries_core.EntryType `schema:"type"`
	BatchID        string                 `schema:"batch_id"`
	FamilyHash     string                 `schema:"family_hash"`
	Tag            string                 `schema:"tag"`
	BeforeSequence int64                  `schema:"before"`
	Take           int                    `schema:"take"`
}

func (r *ListEntriesRequestDTO) ToQueryOptions() *entries_core.EntryQueryOptions {
	return &entries_core.EntryQueryOptions{
		BatchID:        r.BatchID,
		FamilyHash:     r.FamilyHash,
		Tag:            r.Tag,
		BeforeSequence: r.BeforeSequence,
		Limit:          r.Take,
	}
}

type ListEntriesResponseDTO struct {
	Entries []*entries_core.EntryResult `json:"entries"`
}

type StoreEntryDTO struct {
	UUID           string                 `json:"uuid"`
	Type           entries_core.EntryType `json:"type"           binding:"required"`
	BatchID        string                 `json:"batchId"`
	FamilyHash     string                 `json:"familyHash"`
	Content        map[string]any         `json:"content"`
	Tags           []string               `json:"tags"`
	RecordedAt     *time.Time             `json:"recordedAt"`
	DisplayOnIndex *bool                  `json:"displayOnIndex"`
}

func (d *StoreEntryDTO) ToEntry() *entries_core.Entry {
	options := []entries_core.EntryOption{
		entries_core.WithBatchID(d.BatchID),
		entries_core.WithFamilyHash(d.FamilyHash),
		entries_core.WithTags(d.Tags...),
	}
	if d.UUID != "" {
		options = append(options, entries_core.WithUUID(d.UUID))
	}
	if d.RecordedAt != nil {
		options = append(options, entries_core.WithRecordedAt(*d.RecordedAt))
	}
	if d.DisplayOnIndex != nil {
		options = append(options, entries_core.WithDisplayOnIndex(*d.DisplayOnIndex))
	}

	return entries_core.NewEntry(d.Type, d.Content, options...)
}

type StoreEntriesRequestDTO struct {
	Entries []StoreEntryDTO `json:"entries" binding:"required,dive"`
}

type WriteResponseDTO struct {
	Written int                      `json:"written"`
	Items   []entries_core.WriteItem `json:"items"`
}

type UpdateEntriesRequestDTO struct {
	Updates []*entries_core.EntryUpdate `json:"updates" binding:"required"`
}

type PruneEntriesRequestDTO struct {
	// Before is an ISO timestamp or a unix time in seconds or milliseconds.
	Before         any  `json:"before"`
	KeepExceptions bool `json:"keepExceptions"`
}

type PruneEntriesResponseDTO struct {
	Deleted int64 `json:"deleted"`
}

type MonitoringRequestDTO struct {
	Tags []string `json:"tags" binding:"required"`
}

type MonitoringResponseDTO struct {
	Tags []string `json:"tags"`
}
