package entries_core

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Entry is the write-side unit: one recorded debug event. Build entries with
// NewEntry: a struct literal leaves DisplayOnIndex false, which hides a
// non-exception entry from listings.
type Entry struct {
	UUID           string         `json:"uuid"`
	Type           EntryType      `json:"type"`
	BatchID        string         `json:"batchId"`
	FamilyHash     string         `json:"familyHash,omitempty"`
	Content        map[string]any `json:"content"`
	Tags           []string       `json:"tags"`
	RecordedAt     time.Time      `json:"recordedAt"`
	DisplayOnIndex bool           `json:"displayOnIndex"`

	// Index is the concrete index a stored entry was read from. New entries
	// leave it empty and are written to the current write index.
	Index string `json:"-"`
}

type EntryOption func(entry *Entry)

func WithUUID(id string) EntryOption {
	return func(entry *Entry) { entry.UUID = id }
}

func WithBatchID(batchID string) EntryOption {
	return func(entry *Entry) { entry.BatchID = batchID }
}

func WithFamilyHash(familyHash string) EntryOption {
	return func(entry *Entry) { entry.FamilyHash = familyHash }
}

func WithTags(tags ...string) EntryOption {
	return func(entry *Entry) { entry.Tags = append(entry.Tags, tags...) }
}

func WithRecordedAt(recordedAt time.Time) EntryOption {
	return func(entry *Entry) { entry.RecordedAt = recordedAt.UTC() }
}

func WithDisplayOnIndex(display bool) EntryOption {
	return func(entry *Entry) { entry.DisplayOnIndex = display }
}

// NewEntry builds a fully populated entry with a fresh uuid, the current time
// and DisplayOnIndex set. The content map is copied.
func NewEntry(entryType EntryType, content map[string]any, options ...EntryOption) *Entry {
	entry := &Entry{
		UUID:           uuid.New().String(),
		Type:           entryType,
		Content:        maps.Clone(content),
		Tags:           []string{},
		RecordedAt:     time.Now().UTC(),
		DisplayOnIndex: true,
	}
	if entry.Content == nil {
		entry.Content = map[string]any{}
	}

	for _, option := range options {
		option(entry)
	}

	return entry
}

func (e *Entry) IsException() bool {
	return e.Type == EntryTypeException
}

// ExceptionClass is the type name of the fault an exception entry records.
func (e *Entry) ExceptionClass() string {
	class, _ := e.Content["class"].(string)
	return class
}

func (e *Entry) clone() *Entry {
	cloned := *e
	cloned.Content = maps.Clone(e.Content)
	cloned.Tags = slices.Clone(e.Tags)
	if cloned.Content == nil {
		cloned.Content = map[string]any{}
	}
	return &cloned
}

func (e *Entry) addTag(tag string) {
	if tag == "" || slices.Contains(e.Tags, tag) {
		return
	}
	e.Tags = append(e.Tags, tag)
}

// FamilyHashFor derives the grouping key of an exception from where it was
// thrown, falling back to its class and message.
func FamilyHashFor(content map[string]any) string {
	file, hasFile := content["file"]
	line, hasLine := content["line"]

	var key string
	if hasFile && hasLine {
		key = fmt.Sprintf("%v%v", file, line)
	} else {
		key = fmt.Sprintf("%v%v", content["class"], content["message"])
	}

	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// EntryResult is the read-side projection returned by find and get.
type EntryResult struct {
	ID         string         `json:"id"`
	Sequence   int64          `json:"sequence"`
	BatchID    string         `json:"batchId"`
	Type       EntryType      `json:"type"`
	FamilyHash string         `json:"familyHash,omitempty"`
	Content    map[string]any `json:"content"`
	CreatedAt  time.Time      `json:"createdAt"`
	Tags       []string       `json:"tags"`
}

type TagsChanges struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// EntryUpdate is a partial change to a stored entry identified by uuid and type.
type EntryUpdate struct {
	UUID        string         `json:"uuid"`
	Type        EntryType      `json:"type"`
	Changes     map[string]any `json:"changes"`
	TagsChanges TagsChanges    `json:"tagsChanges"`
}

type UpdateOption func(update *EntryUpdate)

func AddTags(tags ...string) UpdateOption {
	return func(update *EntryUpdate) {
		update.TagsChanges.Added = append(update.TagsChanges.Added, tags...)
	}
}

func RemoveTags(tags ...string) UpdateOption {
	return func(update *EntryUpdate) {
		update.TagsChanges.Removed = append(update.TagsChanges.Removed, tags...)
	}
}

func NewEntryUpdate(
	entryUUID string,
	entryType EntryType,
	changes map[string]any,
	options ...UpdateOption,
) *EntryUpdate {
	update := &EntryUpdate{
		UUID:    entryUUID,
		Type:    entryType,
		Changes: maps.Clone(changes),
	}
	if update.Changes == nil {
		update.Changes = map[string]any{}
	}

	for _, option := range options {
		option(update)
	}

	return update
}

// apply merges the update into a stored entry: content keys from the update
// win, added tags are unioned in and removed tags dropped.
func (u *EntryUpdate) apply(entry *Entry) {
	maps.Copy(entry.Content, u.Changes)

	for _, tag := range u.TagsChanges.Added {
		entry.addTag(tag)
	}

	if len(u.TagsChanges.Removed) > 0 {
		entry.Tags = slices.DeleteFunc(entry.Tags, func(tag string) bool {
			return slices.Contains(u.TagsChanges.Removed, tag)
		})
	}
}
