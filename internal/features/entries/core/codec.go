package entries_core

import (
	"strings"
	"time"

	"debuglens/internal/opensearch"
)

// createdAtLayout matches the "yyyy-MM-dd HH:mm:ss" format of the created_at mapping.
const createdAtLayout = "2006-01-02 15:04:05"

// EntryCodec maps entries to index documents and back.
type EntryCodec struct {
	now func() time.Time
}

func NewEntryCodec() *EntryCodec {
	return &EntryCodec{now: time.Now}
}

func (c *EntryCodec) ToDocument(entry *Entry) opensearch.Document {
	var familyHash any
	if entry.FamilyHash != "" {
		familyHash = entry.FamilyHash
	}

	content := entry.Content
	if content == nil {
		content = map[string]any{}
	}

	source := map[string]any{
		"uuid":                    entry.UUID,
		"batch_id":                entry.BatchID,
		"family_hash":             familyHash,
		"type":                    string(entry.Type),
		"content":                 content,
		"tags":                    FormatTags(entry.Tags),
		"should_display_on_index": entry.DisplayOnIndex,
		"created_at":              entry.RecordedAt.UTC().Format(createdAtLayout),
		"@timestamp":              c.now().UTC().Format(time.RFC3339),
	}

	return opensearch.Document{ID: entry.UUID, Index: entry.Index, Source: source}
}

func (c *EntryCodec) ToEntry(document opensearch.Document) (*Entry, error) {
	source := document.Source

	content, ok := source["content"].(map[string]any)
	if !ok {
		return nil, &DecodeError{DocumentID: document.ID, Reason: "content is not an object"}
	}

	entryUUID := asString(source["uuid"])
	if entryUUID == "" {
		entryUUID = document.ID
	}
	if entryUUID == "" {
		return nil, &DecodeError{DocumentID: document.ID, Reason: "uuid is missing"}
	}

	entryType := asString(source["type"])
	if entryType == "" {
		return nil, &DecodeError{DocumentID: document.ID, Reason: "type is missing"}
	}

	recordedAt, err := parseCreatedAt(source["created_at"])
	if err != nil {
		return nil, &DecodeError{DocumentID: document.ID, Reason: "created_at is invalid: " + err.Error()}
	}

	// a missing flag is treated as true, like the mapping's null_value
	displayOnIndex := true
	if display, ok := source["should_display_on_index"].(bool); ok {
		displayOnIndex = display
	}

	return &Entry{
		UUID:           entryUUID,
		Type:           EntryType(entryType),
		BatchID:        asString(source["batch_id"]),
		FamilyHash:     asString(source["family_hash"]),
		Content:        content,
		Tags:           RawTags(source["tags"]),
		RecordedAt:     recordedAt,
		DisplayOnIndex: displayOnIndex,
		Index:          document.Index,
	}, nil
}

// ToEntryResult decodes a document for reading. sequence is not stored; it
// is the cursor the caller sends back to page further.
func (c *EntryCodec) ToEntryResult(document opensearch.Document, sequence int64) (*EntryResult, error) {
	entry, err := c.ToEntry(document)
	if err != nil {
		return nil, err
	}

	return &EntryResult{
		ID:         entry.UUID,
		Sequence:   sequence,
		BatchID:    entry.BatchID,
		Type:       entry.Type,
		FamilyHash: entry.FamilyHash,
		Content:    entry.Content,
		CreatedAt:  entry.RecordedAt,
		Tags:       entry.Tags,
	}, nil
}

// FormatTags flattens tags into {raw, name, value} triples. "name:value"
// splits on the first colon; a bare tag has a nil value.
func FormatTags(tags []string) []map[string]any {
	formatted := make([]map[string]any, 0, len(tags))

	for _, tag := range tags {
		var value any
		name := tag

		if tagName, tagValue, found := strings.Cut(tag, ":"); found {
			name = tagName
			value = tagValue
		}

		formatted = append(formatted, map[string]any{
			"raw":   tag,
			"name":  name,
			"value": value,
		})
	}

	return formatted
}

// RawTags extracts the raw tag strings from a stored tags field.
func RawTags(value any) []string {
	tags := []string{}

	switch typedValue := value.(type) {
	case []any:
		for _, item := range typedValue {
			if tag, ok := item.(map[string]any); ok {
				if raw := asString(tag["raw"]); raw != "" {
					tags = append(tags, raw)
				}
			}
		}
	case []map[string]any:
		for _, tag := range typedValue {
			if raw := asString(tag["raw"]); raw != "" {
				tags = append(tags, raw)
			}
		}
	}

	return tags
}

func parseCreatedAt(value any) (time.Time, error) {
	createdAt, _ := value.(string)

	parsedTime, err := time.ParseInLocation(createdAtLayout, createdAt, time.UTC)
	if err == nil {
		return parsedTime, nil
	}

	// documents written by other tools may carry ISO timestamps
	if isoTime, isoErr := time.Parse(time.RFC3339Nano, createdAt); isoErr == nil {
		return isoTime.UTC(), nil
	}

	return time.Time{}, err
}

func asString(value any) string {
	typedValue, _ := value.(string)
	return typedValue
}
