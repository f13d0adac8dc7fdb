package entries_core

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEntryNotFound = errors.New("entry not found")

// DecodeError is returned when a stored document cannot be turned back into
// an entry. Listings drop such documents instead of failing.
type DecodeError struct {
	DocumentID string
	Reason     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode document %s: %s", e.DocumentID, e.Reason)
}

// BulkWriteError aggregates the items of a bulk write the index rejected.
// Items that are not listed were written.
type BulkWriteError struct {
	Failed []WriteItem
	Total  int
}

func (e *BulkWriteError) Error() string {
	reasons := make([]string, 0, min(len(e.Failed), 5))
	for _, item := range e.Failed[:min(len(e.Failed), 5)] {
		reasons = append(reasons, fmt.Sprintf("%s: %s", item.UUID, item.Error))
	}

	return fmt.Sprintf(
		"bulk write rejected %d of %d documents (%s)",
		len(e.Failed),
		e.Total,
		strings.Join(reasons, "; "),
	)
}
