package entries_core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_NewEntry_WhenNoOptionsGiven_EntryIsDisplayedOnIndex(t *testing.T) {
	entry := NewEntry(EntryTypeRequest, nil)

	assert.True(t, entry.DisplayOnIndex)
	assert.NotEmpty(t, entry.UUID)
	assert.Equal(t, map[string]any{}, entry.Content)
	assert.False(t, entry.RecordedAt.IsZero())

	hidden := NewEntry(EntryTypeRequest, nil, WithDisplayOnIndex(false))
	assert.False(t, hidden.DisplayOnIndex)
}

func Test_NewEntry_WhenContentGiven_CopiesContent(t *testing.T) {
	content := map[string]any{"uri": "/users"}

	entry := NewEntry(EntryTypeRequest, content)
	entry.Content["uri"] = "/changed"

	assert.Equal(t, "/users", content["uri"])
}
