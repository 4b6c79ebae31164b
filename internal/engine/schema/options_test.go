package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOptions(t *testing.T) {
	t.Run("keyed encoding", func(t *testing.T) {
		raw := json.RawMessage(`[{"value": "draft", "label": "Draft"}, {"value": "live", "label": "Live"}]`)
		opts, err := NormalizeOptions(raw)
		require.NoError(t, err)
		assert.Equal(t, []Option{{Value: "draft", Label: "Draft"}, {Value: "live", Label: "Live"}}, opts)
	})

	t.Run("positional encoding discards icon", func(t *testing.T) {
		raw := json.RawMessage(`[["Draft", "draft", "icon-draft"]]`)
		opts, err := NormalizeOptions(raw)
		require.NoError(t, err)
		assert.Equal(t, []Option{{Value: "draft", Label: "Draft"}}, opts)
	})

	t.Run("positional numeric value", func(t *testing.T) {
		raw := json.RawMessage(`[["One", 1]]`)
		opts, err := NormalizeOptions(raw)
		require.NoError(t, err)
		assert.Equal(t, []Option{{Value: "1", Label: "One"}}, opts)
	})

	t.Run("mixed encodings in one list", func(t *testing.T) {
		raw := json.RawMessage(`[{"value": "a", "label": "A"}, ["B", "b"]]`)
		opts, err := NormalizeOptions(raw)
		require.NoError(t, err)
		assert.Equal(t, []Option{{Value: "a", Label: "A"}, {Value: "b", Label: "B"}}, opts)
	})

	t.Run("divider marker", func(t *testing.T) {
		raw := json.RawMessage(`[{"value": "--div--", "label": "Group"}]`)
		opts, err := NormalizeOptions(raw)
		require.NoError(t, err)
		require.Len(t, opts, 1)
		assert.True(t, opts[0].IsDivider())
	})

	t.Run("empty declaration", func(t *testing.T) {
		opts, err := NormalizeOptions(nil)
		require.NoError(t, err)
		assert.Nil(t, opts)
	})

	t.Run("positional without value fails", func(t *testing.T) {
		_, err := NormalizeOptions(json.RawMessage(`[["Only a label"]]`))
		assert.Error(t, err)
	})

	t.Run("non-list declaration fails", func(t *testing.T) {
		_, err := NormalizeOptions(json.RawMessage(`{"value": "a"}`))
		assert.Error(t, err)
	})
}
