package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundle_Shape(t *testing.T) {
	l := filledLog(t)
	b, err := l.Bundle()
	require.NoError(t, err)

	states := b.Fields["states"].GetListValue().GetValues()
	require.Len(t, states, 2)
	row0 := states[0].GetStructValue().GetFields()
	assert.Equal(t, "fixation", row0["state"].GetStringValue())
	assert.Equal(t, "Infinity", row0["state_end"].GetStringValue())
	assert.Equal(t, 0.5, row0["state_start"].GetNumberValue())

	cont := b.Fields["continuous"].GetListValue().GetValues()
	require.Len(t, cont, 2)
	ev := cont[0].GetStructValue().GetFields()
	assert.Equal(t, 1.0, ev["state_index"].GetNumberValue())
	assert.Equal(t, "words", ev["key_0"].GetStringValue())
	assert.Equal(t, "word1", ev["key_1"].GetStringValue())
}

func TestWriteBundle_RoundTrip(t *testing.T) {
	l := filledLog(t)
	dir := t.TempDir()

	for _, format := range []BundleFormat{FormatBinary, FormatJSON} {
		path := filepath.Join(dir, "bundle."+string(format))
		require.NoError(t, l.WriteBundle(path, format))

		b, err := ReadBundle(path, format)
		require.NoError(t, err)
		assert.Equal(t, l.SessionID(), b.Fields["session_id"].GetStringValue())
		assert.Len(t, b.Fields["states"].GetListValue().GetValues(), 2)
	}
}

func TestParseBundleFormat(t *testing.T) {
	f, err := ParseBundleFormat("pb")
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, f)
	f, err = ParseBundleFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	_, err = ParseBundleFormat("csv")
	assert.Error(t, err)
}
