package config

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeUndecoded(t *testing.T, doc string) error {
	t.Helper()

	md, err := toml.Decode(doc, DefaultConfig())
	require.NoError(t, err)

	return checkUnknownKeys(&md)
}

func TestCheckUnknownKeys_None(t *testing.T) {
	t.Parallel()

	assert.NoError(t, decodeUndecoded(t, "[device]\nurl = \"ws://a:1/\"\n"))
}

func TestCheckUnknownKeys_SectionTypo(t *testing.T) {
	t.Parallel()

	err := decodeUndecoded(t, "[devise]\nurl = \"ws://a:1/\"\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean [device]")
}

func TestCheckUnknownKeys_FieldTypo(t *testing.T) {
	t.Parallel()

	err := decodeUndecoded(t, "[logging]\nlog_levl = \"debug\"\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "log_level"`)
}

func TestCheckUnknownKeys_NoSuggestion(t *testing.T) {
	t.Parallel()

	err := decodeUndecoded(t, "[sync]\ncompletely_unrelated = 1\n")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestCheckUnknownKeys_TopLevelKey(t *testing.T) {
	t.Parallel()

	err := decodeUndecoded(t, "sync_dir = \"~/x\"\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync_dir")
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 1, levenshtein("root", "roots"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}
