package explog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndConvert(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "exp.yaml")
	dst := filepath.Join(dir, "exp.csv")

	w, err := Open(src)
	require.NoError(t, err)

	require.NoError(t, w.Append(map[string]any{"stim": 1, "response": 0.42}))
	require.NoError(t, w.Append(map[string]any{"stim": 2, "rt": 0.311}))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	rows, err := YAMLToCSV(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus one row per record")

	// header is the sorted union of keys
	assert.Equal(t, []string{"response", "rt", "stim"}, records[0])

	// records missing a key get an empty cell
	assert.Equal(t, []string{"0.42", "", "1"}, records[1])
	assert.Equal(t, []string{"", "0.311", "2"}, records[2])
}

func TestAppendIsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "log.yaml")

	w, err := Open(src)
	require.NoError(t, err)
	require.NoError(t, w.Append(map[string]any{"a": 1}))
	require.NoError(t, w.Close())

	// reopening must not truncate
	w, err = Open(src)
	require.NoError(t, err)
	require.NoError(t, w.Append(map[string]any{"a": 2}))
	require.NoError(t, w.Close())

	rows, err := YAMLToCSV(src, filepath.Join(dir, "log.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
}

func TestConvertEmptyStream(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(src, nil, 0644))

	rows, err := YAMLToCSV(src, filepath.Join(dir, "empty.csv"))
	require.NoError(t, err)
	assert.Equal(t, 0, rows)
}

func TestConvertMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := YAMLToCSV(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "nope.csv"))
	assert.Error(t, err)
}
