package offsets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointerString(t *testing.T) {
	p := Pointer{Offsets: []uint64{0x0443F650, 0x28}, Final: 0x140}
	assert.Equal(t, "[443F650, 28] + 140", p.String())
}

func TestPointerEqual(t *testing.T) {
	a := Pointer{Offsets: []uint64{0x10, 0x20}, Final: 0x8}
	assert.True(t, a.Equal(Pointer{Offsets: []uint64{0x10, 0x20}, Final: 0x8}))
	assert.False(t, a.Equal(Pointer{Offsets: []uint64{0x10, 0x21}, Final: 0x8}))
	assert.False(t, a.Equal(Pointer{Offsets: []uint64{0x10}, Final: 0x8}))
	assert.False(t, a.Equal(Pointer{Offsets: []uint64{0x10, 0x20}, Final: 0x9}))
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "7.1.0",
		"masterdeck_index": {"offsets": [16], "final_offset": 8},
		"current_bpm": [{"offsets": [24], "final_offset": 0}],
		"sample_position": [{"offsets": [32], "final_offset": 0}],
		"track_info": [{"offsets": [40], "final_offset": 0}],
		"anlz_path": [{"offsets": [48], "final_offset": 0}]
	}`), 0o644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7.1.0", table.Version)
	assert.Equal(t, uint64(16), table.MasterdeckIndex.Offsets[0])
	assert.Equal(t, 1, table.Decks())
}

func TestLoadRejectsEmptyTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "x"}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestDefaultTableCoversFourDecks(t *testing.T) {
	table := Default()
	assert.Equal(t, 4, table.Decks())
	assert.NotEmpty(t, table.MasterdeckIndex.Offsets)
}
