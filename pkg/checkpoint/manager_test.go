package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sranges/pkg/persist"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

const testHash = "abc123"

func sampleChainState(t *testing.T) *ChainState {
	t.Helper()

	tree, err := srtree.Build([]srtree.NodeSpec{
		{Label: "A"}, {Label: "B", Height: 1}, {Height: 1, Children: []int{0, 1}},
	})
	require.NoError(t, err)

	return &ChainState{
		Iteration:  5000,
		LogDensity: -12.5,
		Proposed:   map[string]int64{"wilson-balding": 10},
		Accepted:   map[string]int64{"wilson-balding": 3},
		Tree:       tree.Snapshot(),
	}
}

func TestManager_Paths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, testHash, persist.NewJSONCodec())

	assert.Equal(t, filepath.Join(dir, testHash), m.CheckpointDir())
	assert.Equal(t, filepath.Join(dir, testHash, "checkpoint.json"), m.MetadataPath())
	assert.False(t, m.Exists())
}

func TestManager_InitValidate(t *testing.T) {
	t.Parallel()

	m := NewManager(t.TempDir(), testHash, persist.NewLZ4Codec(persist.NewGobCodec()))

	require.Error(t, m.Validate(testHash, 2))
	require.NoError(t, m.Init(2, 42))
	assert.True(t, m.Exists())

	meta, err := m.LoadMetadata()
	require.NoError(t, err)
	assert.Equal(t, MetadataVersion, meta.Version)
	assert.Equal(t, int64(42), meta.Seed)
	assert.Equal(t, ".gob.lz4", meta.Format)

	require.NoError(t, m.Validate(testHash, 2))
	require.ErrorIs(t, m.Validate("other", 2), ErrLabelMismatch)
	require.ErrorIs(t, m.Validate(testHash, 3), ErrChainCountMismatch)
}

func TestManager_SaveLoadChain(t *testing.T) {
	t.Parallel()

	for _, codec := range []persist.Codec{persist.NewJSONCodec(), persist.NewLZ4Codec(persist.NewGobCodec())} {
		m := NewManager(t.TempDir(), testHash, codec)
		require.NoError(t, m.Init(2, 1))

		want := sampleChainState(t)
		require.NoError(t, m.SaveChain(1, want))

		got, err := m.LoadChain(1)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		_, err = m.LoadChain(0)
		require.Error(t, err)
	}
}

func TestManager_Clear(t *testing.T) {
	t.Parallel()

	m := NewManager(t.TempDir(), testHash, persist.NewJSONCodec())

	require.NoError(t, m.Clear())
	require.NoError(t, m.Init(1, 1))
	require.NoError(t, m.Clear())
	assert.False(t, m.Exists())
}

func TestManager_InitErrorOnMkdir(t *testing.T) {
	t.Parallel()

	file, err := os.CreateTemp(t.TempDir(), "checkpoint-test")
	require.NoError(t, err)
	file.Close()

	m := NewManager(file.Name(), testHash, persist.NewJSONCodec())
	require.Error(t, m.Init(1, 1))
	require.Error(t, m.SaveChain(0, &ChainState{}))
}

func TestLabelHash(t *testing.T) {
	t.Parallel()

	hash := LabelHash([]string{"A", "B"})
	assert.Len(t, hash, 16)
	assert.Equal(t, hash, LabelHash([]string{"A", "B"}))
	assert.NotEqual(t, hash, LabelHash([]string{"B", "A"}))
	assert.NotEqual(t, hash, LabelHash([]string{"AB"}))
}

func TestDefaultDir(t *testing.T) {
	t.Parallel()

	dir := DefaultDir()
	assert.Contains(t, dir, ".sranges")
	assert.Contains(t, dir, "checkpoints")
}
