package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/sranges/pkg/persist"
)

// MetadataVersion is the current checkpoint metadata format version.
const MetadataVersion = 1

// Sentinel errors for checkpoint validation.
var (
	ErrLabelMismatch      = errors.New("taxon label mismatch")
	ErrChainCountMismatch = errors.New("chain count mismatch")
)

// DefaultDir returns the default checkpoint directory (~/.sranges/checkpoints).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".sranges", "checkpoints")
}

// LabelHash identifies a tree by its tip labels in id order.
func LabelHash(labels []string) string {
	h := sha256.Sum256([]byte(strings.Join(labels, "\x00")))

	return hex.EncodeToString(h[:8])
}

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Manager stores one state file per chain under BaseDir/LabelHash.
type Manager struct {
	BaseDir   string
	LabelHash string

	persister *persist.Persister[ChainState]
}

// NewManager creates a checkpoint manager writing chain states with codec.
func NewManager(baseDir, labelHash string, codec persist.Codec) *Manager {
	return &Manager{
		BaseDir:   baseDir,
		LabelHash: labelHash,
		persister: persist.NewPersister[ChainState]("state", codec),
	}
}

// CheckpointDir returns the directory for this tree's checkpoint.
func (m *Manager) CheckpointDir() string {
	return filepath.Join(m.BaseDir, m.LabelHash)
}

// MetadataPath returns the path to the metadata file.
func (m *Manager) MetadataPath() string {
	return filepath.Join(m.CheckpointDir(), "checkpoint.json")
}

func (m *Manager) chainDir(chain int) string {
	return filepath.Join(m.CheckpointDir(), fmt.Sprintf("chain_%d", chain))
}

// Exists reports whether checkpoint metadata is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.MetadataPath())

	return err == nil
}

// Clear removes the checkpoint.
func (m *Manager) Clear() error {
	err := os.RemoveAll(m.CheckpointDir())
	if err != nil {
		return fmt.Errorf("remove checkpoint dir: %w", err)
	}

	return nil
}

// Init writes fresh metadata for a run of the given number of chains.
func (m *Manager) Init(chains int, seed int64) error {
	err := os.MkdirAll(m.CheckpointDir(), dirPerm)
	if err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	meta := Metadata{
		Version:   MetadataVersion,
		LabelHash: m.LabelHash,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Chains:    chains,
		Seed:      seed,
		Format:    m.persister.Codec().Extension(),
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = os.WriteFile(m.MetadataPath(), data, filePerm)
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	return nil
}

// LoadMetadata loads the checkpoint metadata.
func (m *Manager) LoadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(m.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata

	err = json.Unmarshal(data, &meta)
	if err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// Validate checks that the checkpoint was written for the same tree and chain count.
func (m *Manager) Validate(labelHash string, chains int) error {
	meta, err := m.LoadMetadata()
	if err != nil {
		return err
	}

	if meta.LabelHash != labelHash {
		return fmt.Errorf("%w: checkpoint has %s, got %s", ErrLabelMismatch, meta.LabelHash, labelHash)
	}

	if meta.Chains != chains {
		return fmt.Errorf("%w: checkpoint has %d, got %d", ErrChainCountMismatch, meta.Chains, chains)
	}

	return nil
}

// SaveChain writes the state of one chain. Chains write to separate directories, so different
// chains may save concurrently.
func (m *Manager) SaveChain(chain int, state *ChainState) error {
	dir := m.chainDir(chain)

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create chain dir: %w", err)
	}

	err = m.persister.Save(dir, state)
	if err != nil {
		return fmt.Errorf("save chain %d: %w", chain, err)
	}

	return nil
}

// LoadChain reads the state of one chain.
func (m *Manager) LoadChain(chain int) (*ChainState, error) {
	state, err := m.persister.Load(m.chainDir(chain))
	if err != nil {
		return nil, fmt.Errorf("load chain %d: %w", chain, err)
	}

	return state, nil
}
