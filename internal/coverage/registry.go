package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

// Store persists the coverage registry under <stateDir>/coverage/.
type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(stateDir string, logger *zap.Logger) *Store {
	return &Store{dir: filepath.Join(stateDir, "coverage"), logger: logger}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, "registry.json")
}

// Load reads the registry, returning a fresh one when none exists yet. A
// corrupt registry file is an error, not silently discarded state.
func (s *Store) Load(targetURL string) (*domain.CoverageRegistry, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewCoverageRegistry(targetURL), nil
		}
		return nil, fmt.Errorf("reading coverage registry: %w", err)
	}

	var registry domain.CoverageRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parsing coverage registry: %w", err)
	}
	if registry.TargetURL != "" && registry.TargetURL != targetURL {
		s.logger.Warn("coverage registry belongs to a different target",
			zap.String("registry_target", registry.TargetURL),
			zap.String("current_target", targetURL))
	}
	return &registry, nil
}

// Save writes the registry atomically: a temp file in the same directory is
// renamed over the previous one, so a crash never leaves a truncated registry.
func (s *Store) Save(registry *domain.CoverageRegistry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating coverage dir: %w", err)
	}

	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding coverage registry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "registry-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp registry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp registry: %w", err)
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing coverage registry: %w", err)
	}
	return nil
}

// Reset removes the persisted registry.
func (s *Store) Reset() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing coverage registry: %w", err)
	}
	return nil
}
