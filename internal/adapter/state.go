package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Alias1177/perpbot/models"
)

// SaveState overwrites the persisted StrategyState atomically: the document
// is written to a temp file in the same directory and renamed over the
// target, so a crash mid-write never leaves a torn state file.
func SaveState(path string, state models.StrategyState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling strategy state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing strategy state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// LoadState reads the persisted StrategyState. found is false when no state
// file exists yet and the caller should fall back to configured defaults.
func LoadState(path string) (state models.StrategyState, found bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return models.StrategyState{}, false, nil
	}
	if err != nil {
		return models.StrategyState{}, false, fmt.Errorf("reading state file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return models.StrategyState{}, false, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return state, true, nil
}
