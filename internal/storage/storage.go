// Package storage keeps the last loaded activity view of each officer on
// disk so it can be shown without a connection.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/Tiliavir/rosterctl/internal/model"
)

// ErrNoSnapshot is returned when nothing was cached for an officer yet.
var ErrNoSnapshot = errors.New("no cached activity")

// snapshotPath returns <base>/cache/<nif>.json.
func snapshotPath(base string, nif int) string {
	return filepath.Join(base, "cache", strconv.Itoa(nif)+".json")
}

// LoadSnapshot reads the cached view of nif. A corrupt file is moved aside
// to <file>.corrupt and reported as an error.
func LoadSnapshot(base string, nif int) (model.OfficerActivityView, error) {
	path := snapshotPath(base, nif)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.OfficerActivityView{}, ErrNoSnapshot
	}
	if err != nil {
		return model.OfficerActivityView{}, fmt.Errorf("storage error reading %s: %w", path, err)
	}

	var view model.OfficerActivityView
	if err := json.Unmarshal(data, &view); err != nil {
		backupPath := path + ".corrupt"
		_ = os.Rename(path, backupPath)
		return model.OfficerActivityView{}, fmt.Errorf("corrupt JSON in %s (backed up to %s): %w", path, backupPath, err)
	}
	if view.OfficerNIF != nif {
		return model.OfficerActivityView{}, fmt.Errorf("snapshot %s belongs to officer %d", path, view.OfficerNIF)
	}
	return view, nil
}

// SaveSnapshot atomically writes view. Views that are not ready are not
// cached.
func SaveSnapshot(base string, view model.OfficerActivityView) error {
	if view.State != model.StateReady {
		return fmt.Errorf("refusing to cache officer %d in state %s", view.OfficerNIF, view.State)
	}
	path := snapshotPath(base, view.OfficerNIF)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}
