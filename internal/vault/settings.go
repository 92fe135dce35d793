package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/storage"
)

const settingsFileName = "config.json"

// LoadSettings reads the vault's configuration file from the reserved
// hidden directory under its root. A missing file yields the defaults;
// present files are merged over the defaults so records written by older
// versions pick up new keys, and unknown keys are ignored.
func LoadSettings(rootPath string) (models.Settings, error) {
	settings := models.DefaultSettings()
	path := filepath.Join(rootPath, ConfigDirName, settingsFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("vault: read settings: %w", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.DefaultSettings(), fmt.Errorf("vault: parse settings: %w", err)
	}
	return settings, nil
}

// SaveSettings writes the configuration file wholesale, creating the
// reserved directory on demand.
func SaveSettings(rootPath string, settings models.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal settings: %w", err)
	}
	path := filepath.Join(rootPath, ConfigDirName, settingsFileName)
	if err := storage.WriteAtomic(path, data); err != nil {
		return fmt.Errorf("vault: write settings: %w", err)
	}
	return nil
}
