// Package settings persists the user-editable pipeline preferences.
package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Store interface {
	Get(ctx context.Context) (models.Settings, error)
	Set(ctx context.Context, settings models.Settings) error
}

// FileStore keeps settings in a YAML file. Keys missing from the file take
// their default values.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	logger *logrus.Logger
}

func NewFileStore(path string, logger *logrus.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Get(ctx context.Context) (models.Settings, error) {
	const op = "FileStore.Get"

	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := models.DefaultSettings()
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, errors.Internal(op, err, "Failed to read settings")
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Invalid settings file, using defaults")
		return models.DefaultSettings(), nil
	}
	return settings, nil
}

func (s *FileStore) Set(ctx context.Context, settings models.Settings) error {
	const op = "FileStore.Set"

	defaults := models.DefaultSettings()
	if settings.HookMode == "" {
		settings.HookMode = defaults.HookMode
	}
	if settings.PublishTimeStart == "" {
		settings.PublishTimeStart = defaults.PublishTimeStart
	}
	if settings.PublishTimeEnd == "" {
		settings.PublishTimeEnd = defaults.PublishTimeEnd
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode settings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Internal(op, err, "Failed to create settings directory")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Internal(op, err, "Failed to write settings")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.WithError(rmErr).WithField("path", tmp).Warn("Failed to remove temporary settings file")
		}
		return errors.Internal(op, err, "Failed to save settings")
	}

	s.logger.WithField("hook_mode", settings.HookMode).Info("Settings updated")
	return nil
}
