package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
)

// LocalStore keeps assets under a directory, one subdirectory per
// collection. URLs point at the server's /assets route.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, publicBaseURL string) (*LocalStore, error) {
	const op = "storage.NewLocalStore"

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Internal(op, err, "Failed to create asset directory")
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Path returns the filesystem path of an asset.
func (s *LocalStore) Path(collection, name string) string {
	return filepath.Join(s.root, collection, name)
}

func (s *LocalStore) url(collection, name string) string {
	return s.baseURL + "/assets/" + objectKey(collection, name)
}

func (s *LocalStore) List(ctx context.Context, collection string) ([]models.Asset, error) {
	const op = "LocalStore.List"

	entries, err := os.ReadDir(filepath.Join(s.root, collection))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list assets")
	}

	var assets []models.Asset
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		assets = append(assets, models.Asset{Name: entry.Name(), URL: s.url(collection, entry.Name())})
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	return assets, nil
}

func (s *LocalStore) Upload(ctx context.Context, collection, name string, body io.Reader, size int64, contentType string) (*models.Asset, error) {
	const op = "LocalStore.Upload"

	if err := ValidateName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, collection)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Internal(op, err, "Failed to create collection")
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to create asset")
	}
	stored := false
	defer func() {
		if !stored {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return nil, errors.Internal(op, err, "Failed to write asset")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Internal(op, err, "Failed to write asset")
	}
	if err := os.Rename(tmp.Name(), s.Path(collection, name)); err != nil {
		return nil, errors.Internal(op, err, "Failed to store asset")
	}
	stored = true

	return &models.Asset{Name: name, URL: s.url(collection, name)}, nil
}

func (s *LocalStore) Remove(ctx context.Context, collection, name string) error {
	const op = "LocalStore.Remove"

	if err := ValidateName(name); err != nil {
		return err
	}

	err := os.Remove(s.Path(collection, name))
	if os.IsNotExist(err) {
		return errors.NotFound(op, err, "Asset not found")
	}
	if err != nil {
		return errors.Internal(op, err, "Failed to remove asset")
	}
	return nil
}

func (s *LocalStore) Open(ctx context.Context, collection, name string) (io.ReadCloser, error) {
	const op = "LocalStore.Open"

	if err := ValidateName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path(collection, name))
	if os.IsNotExist(err) {
		return nil, errors.NotFound(op, err, "Asset not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to open asset")
	}
	return f, nil
}
