package composer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
)

type hookFile struct {
	path string
	mode models.HookMode
	ref  string
}

// resolveHook picks the hook clip for the configured mode and copies it
// into staging. It returns nil when the text overlay should be used.
func (c *Composer) resolveHook(ctx context.Context, settings models.Settings) (*hookFile, error) {
	var ref string
	mode := settings.HookMode

	switch mode {
	case models.HookSingleVideo:
		ref = strings.TrimSpace(settings.SelectedHookURL)
	case models.HookRandomVideo:
		name, err := c.randomAsset(ctx)
		if err != nil {
			return nil, err
		}
		ref = name
	}
	if ref == "" {
		return nil, nil
	}

	dst := filepath.Join(c.rawDir, "hook_"+uuid.New().String()+".mp4")
	if err := c.fetchHook(ctx, ref, dst); err != nil {
		removeFile(c.logger.WithField("hook", ref), dst, "hook download")
		return nil, err
	}
	return &hookFile{path: dst, mode: mode, ref: ref}, nil
}

func (c *Composer) randomAsset(ctx context.Context) (string, error) {
	assets, err := c.assets.List(ctx, c.collection)
	if err != nil {
		return "", err
	}

	var clips []string
	for _, asset := range assets {
		if strings.HasSuffix(strings.ToLower(asset.Name), ".mp4") {
			clips = append(clips, asset.Name)
		}
	}
	if len(clips) == 0 {
		return "", nil
	}
	return clips[c.pick(len(clips))], nil
}

// fetchHook copies ref into dst. ref is an asset name or a URL; URLs whose
// last segment names an asset in the collection are read from the store.
func (c *Composer) fetchHook(ctx context.Context, ref, dst string) error {
	name := ref
	u, parseErr := url.Parse(ref)
	isURL := parseErr == nil && (u.Scheme == "http" || u.Scheme == "https")
	if isURL {
		name = path.Base(u.Path)
	}

	body, err := c.assets.Open(ctx, c.collection, name)
	if err != nil {
		if !isURL {
			return err
		}
		body, err = c.httpGet(ctx, ref)
		if err != nil {
			return err
		}
	}
	defer body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Composer) httpGet(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	const op = "Composer.httpGet"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Download(op, err, "hook download failed")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Download(op, nil, fmt.Sprintf("hook download returned %d", resp.StatusCode))
	}
	return resp.Body, nil
}
