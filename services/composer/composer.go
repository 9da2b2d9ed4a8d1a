// Package composer downloads source clips and joins them with a hook.
package composer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/scripts"
	"github.com/nijaru/reelflow/storage"
	"github.com/sirupsen/logrus"
)

const downloadFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// HookTexter writes the overlay line used when no hook clip is available.
type HookTexter interface {
	HookText(ctx context.Context, caption string) string
}

// MediaComposer fetches source media and produces the publish-ready file.
type MediaComposer interface {
	Download(ctx context.Context, sourceURL string) (string, error)
	Compose(ctx context.Context, req Request) (*Result, error)
}

type Request struct {
	VideoID  string
	RawPath  string
	Caption  string
	Settings models.Settings
}

type Result struct {
	Path      string
	Mode      models.HookMode
	HookAsset string
	HookText  string
	Width     int
	Height    int
}

type Composer struct {
	runner       scripts.Runner
	assets       storage.AssetStore
	texter       HookTexter
	httpClient   *http.Client
	cfg          config.ComposerConfig
	collection   string
	rawDir       string
	processedDir string
	pick         func(n int) int
	logger       *logrus.Logger
}

func New(
	runner scripts.Runner,
	assets storage.AssetStore,
	texter HookTexter,
	cfg *config.Config,
	logger *logrus.Logger,
) *Composer {
	return &Composer{
		runner:       runner,
		assets:       assets,
		texter:       texter,
		httpClient:   &http.Client{Timeout: cfg.Composer.DownloadTimeout},
		cfg:          cfg.Composer,
		collection:   cfg.Assets.Collection,
		rawDir:       filepath.Join(cfg.StagingDir, "raw"),
		processedDir: filepath.Join(cfg.StagingDir, "processed"),
		pick:         rand.IntN,
		logger:       logger,
	}
}

// Download fetches the source clip into the raw staging directory under a
// fresh random name and returns its path.
func (c *Composer) Download(ctx context.Context, sourceURL string) (string, error) {
	const op = "Composer.Download"
	logger := c.logger.WithField("url", sourceURL)

	if c.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DownloadTimeout)
		defer cancel()
	}

	id := uuid.New().String()
	template := filepath.Join(c.rawDir, id+".%(ext)s")

	out, err := c.runner.Run(ctx, c.cfg.DownloaderPath,
		"-f", downloadFormat,
		"-o", template,
		"--no-playlist",
		"--no-progress",
		"--print", "after_move:filepath",
		sourceURL,
	)
	if err != nil {
		return "", errors.Download(op, err, "source download failed")
	}

	path := lastLine(string(out))
	if path == "" {
		matches, _ := filepath.Glob(filepath.Join(c.rawDir, id+".*"))
		if len(matches) == 0 {
			return "", errors.Download(op, nil, "downloader produced no file")
		}
		path = matches[0]
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.Download(op, err, "downloaded file missing")
	}

	logger.WithField("path", path).Info("Downloaded source clip")
	return path, nil
}

// Compose prepends a hook clip scaled and cropped to the raw geometry, or
// overlays hook text when no clip is available. Temporary hook files are
// removed on every path; a failed composition also removes its output.
func (c *Composer) Compose(ctx context.Context, req Request) (result *Result, err error) {
	const op = "Composer.Compose"
	logger := c.logger.WithField("video_id", req.VideoID)

	if c.cfg.ComposeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ComposeTimeout)
		defer cancel()
	}

	output := filepath.Join(c.processedDir, req.VideoID+".mp4")
	var temps []string
	defer func() {
		for _, path := range temps {
			removeFile(logger, path, "temporary file")
		}
		if err != nil {
			removeFile(logger, output, "partial output")
		}
	}()

	raw, err := c.probe(ctx, req.RawPath)
	if err != nil {
		return nil, errors.Composition(op, err, "probe source")
	}

	result = &Result{Path: output, Width: raw.Width, Height: raw.Height}

	hook, err := c.resolveHook(ctx, req.Settings)
	if err != nil {
		logger.WithError(err).Warn("Hook clip unavailable, using text overlay")
		hook = nil
	}

	var args []string
	if hook != nil {
		temps = append(temps, hook.path)
		hookInfo, probeErr := c.probe(ctx, hook.path)
		if probeErr != nil {
			return nil, errors.Composition(op, probeErr, "probe hook")
		}
		args = concatArgs(hook.path, hookInfo, req.RawPath, raw, output)
		result.Mode = hook.mode
		result.HookAsset = hook.ref
	} else {
		result.Mode = models.HookAIText
		result.HookText = c.hookText(ctx, req.Caption)

		textFile := filepath.Join(c.rawDir, "hook_"+uuid.New().String()+".txt")
		temps = append(temps, textFile)
		if writeErr := os.WriteFile(textFile, []byte(result.HookText), 0644); writeErr != nil {
			return nil, errors.Composition(op, writeErr, "write hook text")
		}
		args = overlayArgs(req.RawPath, raw, textFile, output)
	}

	if _, err = c.runner.Run(ctx, c.cfg.FFmpegPath, args...); err != nil {
		return nil, errors.Composition(op, err, "encode")
	}

	composed, err := c.probe(ctx, output)
	if err != nil {
		return nil, errors.Composition(op, err, "probe output")
	}
	if composed.Width != raw.Width || composed.Height != raw.Height {
		err = fmt.Errorf("output is %dx%d, source is %dx%d", composed.Width, composed.Height, raw.Width, raw.Height)
		return nil, errors.Composition(op, err, "geometry mismatch")
	}

	logger.WithFields(logrus.Fields{
		"mode":   result.Mode,
		"output": output,
		"width":  raw.Width,
		"height": raw.Height,
	}).Info("Composed video")
	return result, nil
}

func (c *Composer) hookText(ctx context.Context, caption string) string {
	if c.cfg.HookTextTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HookTextTimeout)
		defer cancel()
	}
	return c.texter.HookText(ctx, caption)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// removeFile deletes a staging file. A file that is already gone is fine.
func removeFile(logger *logrus.Entry, path, what string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).WithField("path", path).Warnf("Failed to remove %s", what)
	}
}
