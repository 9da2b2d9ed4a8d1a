package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/repository"
	"github.com/nijaru/reelflow/services/settings"
	"github.com/nijaru/reelflow/storage"
	"github.com/nijaru/reelflow/validation"
	"github.com/sirupsen/logrus"
)

// multipartMemory is the part of an upload kept in memory; the rest spills
// to temporary files.
const multipartMemory = 32 << 20

type SettingsHandler struct {
	settings  settings.Store
	assets    storage.AssetStore
	accounts  repository.AccountRepository
	validator *validation.Validator
	cfg       *config.Config
	logger    *logrus.Logger
}

func NewSettingsHandler(
	store settings.Store,
	assets storage.AssetStore,
	accounts repository.AccountRepository,
	validator *validation.Validator,
	cfg *config.Config,
	logger *logrus.Logger,
) *SettingsHandler {
	return &SettingsHandler{
		settings:  store,
		assets:    assets,
		accounts:  accounts,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
	}
}

// HandleGetSettings handles GET /api/settings
func (h *SettingsHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, s)
}

// HandleUpdateSettings handles POST /api/settings
func (h *SettingsHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s models.Settings
	if err := readJSON(w, r, &s); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(s); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.settings.Set(r.Context(), s); err != nil {
		respondError(w, r, err)
		return
	}

	saved, err := h.settings.Get(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"hook_mode":          saved.HookMode,
		"publish_time_start": saved.PublishTimeStart,
		"publish_time_end":   saved.PublishTimeEnd,
	}).Info("Settings updated")
	respondJSON(w, r, http.StatusOK, saved)
}

// HandleListHooks handles GET /api/settings/hooks
func (h *SettingsHandler) HandleListHooks(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assets.List(r.Context(), h.cfg.Assets.Collection)
	if err != nil {
		respondError(w, r, err)
		return
	}

	hooks := make([]models.Asset, 0, len(assets))
	for _, a := range assets {
		if strings.HasSuffix(strings.ToLower(a.Name), ".mp4") {
			hooks = append(hooks, a)
		}
	}
	respondJSON(w, r, http.StatusOK, hooks)
}

// HandleUploadHook handles POST /api/settings/hooks
func (h *SettingsHandler) HandleUploadHook(w http.ResponseWriter, r *http.Request) {
	const op = "SettingsHandler.HandleUploadHook"

	if max := h.cfg.Assets.MaxUploadSize; max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max+multipartMemory/32)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, err)
			return
		}
		respondError(w, r, errors.InvalidInput(op, err, "Expected a multipart upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "file is required"))
		return
	}
	defer file.Close()

	if err := h.validator.ValidateHookUpload(header.Filename, header.Size); err != nil {
		respondError(w, r, err)
		return
	}

	name := "hook_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8] + ".mp4"
	asset, err := h.assets.Upload(r.Context(), h.cfg.Assets.Collection, name, file, header.Size, "video/mp4")
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"name":     asset.Name,
		"original": header.Filename,
		"size":     header.Size,
	}).Info("Hook clip uploaded")
	respondJSON(w, r, http.StatusCreated, asset)
}

// HandleDeleteHook handles DELETE /api/settings/hooks/{name}. A deleted
// hook that was selected is deselected.
func (h *SettingsHandler) HandleDeleteHook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := storage.ValidateName(name); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.assets.Remove(r.Context(), h.cfg.Assets.Collection, name); err != nil {
		respondError(w, r, err)
		return
	}

	s, err := h.settings.Get(r.Context())
	if err == nil && s.SelectedHookURL != "" && lastSegment(s.SelectedHookURL) == name {
		s.SelectedHookURL = ""
		if err := h.settings.Set(r.Context(), s); err != nil {
			h.logger.WithError(err).Warn("Failed to deselect deleted hook")
		}
	}

	respondJSON(w, r, http.StatusOK, map[string]string{"deleted": name})
}

// HandleListAccounts handles GET /api/settings/accounts
func (h *SettingsHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListSourceAccounts(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []*models.SourceAccount{}
	}
	respondJSON(w, r, http.StatusOK, accounts)
}

// HandleAddAccount handles POST /api/settings/accounts
func (h *SettingsHandler) HandleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req models.AccountRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(w, r, err)
		return
	}

	account := &models.SourceAccount{
		ID:     uuid.New().String(),
		Handle: req.Handle,
	}
	if err := h.accounts.AddSourceAccount(r.Context(), account, h.cfg.Pipeline.MaxSourceAccounts); err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.WithField("handle", account.Handle).Info("Source account added")
	respondJSON(w, r, http.StatusCreated, account)
}

// HandleDeleteAccount handles DELETE /api/settings/accounts/{handle}
func (h *SettingsHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	if err := h.accounts.DeleteSourceAccount(r.Context(), handle); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"deleted": handle})
}

func lastSegment(ref string) string {
	ref = strings.TrimRight(ref, "/")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
