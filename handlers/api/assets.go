package api

import (
	"io"
	"net/http"
	"time"

	"github.com/nijaru/reelflow/storage"
)

// AssetHandler serves assets from the local store. Remote stores hand out
// their own public URLs.
type AssetHandler struct {
	assets storage.AssetStore
}

func NewAssetHandler(assets storage.AssetStore) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// HandleGetAsset handles GET /assets/{collection}/{name}
func (h *AssetHandler) HandleGetAsset(w http.ResponseWriter, r *http.Request) {
	collection, name := r.PathValue("collection"), r.PathValue("name")
	if err := storage.ValidateName(collection); err != nil {
		respondError(w, r, err)
		return
	}

	rc, err := h.assets.Open(r.Context(), collection, name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "video/mp4")
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, time.Time{}, rs)
		return
	}
	io.Copy(w, rc)
}
