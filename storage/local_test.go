package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/nijaru/reelflow/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	assets, err := store.List(ctx, "hooks")
	require.NoError(t, err)
	assert.Empty(t, assets)

	asset, err := store.Upload(ctx, "hooks", "hook_b.mp4", strings.NewReader("bbb"), 3, "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/assets/hooks/hook_b.mp4", asset.URL)

	_, err = store.Upload(ctx, "hooks", "hook_a.mp4", strings.NewReader("aaa"), 3, "video/mp4")
	require.NoError(t, err)

	assets, err = store.List(ctx, "hooks")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "hook_a.mp4", assets[0].Name)

	rc, err := store.Open(ctx, "hooks", "hook_b.mp4")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(data))

	require.NoError(t, store.Remove(ctx, "hooks", "hook_b.mp4"))
	assert.True(t, errors.IsNotFound(store.Remove(ctx, "hooks", "hook_b.mp4")))

	_, err = store.Open(ctx, "hooks", "hook_b.mp4")
	assert.True(t, errors.IsNotFound(err))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "hook_1234abcd.mp4", false},
		{"empty", "", true},
		{"traversal", "../secret", true},
		{"nested", "a/b.mp4", true},
		{"hidden", ".upload-1", true},
		{"backslash", `a\b.mp4`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
