package assets

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineAssetType(t *testing.T) {
	assert.Equal(t, loaders.ResourceTypeImage, DetermineAssetType("a/b.PNG"))
	assert.Equal(t, loaders.ResourceTypeShader, DetermineAssetType("quad.wgsl"))
	assert.Equal(t, loaders.ResourceTypeBitmapFont, DetermineAssetType("font.fnt"))
	assert.Equal(t, loaders.ResourceTypeNone, DetermineAssetType("font.json"))
}

func TestLoadAssetRecordsInfo(t *testing.T) {
	am, err := NewAssetManager(log.New(os.Stderr))
	require.NoError(t, err)
	defer am.Close()

	p := filepath.Join(t.TempDir(), "shader.wgsl")
	require.NoError(t, os.WriteFile(p, []byte("// empty"), 0o644))

	res, err := am.LoadAsset(p, loaders.ResourceTypeNone)
	require.NoError(t, err)
	assert.Equal(t, []byte("// empty"), res.Data)

	info, ok := am.Info(p)
	require.True(t, ok)
	assert.Equal(t, loaders.ResourceTypeShader, info.Type)

	_, err = am.LoadAsset(filepath.Join(t.TempDir(), "x.unknown"), loaders.ResourceTypeNone)
	assert.Error(t, err)
}

func TestWatchFiresOnWrite(t *testing.T) {
	am, err := NewAssetManager(log.New(os.Stderr))
	require.NoError(t, err)
	defer am.Close()

	p := filepath.Join(t.TempDir(), "tex.png")
	require.NoError(t, os.WriteFile(p, []byte("v1"), 0o644))

	var hits atomic.Int32
	id, err := am.Watch(p, func(string) { hits.Add(1) })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("v2"), 0o644))
	require.Eventually(t, func() bool { return hits.Load() > 0 }, 5*time.Second, 10*time.Millisecond)

	am.Unwatch(id)
	require.NoError(t, am.Close())
	_, err = am.Watch(p, func(string) {})
	assert.ErrorIs(t, err, ErrClosed)
}
