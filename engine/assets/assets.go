package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
)

var ErrClosed = errors.New("asset manager already closed")

type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
}

// ChangeFunc is called from the watcher goroutine when a watched file is
// written or recreated. It must not block.
type ChangeFunc func(path string)

type watch struct {
	id       uuid.UUID
	onChange ChangeFunc
}

// AssetManager loads assets through per-type loaders and watches loaded
// files for changes.
type AssetManager struct {
	logger  *log.Logger
	assets  map[string]AssetInfo
	loaders map[loaders.ResourceType]loaders.Loader
	watches map[string][]watch
	dirs    map[string]int

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager(logger *log.Logger) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		logger:   logger.WithPrefix("assets"),
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[loaders.ResourceType]loaders.Loader),
		watches:  make(map[string][]watch),
		dirs:     make(map[string]int),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	// Register loaders
	am.registerLoader(loaders.ResourceTypeImage, &loaders.TextureLoader{})
	am.registerLoader(loaders.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(loaders.ResourceTypeMSDFFont, &loaders.MSDFFontLoader{})
	am.registerLoader(loaders.ResourceTypeBitmapFont, &loaders.BitmapFontLoader{})
	am.registerLoader(loaders.ResourceTypeAtlas, &loaders.AtlasLoader{})

	go am.start()
	return am, nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType loaders.ResourceType, loader loaders.Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset loads path with the loader for resourceType. ResourceTypeNone
// picks the type from the file extension.
func (am *AssetManager) LoadAsset(path string, resourceType loaders.ResourceType) (*loaders.Resource, error) {
	if resourceType == loaders.ResourceTypeNone {
		resourceType = DetermineAssetType(path)
	}
	loader, ok := am.loaders[resourceType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for asset %s (type %s)", path, resourceType)
	}
	res, err := loader.Load(path)
	if err != nil {
		am.logger.Error("failed to load asset", "path", path, "type", resourceType, "err", err)
		return nil, err
	}

	am.mutex.Lock()
	am.assets[cleanPath(path)] = AssetInfo{Path: path, Type: resourceType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return res, nil
}

// Watch calls onChange whenever path is modified. Several callbacks may
// watch the same path. The returned id removes the watch with Unwatch.
func (am *AssetManager) Watch(path string, onChange ChangeFunc) (uuid.UUID, error) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return uuid.Nil, ErrClosed
	}

	p := cleanPath(path)
	dir := filepath.Dir(p)
	// Editors often replace files instead of writing them in place, so the
	// directory is watched rather than the file.
	if am.dirs[dir] == 0 {
		if err := am.fsnotify.Add(dir); err != nil {
			return uuid.Nil, err
		}
	}
	am.dirs[dir]++

	w := watch{id: uuid.New(), onChange: onChange}
	am.watches[p] = append(am.watches[p], w)
	return w.id, nil
}

func (am *AssetManager) Unwatch(id uuid.UUID) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	for p, ws := range am.watches {
		for i, w := range ws {
			if w.id != id {
				continue
			}
			am.watches[p] = append(ws[:i], ws[i+1:]...)
			if len(am.watches[p]) == 0 {
				delete(am.watches, p)
			}
			dir := filepath.Dir(p)
			am.dirs[dir]--
			if am.dirs[dir] == 0 {
				delete(am.dirs, dir)
				if !am.isClosed {
					_ = am.fsnotify.Remove(dir)
				}
			}
			return
		}
	}
}

func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[cleanPath(path)]
	return info, ok
}

// Close stops the watcher goroutine and waits for it to exit.
func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			am.logger.Error("watcher error", "err", err)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	p := cleanPath(path)

	am.mutex.Lock()
	ws := append([]watch(nil), am.watches[p]...)
	if info, ok := am.assets[p]; ok {
		info.LastLoaded = time.Time{}
		am.assets[p] = info
	}
	am.mutex.Unlock()

	if len(ws) == 0 {
		return
	}
	if s, err := os.Stat(p); err != nil || s.IsDir() {
		return
	}
	am.logger.Debug("asset changed", "path", p)
	for _, w := range ws {
		w.onChange(p)
	}
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func DetermineAssetType(path string) loaders.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return loaders.ResourceTypeImage
	case ".spv", ".wgsl":
		return loaders.ResourceTypeShader
	case ".fnt":
		return loaders.ResourceTypeBitmapFont
	default:
		return loaders.ResourceTypeNone
	}
}
