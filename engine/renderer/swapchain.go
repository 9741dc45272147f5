package renderer

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// Swapchain owns the presentable images and the depth attachment that goes
// with them. Its validity flag may be cleared from outside the render loop.
type Swapchain struct {
	device  driver.Device
	buffers *BufferManager
	logger  *log.Logger
	vsync   config.VSync

	handle      driver.Swapchain
	images      []driver.Image
	depth       *Texture
	extent      driver.Extent2D
	format      driver.Format
	presentMode driver.PresentMode

	valid atomic.Bool
}

func NewSwapchain(device driver.Device, buffers *BufferManager, vsync config.VSync, logger *log.Logger) *Swapchain {
	return &Swapchain{
		device:  device,
		buffers: buffers,
		logger:  logger,
		vsync:   vsync,
	}
}

func choosePresentMode(vsync config.VSync, available []driver.PresentMode) driver.PresentMode {
	want := driver.PresentFIFO
	switch vsync {
	case config.VSyncDisabled:
		want = driver.PresentImmediate
	case config.VSyncMailbox:
		want = driver.PresentMailbox
	}
	for _, m := range available {
		if m == want {
			return m
		}
	}
	// FIFO is the only mode every surface has to support.
	return driver.PresentFIFO
}

func chooseImageCount(caps driver.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func chooseFormat(formats []driver.Format) driver.Format {
	for _, f := range formats {
		if f == driver.FormatBGRA8SRGB {
			return f
		}
	}
	if len(formats) == 0 {
		return driver.FormatBGRA8SRGB
	}
	return formats[0]
}

// Create builds the chain for the current surface extent. A zero area
// returns core.ErrSwapchainBooting and creates nothing.
func (s *Swapchain) Create() error {
	return s.create(nil)
}

func (s *Swapchain) create(old driver.Swapchain) error {
	caps, err := s.device.SurfaceCapabilities()
	if err != nil {
		return core.Fatal("query surface capabilities", err)
	}
	extent := caps.CurrentExtent
	if extent.IsZero() {
		s.valid.Store(false)
		return core.ErrSwapchainBooting
	}

	desc := driver.SwapchainDesc{
		ImageCount:  chooseImageCount(caps),
		Format:      chooseFormat(caps.Formats),
		Extent:      extent,
		PresentMode: choosePresentMode(s.vsync, caps.PresentModes),
		Old:         old,
	}
	handle, err := s.device.NewSwapchain(desc)
	if err != nil {
		return core.Fatal("create swapchain", err)
	}
	depth, err := s.buffers.CreateImage("depth", extent.Width, extent.Height, s.device.DepthFormat(), driver.ImageDepthAttachment)
	if err != nil {
		handle.Destroy()
		return err
	}

	s.handle = handle
	s.images = handle.Images()
	s.depth = depth
	s.extent = extent
	s.format = handle.Format()
	s.presentMode = handle.PresentMode()
	s.valid.Store(true)

	s.logger.Info("swapchain created",
		"width", extent.Width,
		"height", extent.Height,
		"images", len(s.images),
		"present_mode", s.presentMode,
	)
	return nil
}

// Recreate replaces the chain after the device has drained. When the
// surface has no area the old chain is kept, the flag stays cleared and
// core.ErrSwapchainBooting is returned.
func (s *Swapchain) Recreate() error {
	caps, err := s.device.SurfaceCapabilities()
	if err != nil {
		return core.Fatal("query surface capabilities", err)
	}
	if caps.CurrentExtent.IsZero() {
		s.valid.Store(false)
		return core.ErrSwapchainBooting
	}
	if err := s.device.WaitIdle(); err != nil {
		return core.Fatal("wait idle", err)
	}

	old := s.handle
	s.buffers.DestroyTexture(s.depth)
	s.depth = nil
	err = s.create(old)
	if old != nil {
		old.Destroy()
	}
	if err != nil {
		s.handle, s.images = nil, nil
	}
	return err
}

// Invalidate marks the chain as unusable until it is recreated.
func (s *Swapchain) Invalidate() {
	s.valid.Store(false)
}

func (s *Swapchain) Valid() bool {
	return s.valid.Load() && s.handle != nil
}

func (s *Swapchain) Handle() driver.Swapchain        { return s.handle }
func (s *Swapchain) Images() []driver.Image          { return s.images }
func (s *Swapchain) ImageCount() int                 { return len(s.images) }
func (s *Swapchain) Depth() *Texture                 { return s.depth }
func (s *Swapchain) Extent() driver.Extent2D         { return s.extent }
func (s *Swapchain) Format() driver.Format           { return s.format }
func (s *Swapchain) PresentMode() driver.PresentMode { return s.presentMode }

func (s *Swapchain) Destroy() {
	if s.depth != nil {
		s.buffers.DestroyTexture(s.depth)
		s.depth = nil
	}
	if s.handle != nil {
		s.handle.Destroy()
		s.handle = nil
	}
	s.images = nil
	s.valid.Store(false)
}
