package headless

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

type swapchain struct {
	d         *Device
	images    []*image
	acquired  []bool
	extent    driver.Extent2D
	format    driver.Format
	mode      driver.PresentMode
	next      uint32
	retired   bool
	destroyed bool
}

func (d *Device) NewSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	caps, err := d.SurfaceCapabilities()
	if err != nil {
		return nil, err
	}
	if desc.Extent.IsZero() {
		return nil, errors.New("headless: zero sized swapchain")
	}
	if desc.Extent.Width > caps.MaxExtent.Width || desc.Extent.Height > caps.MaxExtent.Height {
		return nil, fmt.Errorf("headless: swapchain extent %dx%d too large", desc.Extent.Width, desc.Extent.Height)
	}
	if desc.ImageCount < caps.MinImageCount || (caps.MaxImageCount > 0 && desc.ImageCount > caps.MaxImageCount) {
		return nil, fmt.Errorf("headless: %d swapchain images outside [%d, %d]", desc.ImageCount, caps.MinImageCount, caps.MaxImageCount)
	}
	if desc.Old != nil {
		old, ok := desc.Old.(*swapchain)
		if !ok || old.destroyed {
			return nil, errors.New("headless: invalid old swapchain")
		}
		old.retired = true
	}

	sc := &swapchain{
		d:        d,
		images:   make([]*image, desc.ImageCount),
		acquired: make([]bool, desc.ImageCount),
		extent:   desc.Extent,
		format:   desc.Format,
		mode:     desc.PresentMode,
	}
	for i := range sc.images {
		sc.images[i] = &image{d: d, extent: desc.Extent, format: desc.Format, swapchain: true}
	}
	d.created("swapchain")
	d.swapchainsCreated++
	return sc, nil
}

func (s *swapchain) Images() []driver.Image {
	out := make([]driver.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out
}

func (s *swapchain) Extent() driver.Extent2D         { return s.extent }
func (s *swapchain) Format() driver.Format           { return s.format }
func (s *swapchain) PresentMode() driver.PresentMode { return s.mode }

func (s *swapchain) stale() bool {
	w, h := s.d.surface.FramebufferSize()
	return s.retired || w != s.extent.Width || h != s.extent.Height
}

func (s *swapchain) AcquireNextImage(timeout time.Duration, sem driver.Semaphore) (uint32, bool, error) {
	if s.destroyed {
		return 0, false, errors.New("headless: acquire on destroyed swapchain")
	}
	if s.d.acquireOutOfDate > 0 {
		s.d.acquireOutOfDate--
		return 0, false, driver.ErrOutOfDate
	}
	if s.stale() {
		return 0, false, driver.ErrOutOfDate
	}
	hs, ok := sem.(*semaphore)
	if !ok {
		return 0, false, errors.New("headless: foreign semaphore")
	}

	n := uint32(len(s.images))
	idx := s.next
	for i := uint32(0); s.acquired[idx]; i++ {
		if i == n {
			return 0, false, driver.ErrTimeout
		}
		idx = (idx + 1) % n
	}
	if err := s.d.waitAndSignal("acquire", nil, []*semaphore{hs}); err != nil {
		return 0, false, err
	}
	s.acquired[idx] = true
	s.next = (idx + 1) % n
	return idx, false, nil
}

func (s *swapchain) Destroy() {
	s.d.release("swapchain", &s.destroyed)
}

// Present consumes the wait semaphores and releases the image even when it
// reports the swapchain out of date.
func (d *Device) Present(info driver.PresentInfo) (bool, error) {
	sc, ok := info.Swapchain.(*swapchain)
	if !ok {
		return false, errors.New("headless: foreign swapchain")
	}
	if sc.destroyed {
		return false, errors.New("headless: present on destroyed swapchain")
	}
	if int(info.ImageIndex) >= len(sc.images) || !sc.acquired[info.ImageIndex] {
		return false, d.protocolError("present of image %d which was not acquired", info.ImageIndex)
	}
	wait, err := semaphores(info.Wait)
	if err != nil {
		return false, err
	}
	if err := d.waitAndSignal("present", wait, nil); err != nil {
		return false, err
	}
	sc.acquired[info.ImageIndex] = false

	if d.presentOutOfDate > 0 {
		d.presentOutOfDate--
		return false, driver.ErrOutOfDate
	}
	if sc.stale() {
		return false, driver.ErrOutOfDate
	}
	return false, nil
}
