package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// waitFence waits with a bounded timeout. A timeout means the device hung,
// which nothing above the renderer can fix.
func waitFence(f driver.Fence, timeout time.Duration, op string, logger *log.Logger) error {
	err := f.Wait(timeout)
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrTimeout) {
		logger.Error("fence wait timed out", "op", op, "timeout", timeout)
		return core.Fatal(op, fmt.Errorf("%w after %s", core.ErrFenceTimeout, timeout))
	}
	return core.Fatal(op, err)
}

// Queue owns the per-frame semaphore pairs and fences and drives
// acquire, submit and present. At most maxFrames submissions are in flight
// because a slot's fence is waited on before the slot is reused.
type Queue struct {
	device    driver.Device
	swapchain *Swapchain
	logger    *log.Logger
	timeout   time.Duration
	maxFrames int
	frame     int

	imageAvailable []driver.Semaphore
	renderComplete []driver.Semaphore
	inFlight       []driver.Fence
}

func NewQueue(device driver.Device, swapchain *Swapchain, maxFrames int, timeout time.Duration, logger *log.Logger) (*Queue, error) {
	q := &Queue{
		device:    device,
		swapchain: swapchain,
		logger:    logger,
		timeout:   timeout,
		maxFrames: maxFrames,
	}
	for i := 0; i < maxFrames; i++ {
		available, err := device.NewSemaphore()
		if err != nil {
			q.Destroy()
			return nil, core.Fatal("create semaphore", err)
		}
		q.imageAvailable = append(q.imageAvailable, available)

		complete, err := device.NewSemaphore()
		if err != nil {
			q.Destroy()
			return nil, core.Fatal("create semaphore", err)
		}
		q.renderComplete = append(q.renderComplete, complete)

		// Signaled so the first wait on each slot returns immediately.
		fence, err := device.NewFence(true)
		if err != nil {
			q.Destroy()
			return nil, core.Fatal("create fence", err)
		}
		q.inFlight = append(q.inFlight, fence)
	}
	return q, nil
}

func (q *Queue) Frame() int     { return q.frame }
func (q *Queue) MaxFrames() int { return q.maxFrames }

func (q *Queue) Fence(frame int) driver.Fence {
	return q.inFlight[frame]
}

// Advance moves to the next frame slot.
func (q *Queue) Advance() {
	q.frame = (q.frame + 1) % q.maxFrames
}

// WaitForFrame blocks until the GPU has finished the last submission that
// used frame's slot.
func (q *Queue) WaitForFrame(frame int) error {
	return waitFence(q.inFlight[frame], q.timeout, "wait for frame", q.logger)
}

// AcquireNextImage returns the next presentable image and signals the
// frame's image-available semaphore. An out of date chain is invalidated and
// reported as core.ErrSwapchainOutOfDate.
func (q *Queue) AcquireNextImage(frame int) (uint32, error) {
	idx, suboptimal, err := q.swapchain.Handle().AcquireNextImage(q.timeout, q.imageAvailable[frame])
	switch {
	case errors.Is(err, driver.ErrOutOfDate), errors.Is(err, driver.ErrSurfaceLost):
		q.logger.Debug("swapchain out of date on acquire", "err", err)
		q.swapchain.Invalidate()
		return 0, core.ErrSwapchainOutOfDate
	case errors.Is(err, driver.ErrTimeout):
		return 0, core.Fatal("acquire image", fmt.Errorf("%w: %v", core.ErrFenceTimeout, err))
	case err != nil:
		return 0, core.Fatal("acquire image", err)
	}
	if suboptimal {
		// The image is usable; the chain is replaced at the next frame.
		q.logger.Debug("swapchain suboptimal on acquire")
		q.swapchain.Invalidate()
	}
	return idx, nil
}

// Submit resets fence and queues cb to run once the frame's image is
// available. Completion signals the frame's render-complete semaphore and
// the fence.
func (q *Queue) Submit(cb driver.CommandBuffer, frame int, fence driver.Fence) error {
	if fence != nil {
		if err := fence.Reset(); err != nil {
			return core.Fatal("reset fence", err)
		}
	}
	err := q.device.Submit(driver.SubmitInfo{
		CommandBuffers: []driver.CommandBuffer{cb},
		Wait:           []driver.Semaphore{q.imageAvailable[frame]},
		WaitStages:     []driver.PipelineStage{driver.PipelineStageColorAttachmentOutput},
		Signal:         []driver.Semaphore{q.renderComplete[frame]},
	}, fence)
	if err != nil {
		return core.Fatal("submit", err)
	}
	return nil
}

// Present queues imageIndex for display once rendering completes. Out of
// date and suboptimal results invalidate the chain and are reported as
// core.ErrSwapchainOutOfDate.
func (q *Queue) Present(imageIndex uint32, frame int) error {
	suboptimal, err := q.device.Present(driver.PresentInfo{
		Swapchain:  q.swapchain.Handle(),
		ImageIndex: imageIndex,
		Wait:       []driver.Semaphore{q.renderComplete[frame]},
	})
	switch {
	case errors.Is(err, driver.ErrOutOfDate), errors.Is(err, driver.ErrSurfaceLost), err == nil && suboptimal:
		q.logger.Debug("swapchain out of date on present", "suboptimal", suboptimal, "err", err)
		q.swapchain.Invalidate()
		return core.ErrSwapchainOutOfDate
	case err != nil:
		return core.Fatal("present", err)
	}
	return nil
}

func (q *Queue) Destroy() {
	for _, s := range q.imageAvailable {
		s.Destroy()
	}
	for _, s := range q.renderComplete {
		s.Destroy()
	}
	for _, f := range q.inFlight {
		f.Destroy()
	}
	q.imageAvailable, q.renderComplete, q.inFlight = nil, nil, nil
}
