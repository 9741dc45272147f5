package headless

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

type fence struct {
	d         *Device
	signaled  bool
	pending   *submission
	destroyed bool
}

func (d *Device) NewFence(signaled bool) (driver.Fence, error) {
	d.created("fence")
	return &fence{d: d, signaled: signaled}, nil
}

// Wait executes queued work up to and including the submission that
// signals f. A fence that was never submitted would block forever, so it
// reports driver.ErrTimeout.
func (f *fence) Wait(timeout time.Duration) error {
	if f.destroyed {
		return errors.New("headless: wait on destroyed fence")
	}
	if f.signaled {
		return nil
	}
	if f.pending == nil {
		return driver.ErrTimeout
	}
	f.d.executeThrough(f.pending)
	return nil
}

func (f *fence) Reset() error {
	if f.pending != nil {
		f.d.errorf("fence reset while in use by the device")
		return errors.New("headless: fence in use")
	}
	f.signaled = false
	return nil
}

func (f *fence) Signaled() (bool, error) {
	return f.signaled, nil
}

func (f *fence) Destroy() {
	if f.pending != nil {
		f.d.errorf("fence destroyed while in use by the device")
	}
	f.d.release("fence", &f.destroyed)
}

type semaphore struct {
	d         *Device
	signaled  bool
	destroyed bool
}

func (d *Device) NewSemaphore() (driver.Semaphore, error) {
	d.created("semaphore")
	return &semaphore{d: d}, nil
}

func (s *semaphore) Destroy() {
	s.d.release("semaphore", &s.destroyed)
}

type submission struct {
	cbs   []*commandBuffer
	fence *fence
}

// protocolError records a synchronization mistake and returns it.
func (d *Device) protocolError(format string, args ...interface{}) error {
	err := fmt.Errorf("headless: "+format, args...)
	d.errs = append(d.errs, err)
	return err
}

func semaphores(in []driver.Semaphore) ([]*semaphore, error) {
	out := make([]*semaphore, len(in))
	for i, s := range in {
		hs, ok := s.(*semaphore)
		if !ok {
			return nil, errors.New("headless: foreign semaphore")
		}
		out[i] = hs
	}
	return out, nil
}

// waitAndSignal consumes the wait semaphores and signals the others. It
// validates everything before changing any state.
func (d *Device) waitAndSignal(op string, wait, signal []*semaphore) error {
	for i, s := range wait {
		if !s.signaled {
			return d.protocolError("%s waits on unsignaled semaphore %d", op, i)
		}
	}
	for i, s := range signal {
		if s.signaled {
			return d.protocolError("%s signals semaphore %d which is already signaled", op, i)
		}
	}
	for _, s := range wait {
		s.signaled = false
	}
	for _, s := range signal {
		s.signaled = true
	}
	return nil
}

func (d *Device) Submit(info driver.SubmitInfo, f driver.Fence) error {
	cbs := make([]*commandBuffer, len(info.CommandBuffers))
	for i, c := range info.CommandBuffers {
		hc, ok := c.(*commandBuffer)
		if !ok {
			return errors.New("headless: foreign command buffer")
		}
		if hc.state != commandExecutable {
			return d.protocolError("submitted command buffer %d is not executable", i)
		}
		cbs[i] = hc
	}
	var hf *fence
	if f != nil {
		var ok bool
		if hf, ok = f.(*fence); !ok {
			return errors.New("headless: foreign fence")
		}
		if hf.signaled || hf.pending != nil {
			return d.protocolError("submit with a fence that is signaled or in use")
		}
	}
	if len(info.WaitStages) != len(info.Wait) {
		return fmt.Errorf("headless: %d wait semaphores with %d stages", len(info.Wait), len(info.WaitStages))
	}
	wait, err := semaphores(info.Wait)
	if err != nil {
		return err
	}
	signal, err := semaphores(info.Signal)
	if err != nil {
		return err
	}
	if err := d.waitAndSignal("submit", wait, signal); err != nil {
		return err
	}

	sub := &submission{cbs: cbs, fence: hf}
	for _, c := range cbs {
		c.state = commandPending
	}
	if hf != nil {
		hf.pending = sub
	}
	d.pending = append(d.pending, sub)
	d.submissions++
	if len(d.pending) > d.maxPending {
		d.maxPending = len(d.pending)
	}
	return nil
}

func (d *Device) executeThrough(sub *submission) {
	for i, s := range d.pending {
		if s == sub {
			d.execute(i + 1)
			return
		}
	}
}

// execute runs the first n queued submissions in order.
func (d *Device) execute(n int) {
	for _, sub := range d.pending[:n] {
		for _, c := range sub.cbs {
			x := &execution{
				d:      d,
				sets:   make(map[uint32]*descriptorSet),
				vertex: make(map[uint32]vertexBuffer),
			}
			for _, cmd := range c.cmds {
				cmd(x)
			}
			c.state = commandExecutable
			if c.oneTime {
				c.state = commandInitial
			}
		}
		if sub.fence != nil {
			sub.fence.signaled = true
			sub.fence.pending = nil
		}
	}
	d.pending = d.pending[n:]
}
