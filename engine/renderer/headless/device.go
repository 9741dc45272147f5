// Package headless is a software implementation of the driver interfaces.
//
// Submitted work is queued and executed in order when a fence is waited on
// or the device is drained, so the number of outstanding submissions can be
// observed the same way a real queue would accumulate them. Compute
// dispatches run Go kernels registered by shader label, draws are recorded
// together with a snapshot of the instance data they read, and protocol
// mistakes (unsignaled waits, double destroys, missing barriers) are
// collected instead of crashing.
package headless

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// Kernel emulates a compute shader. bindings maps each buffer binding of
// descriptor set 0 to the bytes it views.
type Kernel func(groups [3]uint32, bindings map[uint32][]byte, push []byte)

// DrawCall is one executed DrawIndexed.
type DrawCall struct {
	Pipeline      string
	IndexCount    uint32
	InstanceCount uint32
	// Instances holds the per-instance vertex data the draw read, copied at
	// execution time.
	Instances []byte
}

// Hazard is a draw that read a buffer written by a compute dispatch with no
// barrier in between.
type Hazard struct {
	Pipeline string
	Binding  uint32
}

type Option func(*Device)

// WithMemoryTypes replaces the default memory types.
func WithMemoryTypes(types ...driver.MemoryType) Option {
	return func(d *Device) {
		d.memoryTypes = types
	}
}

// WithMemoryLimit makes allocations fail with driver.ErrOutOfMemory once
// limit bytes are in use.
func WithMemoryLimit(limit uint64) Option {
	return func(d *Device) {
		d.memoryLimit = limit
	}
}

// WithImageCount sets the surface's minimum and maximum swapchain image
// counts. A max of zero means unbounded.
func WithImageCount(min, max uint32) Option {
	return func(d *Device) {
		d.minImages = min
		d.maxImages = max
	}
}

// Device is the headless driver.Device. It is not safe for concurrent use.
type Device struct {
	surface     driver.Surface
	memoryTypes []driver.MemoryType
	memoryLimit uint64
	memoryUsed  uint64
	minImages   uint32
	maxImages   uint32

	live      map[string]int
	errs      []error
	destroyed bool

	pending     []*submission
	maxPending  int
	submissions int

	kernels    map[string]Kernel
	draws      []DrawCall
	hazards    []Hazard
	dispatches int
	dirty      map[*buffer]struct{}
	lastClear  [4]float32

	acquireOutOfDate  int
	presentOutOfDate  int
	swapchainsCreated int
}

// New returns a device presenting to surface.
func New(surface driver.Surface, opts ...Option) *Device {
	d := &Device{
		surface: surface,
		memoryTypes: []driver.MemoryType{
			{Properties: driver.MemoryDeviceLocal, Heap: 0},
			{Properties: driver.MemoryHostVisible | driver.MemoryHostCoherent, Heap: 1},
		},
		minImages: 2,
		maxImages: 3,
		live:      make(map[string]int),
		kernels:   make(map[string]Kernel),
		dirty:     make(map[*buffer]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Backend opens headless devices. The most recently opened device is kept
// in Device for inspection.
type Backend struct {
	Options []Option
	Kernels map[string]Kernel
	Device  *Device
}

func NewBackend(opts ...Option) *Backend {
	return &Backend{Options: opts, Kernels: make(map[string]Kernel)}
}

func (b *Backend) Name() string {
	return "headless"
}

func (b *Backend) Open(surface driver.Surface, appName string, apiVersion uint32) (driver.Device, error) {
	if surface == nil {
		return nil, fmt.Errorf("headless: %s: nil surface", appName)
	}
	if _, err := surface.CreateSurface(nil); err != nil {
		return nil, err
	}
	d := New(surface, b.Options...)
	for label, k := range b.Kernels {
		d.RegisterKernel(label, k)
	}
	b.Device = d
	return d, nil
}

// Window is a surface whose size is set directly.
type Window struct {
	width, height uint32
}

func NewWindow(width, height uint32) *Window {
	return &Window{width: width, height: height}
}

func (w *Window) SetSize(width, height uint32) {
	w.width, w.height = width, height
}

func (w *Window) FramebufferSize() (uint32, uint32) {
	return w.width, w.height
}

func (w *Window) RequiredInstanceExtensions() []string {
	return nil
}

func (w *Window) CreateSurface(instance interface{}) (uintptr, error) {
	return 1, nil
}

// RegisterKernel binds a compute kernel to the shader module label used by
// compute pipelines.
func (d *Device) RegisterKernel(label string, k Kernel) {
	d.kernels[label] = k
}

// InjectAcquireOutOfDate makes the next n acquires report out of date.
func (d *Device) InjectAcquireOutOfDate(n int) {
	d.acquireOutOfDate += n
}

// InjectPresentOutOfDate makes the next n presents report out of date.
func (d *Device) InjectPresentOutOfDate(n int) {
	d.presentOutOfDate += n
}

// MaxPending is the largest number of submissions that were queued but not
// yet complete at any point.
func (d *Device) MaxPending() int {
	return d.maxPending
}

func (d *Device) Pending() int {
	return len(d.pending)
}

func (d *Device) Submissions() int {
	return d.submissions
}

func (d *Device) DrawCalls() []DrawCall {
	return d.draws
}

func (d *Device) ResetDrawCalls() {
	d.draws = nil
}

func (d *Device) Hazards() []Hazard {
	return d.hazards
}

func (d *Device) Dispatches() int {
	return d.dispatches
}

func (d *Device) LastClearColour() [4]float32 {
	return d.lastClear
}

func (d *Device) SwapchainsCreated() int {
	return d.swapchainsCreated
}

// Errors returns every protocol violation seen so far.
func (d *Device) Errors() []error {
	return d.errs
}

// Live returns the number of live objects of kind, such as "buffer" or
// "fence".
func (d *Device) Live(kind string) int {
	return d.live[kind]
}

// LiveCounts returns a copy of the live object counts, omitting kinds with
// no live objects.
func (d *Device) LiveCounts() map[string]int {
	out := make(map[string]int, len(d.live))
	for k, v := range d.live {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

func (d *Device) LiveTotal() int {
	n := 0
	for _, v := range d.live {
		n += v
	}
	return n
}

func (d *Device) MemoryUsed() uint64 {
	return d.memoryUsed
}

func (d *Device) errorf(format string, args ...interface{}) {
	d.errs = append(d.errs, fmt.Errorf("headless: "+format, args...))
}

func (d *Device) created(kind string) {
	d.live[kind]++
}

// release reports whether the object was live. A second destroy is
// recorded as an error.
func (d *Device) release(kind string, destroyed *bool) bool {
	if *destroyed {
		d.errorf("%s destroyed twice", kind)
		return false
	}
	*destroyed = true
	d.live[kind]--
	return true
}

// Destroy drains the queue and records every object still alive as a leak.
func (d *Device) Destroy() {
	if d.destroyed {
		d.errorf("device destroyed twice")
		return
	}
	d.execute(len(d.pending))
	kinds := make([]string, 0, len(d.live))
	for k, v := range d.live {
		if v > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		d.errorf("%d %s objects leaked", d.live[k], k)
	}
	d.destroyed = true
}

func (d *Device) MemoryTypes() []driver.MemoryType {
	return d.memoryTypes
}

func (d *Device) DepthFormat() driver.Format {
	return driver.FormatD32Float
}

func (d *Device) SurfaceCapabilities() (driver.SurfaceCapabilities, error) {
	w, h := d.surface.FramebufferSize()
	return driver.SurfaceCapabilities{
		MinImageCount: d.minImages,
		MaxImageCount: d.maxImages,
		CurrentExtent: driver.Extent2D{Width: w, Height: h},
		MinExtent:     driver.Extent2D{Width: 1, Height: 1},
		MaxExtent:     driver.Extent2D{Width: 16384, Height: 16384},
		Formats:       []driver.Format{driver.FormatBGRA8SRGB, driver.FormatRGBA8Unorm},
		PresentModes:  []driver.PresentMode{driver.PresentFIFO, driver.PresentImmediate, driver.PresentMailbox},
	}, nil
}

// WaitIdle executes every queued submission.
func (d *Device) WaitIdle() error {
	d.execute(len(d.pending))
	return nil
}

// typeBits returns a mask with every memory type set.
func (d *Device) typeBits() uint32 {
	return uint32(1)<<len(d.memoryTypes) - 1
}
