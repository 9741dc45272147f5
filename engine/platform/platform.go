// Package platform owns the window and turns its callbacks into engine
// events.
package platform

import (
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
)

const eventQueueSize = 256

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform is a single GLFW window. It implements driver.Surface for the
// renderer and core.EventSource for the application loop.
type Platform struct {
	Window *glfw.Window

	events    *containers.RingQueue[core.Event]
	dropped   int
	startTime float64
}

func New() (*Platform, error) {
	return &Platform{
		events: containers.NewRingQueue[core.Event](eventQueueSize),
	}, nil
}

func (p *Platform) Startup(applicationName string, x, y int, width, height uint32, fullscreen bool) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	var monitor *glfw.Monitor
	if fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}
	window, err := glfw.CreateWindow(int(width), int(height), applicationName, monitor, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	if monitor == nil {
		p.Window.SetPos(x, y)
	}
	p.Window.Show()

	p.startTime = glfw.GetTime()
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages polls the window system. Callbacks fire from here and fill
// the event queue.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// WaitMessages blocks until the window system has an event, used while the
// window is minimized.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

// Time returns seconds since Startup.
func (p *Platform) Time() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) Dequeue() (core.Event, error) {
	return p.events.Dequeue()
}

func (p *Platform) IsEmpty() bool {
	return p.events.IsEmpty()
}

func (p *Platform) push(e core.Event) {
	if err := p.events.Enqueue(e); err != nil {
		p.dropped++
		if p.dropped == 1 || p.dropped%eventQueueSize == 0 {
			core.LogWarn("event queue full, %d events dropped", p.dropped)
		}
	}
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Window == nil {
		return 0, 0
	}
	w, h := p.Window.GetFramebufferSize()
	if w < 0 || h < 0 {
		return 0, 0
	}
	return uint32(w), uint32(h)
}

func (p *Platform) RequiredInstanceExtensions() []string {
	if p.Window == nil {
		return nil
	}
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a window surface for a Vulkan instance handle.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

// VulkanProcAddr returns the loader entry point GLFW found. Valid after
// Startup.
func VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code := TranslateKey(key)
	switch action {
	case glfw.Press, glfw.Repeat:
		p.push(core.KeyPressed{Key: code})
	case glfw.Release:
		p.push(core.KeyReleased{Key: code})
	}
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	b, ok := TranslateButton(button)
	if !ok {
		return
	}
	p.push(core.MouseButton{Button: b, Pressed: action == glfw.Press})
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	p.push(core.MouseMoved{X: int32(xpos), Y: int32(ypos)})
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	p.push(core.Scroll{DeltaY: float32(yoff)})
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	p.push(core.WindowResized{Width: uint32(width), Height: uint32(height)})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.push(core.Quit{})
}
