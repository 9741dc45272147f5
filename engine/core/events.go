package core

// Event is a platform or application event. The set of variants is closed:
// every variant implements Accept by calling the matching visitor method, so
// adding a variant fails to compile until every EventVisitor handles it.
type Event interface {
	Accept(v EventVisitor)
	isEvent()
}

// EventVisitor handles every Event variant.
type EventVisitor interface {
	VisitQuit(e Quit)
	VisitWindowResized(e WindowResized)
	VisitKeyPressed(e KeyPressed)
	VisitKeyReleased(e KeyReleased)
	VisitMouseButton(e MouseButton)
	VisitMouseMoved(e MouseMoved)
	VisitScroll(e Scroll)
}

// Quit asks the application to shut down on the next frame.
type Quit struct{}

// WindowResized carries the new framebuffer size in pixels. A zero size
// means the window was minimized.
type WindowResized struct {
	Width, Height uint32
}

type KeyPressed struct {
	Key KeyCode
}

type KeyReleased struct {
	Key KeyCode
}

type MouseButton struct {
	Button  Button
	Pressed bool
}

type MouseMoved struct {
	X, Y int32
}

type Scroll struct {
	DeltaY float32
}

func (Quit) isEvent()          {}
func (WindowResized) isEvent() {}
func (KeyPressed) isEvent()    {}
func (KeyReleased) isEvent()   {}
func (MouseButton) isEvent()   {}
func (MouseMoved) isEvent()    {}
func (Scroll) isEvent()        {}

func (e Quit) Accept(v EventVisitor)          { v.VisitQuit(e) }
func (e WindowResized) Accept(v EventVisitor) { v.VisitWindowResized(e) }
func (e KeyPressed) Accept(v EventVisitor)    { v.VisitKeyPressed(e) }
func (e KeyReleased) Accept(v EventVisitor)   { v.VisitKeyReleased(e) }
func (e MouseButton) Accept(v EventVisitor)   { v.VisitMouseButton(e) }
func (e MouseMoved) Accept(v EventVisitor)    { v.VisitMouseMoved(e) }
func (e Scroll) Accept(v EventVisitor)        { v.VisitScroll(e) }

// EventSource is anything that can be drained of queued events.
type EventSource interface {
	Dequeue() (Event, error)
	IsEmpty() bool
}

// DispatchEvents drains src and hands every event to each visitor in order.
// It returns the number of events dispatched.
func DispatchEvents(src EventSource, visitors ...EventVisitor) int {
	n := 0
	for !src.IsEmpty() {
		e, err := src.Dequeue()
		if err != nil {
			break
		}
		for _, v := range visitors {
			e.Accept(v)
		}
		n++
	}
	return n
}
