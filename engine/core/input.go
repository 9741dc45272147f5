package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions. Letters and digits share their ASCII values.
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_0         KeyCode = 0x30
	KEY_9         KeyCode = 0x39
	KEY_A         KeyCode = 0x41
	KEY_C         KeyCode = 0x43
	KEY_F         KeyCode = 0x46
	KEY_P         KeyCode = 0x50
	KEY_V         KeyCode = 0x56
	KEY_Z         KeyCode = 0x5A
	KEY_F1        KeyCode = 0x70
	KEY_F12       KeyCode = 0x7B
	KEY_UNKNOWN   KeyCode = 0xFF
	KEYS_MAX_KEYS KeyCode = 0x100
)

// Mouse state structure
type MouseState struct {
	X       int32
	Y       int32
	Buttons [BUTTON_MAX_BUTTONS]bool
}

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// InputState holds current and previous keyboard and mouse states. It is
// fed by dispatching events to it and advanced once per frame with Update.
type InputState struct {
	KeyboardCurrent  KeyboardState
	KeyboardPrevious KeyboardState
	MouseCurrent     MouseState
	MousePrevious    MouseState
	ScrollDelta      float32
}

func NewInputState() *InputState {
	return &InputState{}
}

// Update copies current states to previous states.
func (s *InputState) Update() {
	s.KeyboardPrevious = s.KeyboardCurrent
	s.MousePrevious = s.MouseCurrent
	s.ScrollDelta = 0
}

func (s *InputState) IsKeyDown(key KeyCode) bool {
	return key < KEYS_MAX_KEYS && s.KeyboardCurrent.Keys[key]
}

func (s *InputState) WasKeyDown(key KeyCode) bool {
	return key < KEYS_MAX_KEYS && s.KeyboardPrevious.Keys[key]
}

// KeyJustPressed reports a key that is down now and was up last frame.
func (s *InputState) KeyJustPressed(key KeyCode) bool {
	return s.IsKeyDown(key) && !s.WasKeyDown(key)
}

func (s *InputState) IsButtonDown(button Button) bool {
	return button < BUTTON_MAX_BUTTONS && s.MouseCurrent.Buttons[button]
}

func (s *InputState) MousePosition() (int32, int32) {
	return s.MouseCurrent.X, s.MouseCurrent.Y
}

func (s *InputState) VisitQuit(Quit)                   {}
func (s *InputState) VisitWindowResized(WindowResized) {}

func (s *InputState) VisitKeyPressed(e KeyPressed) {
	if e.Key < KEYS_MAX_KEYS {
		s.KeyboardCurrent.Keys[e.Key] = true
	}
}

func (s *InputState) VisitKeyReleased(e KeyReleased) {
	if e.Key < KEYS_MAX_KEYS {
		s.KeyboardCurrent.Keys[e.Key] = false
	}
}

func (s *InputState) VisitMouseButton(e MouseButton) {
	if e.Button < BUTTON_MAX_BUTTONS {
		s.MouseCurrent.Buttons[e.Button] = e.Pressed
	}
}

func (s *InputState) VisitMouseMoved(e MouseMoved) {
	s.MouseCurrent.X = e.X
	s.MouseCurrent.Y = e.Y
}

func (s *InputState) VisitScroll(e Scroll) {
	s.ScrollDelta += e.DeltaY
}
