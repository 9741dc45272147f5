package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateKey(t *testing.T) {
	cases := map[glfw.Key]core.KeyCode{
		glfw.KeyEscape:   core.KEY_ESCAPE,
		glfw.KeyC:        core.KEY_C,
		glfw.KeyA:        core.KEY_A,
		glfw.KeyZ:        core.KEY_Z,
		glfw.Key0:        core.KEY_0,
		glfw.Key9:        core.KEY_9,
		glfw.KeyF12:      core.KEY_F12,
		glfw.KeySpace:    core.KEY_SPACE,
		glfw.KeyCapsLock: core.KEY_UNKNOWN,
	}
	for key, want := range cases {
		assert.Equal(t, want, TranslateKey(key), "key %d", key)
	}

	b, ok := TranslateButton(glfw.MouseButtonRight)
	assert.True(t, ok)
	assert.Equal(t, core.BUTTON_RIGHT, b)
	_, ok = TranslateButton(glfw.MouseButton5)
	assert.False(t, ok)
}

func TestCallbacksQueueEvents(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	p.keyCallback(nil, glfw.KeyEscape, 0, glfw.Press, 0)
	p.keyCallback(nil, glfw.KeyEscape, 0, glfw.Release, 0)
	p.framebufferSizeCallback(nil, 0, 0)
	p.closeCallback(nil)

	input := core.NewInputState()
	var got []core.Event
	for !p.IsEmpty() {
		e, err := p.Dequeue()
		require.NoError(t, err)
		e.Accept(input)
		got = append(got, e)
	}
	assert.Equal(t, []core.Event{
		core.KeyPressed{Key: core.KEY_ESCAPE},
		core.KeyReleased{Key: core.KEY_ESCAPE},
		core.WindowResized{},
		core.Quit{},
	}, got)
	assert.False(t, input.IsKeyDown(core.KEY_ESCAPE))
}

func TestFullQueueDropsEvents(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	for i := 0; i < eventQueueSize+10; i++ {
		p.scrollCallback(nil, 0, 1)
	}
	assert.Equal(t, 10, p.dropped)
	assert.Equal(t, eventQueueSize, core.DispatchEvents(p, core.NewInputState()))
}
