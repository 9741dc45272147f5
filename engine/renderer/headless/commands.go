package headless

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

type commandState int

const (
	commandInitial commandState = iota
	commandRecording
	commandExecutable
	commandPending
)

type command func(x *execution)

type vertexBuffer struct {
	buf    *buffer
	offset uint64
}

// execution is the state bound while a command buffer runs.
type execution struct {
	d           *Device
	pipeline    *pipeline
	sets        map[uint32]*descriptorSet
	vertex      map[uint32]vertexBuffer
	index       *buffer
	indexOffset uint64
	indexType   driver.IndexType
	push        []byte
}

type commandBuffer struct {
	d         *Device
	state     commandState
	oneTime   bool
	cmds      []command
	err       error
	inPass    bool
	bound     *pipeline
	destroyed bool
}

func (d *Device) NewCommandBuffer() (driver.CommandBuffer, error) {
	d.created("command_buffer")
	return &commandBuffer{d: d}, nil
}

func (c *commandBuffer) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = fmt.Errorf("headless: "+format, args...)
	}
}

func (c *commandBuffer) record(cmd command) {
	if c.state != commandRecording {
		c.fail("command recorded outside Begin/End")
		return
	}
	c.cmds = append(c.cmds, cmd)
}

func (c *commandBuffer) Begin(oneTimeSubmit bool) error {
	switch c.state {
	case commandPending:
		c.d.errorf("command buffer begun while in use by the device")
		return errors.New("headless: command buffer in use")
	case commandRecording:
		return errors.New("headless: command buffer already recording")
	}
	c.cmds, c.err, c.inPass, c.bound = nil, nil, false, nil
	c.oneTime = oneTimeSubmit
	c.state = commandRecording
	return nil
}

func (c *commandBuffer) End() error {
	if c.state != commandRecording {
		return errors.New("headless: command buffer not recording")
	}
	if c.inPass {
		c.fail("render pass not ended")
	}
	c.state = commandExecutable
	return c.err
}

func (c *commandBuffer) Reset() error {
	if c.state == commandPending {
		c.d.errorf("command buffer reset while in use by the device")
		return errors.New("headless: command buffer in use")
	}
	c.cmds, c.err, c.inPass, c.bound = nil, nil, false, nil
	c.state = commandInitial
	return nil
}

func (c *commandBuffer) Destroy() {
	if c.state == commandPending {
		c.d.errorf("command buffer destroyed while in use by the device")
	}
	c.d.release("command_buffer", &c.destroyed)
}

func (c *commandBuffer) BeginRenderPass(rp driver.RenderPass, fb driver.Framebuffer, area driver.Rect2D, clearColour [4]float32, clearDepth float32) {
	if c.inPass {
		c.fail("render pass already begun")
		return
	}
	if _, ok := fb.(*framebuffer); !ok {
		c.fail("foreign framebuffer")
		return
	}
	c.inPass = true
	c.record(func(x *execution) {
		x.d.lastClear = clearColour
	})
}

func (c *commandBuffer) EndRenderPass() {
	if !c.inPass {
		c.fail("no render pass to end")
		return
	}
	c.inPass = false
	c.record(func(*execution) {})
}

func (c *commandBuffer) SetViewport(vp driver.Viewport) {
	if vp.Width <= 0 || vp.Height == 0 {
		c.fail("empty viewport")
	}
	c.record(func(*execution) {})
}

func (c *commandBuffer) SetScissor(r driver.Rect2D) {
	c.record(func(*execution) {})
}

func (c *commandBuffer) BindPipeline(p driver.Pipeline) {
	hp, ok := p.(*pipeline)
	if !ok {
		c.fail("foreign pipeline")
		return
	}
	c.bound = hp
	c.record(func(x *execution) {
		x.pipeline = hp
	})
}

func (c *commandBuffer) BindDescriptorSet(p driver.Pipeline, index uint32, set driver.DescriptorSet) {
	hs, ok := set.(*descriptorSet)
	if !ok {
		c.fail("foreign descriptor set")
		return
	}
	c.record(func(x *execution) {
		x.sets[index] = hs
	})
}

func (c *commandBuffer) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	if len(buffers) != len(offsets) {
		c.fail("%d vertex buffers with %d offsets", len(buffers), len(offsets))
		return
	}
	bound := make([]vertexBuffer, len(buffers))
	for i, b := range buffers {
		hb, ok := b.(*buffer)
		if !ok {
			c.fail("foreign vertex buffer")
			return
		}
		if hb.usage&driver.BufferVertex == 0 {
			c.fail("buffer bound as vertex buffer without vertex usage")
			return
		}
		bound[i] = vertexBuffer{buf: hb, offset: offsets[i]}
	}
	c.record(func(x *execution) {
		for i, vb := range bound {
			x.vertex[first+uint32(i)] = vb
		}
	})
}

func (c *commandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64, typ driver.IndexType) {
	hb, ok := buf.(*buffer)
	if !ok {
		c.fail("foreign index buffer")
		return
	}
	c.record(func(x *execution) {
		x.index, x.indexOffset, x.indexType = hb, offset, typ
	})
}

func (c *commandBuffer) PushConstants(p driver.Pipeline, stages driver.ShaderStage, offset uint32, data []byte) {
	push := append([]byte(nil), data...)
	c.record(func(x *execution) {
		if need := int(offset) + len(push); len(x.push) < need {
			x.push = append(x.push, make([]byte, need-len(x.push))...)
		}
		copy(x.push[offset:], push)
	})
}

func (c *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if !c.inPass {
		c.fail("draw outside a render pass")
		return
	}
	if c.bound == nil || c.bound.compute {
		c.fail("draw without a graphics pipeline")
		return
	}
	c.record(func(x *execution) {
		x.draw(indexCount, instanceCount, firstIndex, firstInstance)
	})
}

func (c *commandBuffer) Dispatch(gx, gy, gz uint32) {
	if c.inPass {
		c.fail("dispatch inside a render pass")
		return
	}
	if c.bound == nil || !c.bound.compute {
		c.fail("dispatch without a compute pipeline")
		return
	}
	c.record(func(x *execution) {
		x.dispatch([3]uint32{gx, gy, gz})
	})
}

func (c *commandBuffer) PipelineBarrier(src, dst driver.PipelineStage, srcAccess, dstAccess driver.Access) {
	c.record(func(x *execution) {
		graphics := driver.PipelineStageVertexInput | driver.PipelineStageVertexShader | driver.PipelineStageFragmentShader
		if src&driver.PipelineStageComputeShader != 0 && srcAccess&driver.AccessShaderWrite != 0 && dst&graphics != 0 {
			for b := range x.d.dirty {
				delete(x.d.dirty, b)
			}
		}
	})
}

func (c *commandBuffer) TransitionImage(img driver.Image, from, to driver.Layout) {
	hi, ok := img.(*image)
	if !ok {
		c.fail("foreign image")
		return
	}
	if c.inPass {
		c.fail("layout transition inside a render pass")
		return
	}
	c.record(func(x *execution) {
		if from != driver.LayoutUndefined && hi.layout != from {
			x.d.errorf("image transition from layout %d but image is in layout %d", from, hi.layout)
		}
		hi.layout = to
	})
}

func (c *commandBuffer) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	hs, ok1 := src.(*buffer)
	hd, ok2 := dst.(*buffer)
	if !ok1 || !ok2 {
		c.fail("foreign buffer in copy")
		return
	}
	for _, r := range regions {
		if r.SrcOffset+r.Size > hs.size || r.DstOffset+r.Size > hd.size {
			c.fail("copy region out of bounds")
			return
		}
	}
	regions = append([]driver.BufferCopy(nil), regions...)
	c.record(func(x *execution) {
		s, d := hs.bytes(), hd.bytes()
		if s == nil || d == nil {
			x.d.errorf("copy between unbound buffers")
			return
		}
		for _, r := range regions {
			copy(d[r.DstOffset:r.DstOffset+r.Size], s[r.SrcOffset:r.SrcOffset+r.Size])
		}
	})
}

func (c *commandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image) {
	hs, ok1 := src.(*buffer)
	hi, ok2 := dst.(*image)
	if !ok1 || !ok2 {
		c.fail("foreign object in image copy")
		return
	}
	if hs.size < hi.size() {
		c.fail("staging buffer holds %d bytes, image needs %d", hs.size, hi.size())
		return
	}
	c.record(func(x *execution) {
		if hi.layout != driver.LayoutTransferDst {
			x.d.errorf("copy into image in layout %d", hi.layout)
			return
		}
		t := hi.texels()
		if t == nil {
			x.d.errorf("copy into unbound image")
			return
		}
		copy(t, hs.bytes())
	})
}

func (x *execution) draw(indexCount, instanceCount, firstIndex, firstInstance uint32) {
	p := x.pipeline
	call := DrawCall{Pipeline: p.label, IndexCount: indexCount, InstanceCount: instanceCount}

	if x.index == nil {
		x.d.errorf("pipeline %s: draw without an index buffer", p.label)
		return
	}
	indexSize := uint64(2)
	if x.indexType == driver.IndexUint32 {
		indexSize = 4
	}
	if x.indexOffset+uint64(firstIndex+indexCount)*indexSize > x.index.size {
		x.d.errorf("pipeline %s: index range out of bounds", p.label)
	}

	for _, b := range p.bindings {
		vb, ok := x.vertex[b.Binding]
		if !ok {
			x.d.errorf("pipeline %s: vertex binding %d not bound", p.label, b.Binding)
			continue
		}
		if _, dirty := x.d.dirty[vb.buf]; dirty {
			x.d.hazards = append(x.d.hazards, Hazard{Pipeline: p.label, Binding: b.Binding})
		}
		if b.Rate != driver.RatePerInstance || call.Instances != nil {
			continue
		}
		start := vb.offset + uint64(firstInstance)*uint64(b.Stride)
		end := start + uint64(instanceCount)*uint64(b.Stride)
		if data := vb.buf.bytes(); data != nil && end <= uint64(len(data)) {
			call.Instances = append([]byte{}, data[start:end]...)
		} else {
			x.d.errorf("pipeline %s: instance range %d..%d out of bounds", p.label, start, end)
		}
	}

	for i := range p.layouts {
		set, ok := x.sets[uint32(i)]
		if !ok {
			x.d.errorf("pipeline %s: descriptor set %d not bound", p.label, i)
			continue
		}
		for bn, r := range set.buffers {
			if _, dirty := x.d.dirty[r.buf]; dirty {
				x.d.hazards = append(x.d.hazards, Hazard{Pipeline: p.label, Binding: bn})
			}
		}
	}
	x.d.draws = append(x.d.draws, call)
}

func (x *execution) dispatch(groups [3]uint32) {
	p := x.pipeline
	x.d.dispatches++
	set, ok := x.sets[0]
	if !ok {
		x.d.errorf("pipeline %s: dispatch without descriptor set 0", p.label)
		return
	}
	views := make(map[uint32][]byte, len(set.buffers))
	for bn, r := range set.buffers {
		views[bn] = r.bytes()
	}
	k, ok := x.d.kernels[p.module]
	if !ok {
		x.d.errorf("pipeline %s: no kernel registered for shader %s", p.label, p.module)
	} else {
		k(groups, views, x.push)
	}
	for bn, r := range set.buffers {
		if b, ok := set.layout.binding(bn); ok && b.Type == driver.DescriptorStorageBuffer && !b.ReadOnly {
			x.d.dirty[r.buf] = struct{}{}
		}
	}
}
