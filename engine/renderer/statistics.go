package renderer

// RenderStatistics describes the last rendered frame. Frame, FramesSkipped
// and Recreations are running totals.
type RenderStatistics struct {
	Frame         uint64
	FramesSkipped uint64
	Recreations   uint64

	QuadsDrawn     uint32
	GlyphsDrawn    uint32
	ParticlesDrawn uint32

	QuadsDropped     uint32
	GlyphsDropped    uint32
	ParticlesDropped uint32

	ComputeGroups uint32

	// FrameTime is the average frame time in milliseconds.
	FrameTime float64
	FPS       float64
}

func (s *RenderStatistics) resetFrame() {
	s.QuadsDrawn, s.GlyphsDrawn, s.ParticlesDrawn = 0, 0, 0
	s.QuadsDropped, s.GlyphsDropped, s.ParticlesDropped = 0, 0, 0
	s.ComputeGroups = 0
}
