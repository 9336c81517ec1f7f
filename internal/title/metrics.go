package title

import "time"

const avgCount = 30

// FrameMetrics keeps a rolling average of frame time over the last avgCount
// frames and counts frames per wall-clock second. Loop goroutine only.
type FrameMetrics struct {
	counter     int
	times       [avgCount]float64
	avgMS       float64
	frames      int
	accumulated float64
	fps         float64
	total       uint64
}

// Update records one frame that took elapsed, including pacing.
func (m *FrameMetrics) Update(elapsed time.Duration) {
	ms := float64(elapsed) / float64(time.Millisecond)
	m.times[m.counter] = ms
	if m.counter == avgCount-1 {
		sum := 0.0
		for _, v := range m.times {
			sum += v
		}
		m.avgMS = sum / avgCount
	}
	m.counter = (m.counter + 1) % avgCount

	m.accumulated += ms
	m.frames++
	if m.accumulated >= 1000 {
		m.fps = float64(m.frames)
		m.accumulated -= 1000
		m.frames = 0
	}
	m.total++
}

// FPS is the frame count of the last full second; 0 until one has passed.
func (m *FrameMetrics) FPS() float64 { return m.fps }

// FrameTime is the average frame time in milliseconds over the last full
// window; 0 until avgCount frames have run.
func (m *FrameMetrics) FrameTime() float64 { return m.avgMS }

func (m *FrameMetrics) Frames() uint64 { return m.total }
