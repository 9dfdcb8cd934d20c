package visualizer

import (
	"math"
	"sync"
)

// Canvas is the drawing surface for waveform bars. Coordinates are logical
// (CSS) pixels.
type Canvas interface {
	LogicalSize() (width, height int)
	Clear()
	FillRect(x, y, w, h int)
}

// Render clears c and draws one bar per two frequency bins, centred
// vertically. Bars that would start past the right edge are skipped.
func Render(c Canvas, bins []byte) {
	width, height := c.LogicalSize()
	c.Clear()

	n := len(bins)
	bars := n / 2
	if bars == 0 || width <= 0 {
		return
	}

	slot := float64(width) / float64(bars)
	barWidth := max(1, int(math.Floor(slot*0.7)))
	spacing := max(0, int(math.Floor(slot*0.3)))
	step := float64(n) / float64(bars)

	x := 0
	for i := range bars {
		if x >= width {
			break
		}
		v := bins[int(math.Floor(float64(i)*step))]
		h := float64(v) / 255 * float64(height)
		if h > 0 && h < 1 {
			h = 1
		}
		barHeight := int(math.Round(h))
		y := int(math.Round(float64(height-barHeight) / 2))
		c.FillRect(x, y, barWidth, barHeight)
		x += barWidth + spacing
	}
}

// Bar is one filled rectangle of a frame.
type Bar struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Frame is a rendered waveform, ready to ship to a front-end.
type Frame struct {
	Width         int   `json:"width"`
	Height        int   `json:"height"`
	BackingWidth  int   `json:"backingWidth"`
	BackingHeight int   `json:"backingHeight"`
	Bars          []Bar `json:"bars"`
}

// FrameCanvas is a Canvas that records the bars of the current frame. Its
// backing size follows Resize like a high-DPI HTML canvas.
type FrameCanvas struct {
	mu            sync.Mutex
	width, height int
	backW, backH  int
	bars          []Bar
}

var _ Canvas = (*FrameCanvas)(nil)

// NewFrameCanvas creates a canvas with a logical size of w x h at DPR 1.
func NewFrameCanvas(w, h int) *FrameCanvas {
	return &FrameCanvas{width: w, height: h, backW: w, backH: h}
}

// Resize sets the logical size to the CSS box and the backing size to
// round(css*dpr). A non-positive dpr counts as 1.
func (c *FrameCanvas) Resize(cssWidth, cssHeight, dpr float64) {
	if dpr <= 0 {
		dpr = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = int(cssWidth)
	c.height = int(cssHeight)
	c.backW = int(math.Round(cssWidth * dpr))
	c.backH = int(math.Round(cssHeight * dpr))
}

// LogicalSize implements Canvas.
func (c *FrameCanvas) LogicalSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// BackingSize returns the device-pixel size.
func (c *FrameCanvas) BackingSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backW, c.backH
}

// Clear implements Canvas.
func (c *FrameCanvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars = c.bars[:0]
}

// FillRect implements Canvas.
func (c *FrameCanvas) FillRect(x, y, w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars = append(c.bars, Bar{X: x, Y: y, W: w, H: h})
}

// Frame returns a copy of the current frame.
func (c *FrameCanvas) Frame() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Frame{
		Width:         c.width,
		Height:        c.height,
		BackingWidth:  c.backW,
		BackingHeight: c.backH,
		Bars:          append([]Bar(nil), c.bars...),
	}
}
