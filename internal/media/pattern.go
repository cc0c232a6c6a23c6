package media

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrSourceClosed is returned by Next after Close.
var ErrSourceClosed = errors.New("source closed")

// Pattern is a synthetic camera: it renders a moving colour-bar test card
// at a fixed frame rate. The rate models the capture device, not the
// transport; Next blocks until the next tick.
type Pattern struct {
	width, height int
	ticker        *time.Ticker
	n             int

	closeOnce sync.Once
	done      chan struct{}
}

var _ Source = (*Pattern)(nil)

// NewPattern creates a test-card source of the given size and rate.
func NewPattern(width, height, fps int) *Pattern {
	fps = max(fps, 1)
	return &Pattern{
		width:  max(width, 16),
		height: max(height, 16),
		ticker: time.NewTicker(time.Second / time.Duration(fps)),
		done:   make(chan struct{}),
	}
}

var bars = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// Next waits for the next tick and renders a frame.
func (p *Pattern) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-p.ticker.C:
	case <-p.done:
		return nil, ErrSourceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	barWidth := max(p.width/len(bars), 1)
	shift := p.n * 4
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			c := bars[((x+shift)/barWidth)%len(bars)]
			if y > p.height*3/4 {
				// Moving luma ramp along the bottom quarter.
				v := uint8((x + p.n*8) % 256)
				c = color.RGBA{v, v, v, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	p.n++
	return img, nil
}

// Close stops the ticker and unblocks Next.
func (p *Pattern) Close() error {
	p.closeOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
	return nil
}
