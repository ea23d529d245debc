package stereo

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileCapture replays left/right image pairs from disk, in order, then io.EOF.
type FileCapture struct {
	pairs [][2]string

	mu   sync.Mutex
	next int
}

func NewFileCapture(pairs [][2]string) *FileCapture {
	return &FileCapture{pairs: pairs}
}

// PairsInDir finds left{n}.png/right{n}.png pairs in dir for n = 0, 1, ...
// until the first gap.
func PairsInDir(dir string) [][2]string {
	var pairs [][2]string
	for n := 0; ; n++ {
		left := filepath.Join(dir, fmt.Sprintf("left%d.png", n))
		right := filepath.Join(dir, fmt.Sprintf("right%d.png", n))
		if _, err := os.Stat(left); err != nil {
			return pairs
		}
		if _, err := os.Stat(right); err != nil {
			return pairs
		}
		pairs = append(pairs, [2]string{left, right})
	}
}

func (c *FileCapture) Open(context.Context) error {
	if len(c.pairs) == 0 {
		return fmt.Errorf("no image pairs")
	}
	for _, p := range c.pairs {
		for _, path := range p {
			if _, err := os.Stat(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *FileCapture) Grab(ctx context.Context) (*image.Gray, *image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	if c.next >= len(c.pairs) {
		c.mu.Unlock()
		return nil, nil, io.EOF
	}
	pair := c.pairs[c.next]
	c.next++
	c.mu.Unlock()

	left, err := LoadGray(pair[0])
	if err != nil {
		return nil, nil, err
	}
	right, err := LoadGray(pair[1])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (c *FileCapture) Close() error {
	return nil
}

// LoadGray decodes an image file and converts it to 8-bit gray.
func LoadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray, nil
}
