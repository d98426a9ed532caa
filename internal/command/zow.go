package command

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"strings"

	"matrixbot/internal/domain"
)

const (
	zowSize   = 512
	zowPoints = 500
)

// Zow answers "!zow <seed>" with a spiral rendered from the numeric seed.
// The same seed always yields the same image.
type Zow struct{}

func NewZow() *Zow { return &Zow{} }

func (c *Zow) Trigger() string { return "!zow" }

func (c *Zow) Execute(ctx context.Context, inv *domain.Invocation) error {
	arg := strings.TrimSpace(inv.Args)
	seed, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		_, err := inv.Client.SendMessage(ctx, inv.RoomID, "Usage: !zow <number>")
		return err
	}

	img := renderSpiral(seed)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode spiral: %w", err)
	}

	return inv.Images.Route(ctx, inv.RoomID, fmt.Sprintf("zow_%s.png", arg), buf.Bytes())
}

func renderSpiral(seed float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, zowSize, zowSize))
	for y := 0; y < zowSize; y++ {
		for x := 0; x < zowSize; x++ {
			img.Set(x, y, color.Black)
		}
	}

	lime := color.RGBA{R: 0, G: 255, B: 0, A: 255}
	cx, cy := float64(zowSize)/2, float64(zowSize)/2

	prevX, prevY := int(cx), int(cy)
	for i := 1; i < zowPoints; i++ {
		angle := float64(i) * seed / math.Pi
		r := float64(i) * 0.45
		x := int(cx + r*math.Cos(angle))
		y := int(cy + r*math.Sin(angle))
		drawLine(img, prevX, prevY, x, y, lime)
		prevX, prevY = x, y
	}
	return img
}

// drawLine plots a Bresenham segment, clipped to the image bounds.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if image.Pt(x0, y0).In(img.Bounds()) {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
