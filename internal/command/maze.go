package command

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"strings"

	"github.com/disintegration/imaging"

	"matrixbot/internal/domain"
)

const (
	mazeCols = 48
	mazeRows = 48
	mazeCell = 12
)

// Maze answers "!mazeme [prompt] [--wide] [--palette=name]" with a
// generated maze. The prompt seeds the carve, so the same prompt always
// yields the same maze.
type Maze struct{}

func NewMaze() *Maze { return &Maze{} }

func (c *Maze) Trigger() string { return "!mazeme" }

// palette hue pairs: wall hue, floor hue (degrees). "mono" is handled
// separately as grayscale.
var mazePalettes = map[string][2]float64{
	"default":   {210, 45},
	"spacedog":  {260, 320},
	"synthwave": {300, 185},
	"forest":    {120, 90},
	"sunset":    {15, 340},
	"ocean":     {200, 170},
}

func (c *Maze) Execute(ctx context.Context, inv *domain.Invocation) error {
	prompt, wide, palette := parseMazeArgs(inv.Args)
	if _, ok := mazePalettes[palette]; !ok && palette != "mono" {
		palette = "default"
	}

	grid := carveMaze(mazeCols, mazeRows, mazeSeed(prompt))
	img := renderMaze(grid, palette, mazeSeed(prompt))

	var out image.Image
	if wide {
		out = imaging.Resize(img, 1280, 720, imaging.NearestNeighbor)
	} else {
		out = imaging.Resize(img, 1024, 1024, imaging.NearestNeighbor)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return fmt.Errorf("encode maze: %w", err)
	}

	name := "maze.png"
	if prompt != "" {
		name = fmt.Sprintf("maze_%s.png", sanitizeFilename(prompt))
	}
	return inv.Images.Route(ctx, inv.RoomID, name, buf.Bytes())
}

func parseMazeArgs(args string) (prompt string, wide bool, palette string) {
	palette = "default"
	var words []string
	for _, tok := range strings.Fields(args) {
		switch {
		case tok == "--wide":
			wide = true
		case strings.HasPrefix(tok, "--palette="):
			palette = strings.ToLower(strings.TrimPrefix(tok, "--palette="))
		default:
			words = append(words, tok)
		}
	}
	return strings.Join(words, " "), wide, palette
}

func mazeSeed(prompt string) int64 {
	h := fnv.New64a()
	h.Write([]byte(prompt))
	return int64(h.Sum64())
}

func sanitizeFilename(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() > 40 {
		return b.String()[:40]
	}
	return b.String()
}

// cell wall bits.
const (
	wallN = 1 << iota
	wallS
	wallE
	wallW
)

// carveMaze runs a recursive backtracker over a cols×rows grid. Every
// cell starts fully walled; the walk knocks walls down pairwise so the
// maze is perfect (exactly one path between any two cells).
func carveMaze(cols, rows int, seed int64) [][]int {
	grid := make([][]int, rows)
	for y := range grid {
		grid[y] = make([]int, cols)
		for x := range grid[y] {
			grid[y][x] = wallN | wallS | wallE | wallW
		}
	}

	rng := rand.New(rand.NewSource(seed))
	visited := make([][]bool, rows)
	for y := range visited {
		visited[y] = make([]bool, cols)
	}

	type pos struct{ x, y int }
	stack := []pos{{rng.Intn(cols), rng.Intn(rows)}}
	visited[stack[0].y][stack[0].x] = true

	dirs := []struct {
		dx, dy      int
		here, there int
	}{
		{0, -1, wallN, wallS},
		{0, 1, wallS, wallN},
		{1, 0, wallE, wallW},
		{-1, 0, wallW, wallE},
	}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]

		order := rng.Perm(len(dirs))
		moved := false
		for _, i := range order {
			d := dirs[i]
			nx, ny := cur.x+d.dx, cur.y+d.dy
			if nx < 0 || ny < 0 || nx >= cols || ny >= rows || visited[ny][nx] {
				continue
			}
			grid[cur.y][cur.x] &^= d.here
			grid[ny][nx] &^= d.there
			visited[ny][nx] = true
			stack = append(stack, pos{nx, ny})
			moved = true
			break
		}
		if !moved {
			stack = stack[:len(stack)-1]
		}
	}
	return grid
}

func renderMaze(grid [][]int, palette string, seed int64) *image.RGBA {
	rows := len(grid)
	cols := len(grid[0])
	w := cols*mazeCell + 1
	h := rows*mazeCell + 1
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	rng := rand.New(rand.NewSource(seed))
	wall, floor := paletteColors(palette, rng)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, floor)
		}
	}

	for y, row := range grid {
		for x, cell := range row {
			px, py := x*mazeCell, y*mazeCell
			if cell&wallN != 0 {
				hline(img, px, px+mazeCell, py, wall)
			}
			if cell&wallS != 0 {
				hline(img, px, px+mazeCell, py+mazeCell, wall)
			}
			if cell&wallW != 0 {
				vline(img, px, py, py+mazeCell, wall)
			}
			if cell&wallE != 0 {
				vline(img, px+mazeCell, py, py+mazeCell, wall)
			}
		}
	}
	return img
}

func paletteColors(palette string, rng *rand.Rand) (wall, floor color.RGBA) {
	if palette == "mono" {
		return color.RGBA{20, 20, 20, 255}, color.RGBA{235, 235, 235, 255}
	}
	hues := mazePalettes[palette]
	jitter := rng.Float64()*20 - 10
	wall = hsv(math.Mod(hues[0]+jitter+360, 360), 0.7, 0.35)
	floor = hsv(math.Mod(hues[1]+jitter+360, 360), 0.25, 0.95)
	return wall, floor
}

func hline(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x <= x1; x++ {
		if image.Pt(x, y).In(img.Bounds()) {
			img.Set(x, y, c)
		}
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.Color) {
	for y := y0; y <= y1; y++ {
		if image.Pt(x, y).In(img.Bounds()) {
			img.Set(x, y, c)
		}
	}
}

func hsv(h, s, v float64) color.RGBA {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{
		R: uint8((r + m) * 255),
		G: uint8((g + m) * 255),
		B: uint8((b + m) * 255),
		A: 255,
	}
}
