package cli

import (
	"math"
	"strings"

	"github.com/fatih/color"

	"optpnl/internal/scenario"
)

var (
	seriesGlyphs  = []rune{'*', 'o', '+', 'x', '#', '@'}
	seriesPalette = []color.Attribute{color.FgCyan, color.FgYellow, color.FgMagenta, color.FgGreen, color.FgBlue, color.FgRed}
)

// Minimum plot area; smaller requests are widened.
const (
	minChartWidth  = 20
	minChartHeight = 5
)

// RenderChart plots every series of s against the underlying price, one glyph
// and colour per evaluation date. A dashed row marks zero P&L and a bar marks
// the current spot.
func RenderChart(o *Output, s scenario.Series, spot float64, width, height int) {
	if len(s.X) < 2 || len(s.Labels) == 0 {
		o.Warning("Nothing to plot")
		return
	}
	width = max(width, minChartWidth)
	height = max(height, minChartHeight)

	ymin, ymax := 0.0, 0.0
	for _, label := range s.Labels {
		for _, v := range s.Y[label] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			ymin = math.Min(ymin, v)
			ymax = math.Max(ymax, v)
		}
	}
	if ymax-ymin < 1e-9 {
		ymin, ymax = ymin-1, ymax+1
	}

	xmin, xmax := s.X[0], s.X[len(s.X)-1]
	rowOf := func(y float64) int {
		r := int(math.Round((ymax - y) / (ymax - ymin) * float64(height-1)))
		return min(max(r, 0), height-1)
	}
	colOf := func(x float64) int {
		c := int(math.Round((x - xmin) / (xmax - xmin) * float64(width-1)))
		return min(max(c, 0), width-1)
	}

	cells := make([][]rune, height)
	owner := make([][]int, height)
	for r := range cells {
		cells[r] = make([]rune, width)
		owner[r] = make([]int, width)
		for c := range cells[r] {
			cells[r][c] = ' '
			owner[r][c] = -1
		}
	}

	zero := rowOf(0)
	for c := 0; c < width; c++ {
		cells[zero][c] = '-'
	}
	if spot > xmin && spot < xmax {
		sc := colOf(spot)
		for r := 0; r < height; r++ {
			if cells[r][sc] == ' ' {
				cells[r][sc] = '|'
			}
		}
	}

	for k, label := range s.Labels {
		ys := s.Y[label]
		for c := 0; c < width; c++ {
			y, ok := sampleAt(ys, float64(c)/float64(width-1))
			if !ok {
				continue
			}
			r := rowOf(y)
			cells[r][c] = seriesGlyphs[k%len(seriesGlyphs)]
			owner[r][c] = k
		}
	}

	top, bottom := FormatMoney(ymax, 0), FormatMoney(ymin, 0)
	axisWidth := max(len(top), len(bottom), 1)

	for r := 0; r < height; r++ {
		label := ""
		switch r {
		case 0:
			label = top
		case height - 1:
			label = bottom
		case zero:
			label = "0"
		}

		var b strings.Builder
		b.WriteString(PadLeft(label, axisWidth))
		b.WriteString(" |")
		for c := 0; c < width; c++ {
			ch := string(cells[r][c])
			switch {
			case owner[r][c] >= 0:
				ch = o.paint(ch, seriesPalette[owner[r][c]%len(seriesPalette)])
			case cells[r][c] != ' ':
				ch = o.DimText(ch)
			}
			b.WriteString(ch)
		}
		o.Println(strings.TrimRight(b.String(), " "))
	}

	o.Println(strings.Repeat(" ", axisWidth) + " +" + strings.Repeat("-", width))
	o.Println(strings.Repeat(" ", axisWidth+2) + xAxisLabels(xmin, xmax, spot, width, colOf))

	for k, label := range s.Labels {
		glyph := string(seriesGlyphs[k%len(seriesGlyphs)])
		o.Printf("  %s %s\n", o.paint(glyph, seriesPalette[k%len(seriesPalette)]), label)
	}
}

// sampleAt linearly interpolates ys at fraction f of its span.
func sampleAt(ys []float64, f float64) (float64, bool) {
	if len(ys) == 0 {
		return 0, false
	}
	if len(ys) == 1 {
		return ys[0], !math.IsNaN(ys[0])
	}
	pos := f * float64(len(ys)-1)
	i := int(math.Floor(pos))
	if i >= len(ys)-1 {
		return ys[len(ys)-1], !math.IsNaN(ys[len(ys)-1])
	}
	frac := pos - float64(i)
	y := ys[i] + (ys[i+1]-ys[i])*frac
	return y, !math.IsNaN(y) && !math.IsInf(y, 0)
}

// xAxisLabels places the min, spot and max prices under the plot.
func xAxisLabels(xmin, xmax, spot float64, width int, colOf func(float64) int) string {
	line := []rune(strings.Repeat(" ", width+12))
	put := func(col int, text string) {
		for i, r := range text {
			if col+i < len(line) {
				line[col+i] = r
			}
		}
	}

	left := FormatMoney(xmin, 2)
	right := FormatMoney(xmax, 2)
	put(0, left)
	if spot > xmin && spot < xmax {
		mid := FormatMoney(spot, 2)
		c := colOf(spot) - len(mid)/2
		if c > len(left) && c+len(mid) < width-len(right) {
			put(c, mid)
		}
	}
	put(max(width-len(right), len(left)+1), right)
	return strings.TrimRight(string(line), " ")
}
