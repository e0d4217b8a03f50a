package detection

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor   = color.RGBA{R: 255, G: 56, B: 56, A: 255}
	labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const boxStroke = 2

// RenderOverlay draws each detection's outline and confidence onto a copy of src.
func RenderOverlay(src image.Image, result Result) image.Image {
	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	for i, box := range result.Boxes {
		rect := image.Rect(box.X1, box.Y1, box.X2, box.Y2).Add(bounds.Min).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		strokeRect(canvas, rect)

		label := "solar"
		if i < len(result.Confidences) {
			label = fmt.Sprintf("solar %.2f", result.Confidences[i])
		}
		drawLabel(canvas, face, rect, label)
	}
	return canvas
}

func strokeRect(dst *image.RGBA, rect image.Rectangle) {
	fill := image.NewUniform(boxColor)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+boxStroke),
		image.Rect(rect.Min.X, rect.Max.Y-boxStroke, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+boxStroke, rect.Max.Y),
		image.Rect(rect.Max.X-boxStroke, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(dst, edge.Intersect(rect), fill, image.Point{}, draw.Src)
	}
}

func drawLabel(dst *image.RGBA, face font.Face, rect image.Rectangle, label string) {
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()
	width := font.MeasureString(face, label).Ceil() + 4

	top := rect.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = rect.Min.Y
	}
	background := image.Rect(rect.Min.X, top, rect.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, background, image.NewUniform(boxColor), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(background.Min.X+2, background.Min.Y+metrics.Ascent.Ceil()),
	}
	drawer.DrawString(label)
}
