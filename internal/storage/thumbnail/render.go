package thumbnail

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Цвета заглушки видео.
var (
	background    = color.RGBA{R: 45, G: 45, B: 45, A: 255}
	gradientStart = color.RGBA{R: 0x4F, G: 0x46, B: 0xE5, A: 255}
	gradientEnd   = color.RGBA{R: 0x7C, G: 0x3A, B: 0xED, A: 255}
	screen        = color.RGBA{R: 0x1F, G: 0x29, B: 0x37, A: 255}
	white         = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// RenderPlaceholder рисует заглушку видео. Геометрия задана для 200×200
// и масштабируется пропорционально размерам style.
func RenderPlaceholder(style Style) *image.RGBA {
	w, h := style.Width, style.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	sx := func(v float64) float64 { return v * float64(w) / 200 }
	sy := func(v float64) float64 { return v * float64(h) / 200 }

	// Диагональный градиент с прозрачностью 0.8 поверх тёмного фона
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := float64(x+y) / float64(w+h-2)
			c := lerp(gradientStart, gradientEnd, t)
			img.SetRGBA(x, y, blend(background, c, 0.8))
		}
	}

	fillRoundedRect(img, sx(40), sy(60), sx(120), sy(80), sx(8), white, 0.9)
	fillRoundedRect(img, sx(50), sy(70), sx(100), sy(60), sx(4), screen, 1)
	fillCircle(img, sx(100), sy(100), sx(20), white, 0.95)
	fillTriangle(img,
		[2]float64{sx(92), sy(88)},
		[2]float64{sx(92), sy(112)},
		[2]float64{sx(116), sy(100)},
		screen,
	)

	if style.Label != "" {
		drawLabel(img, style.Label, int(sx(100)), int(sy(170)))
	}
	return img
}

// Cover масштабирует изображение так, чтобы оно покрывало w×h,
// и обрезает излишек по центру.
func Cover(src image.Image, w, h int) *image.RGBA {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	crop := b
	// Сравнение пропорций sw/sh и w/h без деления
	if sw*h > sh*w {
		cw := sh * w / h
		x0 := b.Min.X + (sw-cw)/2
		crop = image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	} else if sw*h < sh*w {
		ch := sw * h / w
		y0 := b.Min.Y + (sh-ch)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

// blend накладывает fg с непрозрачностью alpha на bg.
func blend(bg, fg color.RGBA, alpha float64) color.RGBA {
	return lerp(bg, fg, alpha)
}

func paint(img *image.RGBA, x, y int, c color.RGBA, alpha float64) {
	if !(image.Point{X: x, Y: y}).In(img.Rect) {
		return
	}
	if alpha >= 1 {
		img.SetRGBA(x, y, c)
		return
	}
	img.SetRGBA(x, y, blend(img.RGBAAt(x, y), c, alpha))
}

func fillRoundedRect(img *image.RGBA, x, y, w, h, r float64, c color.RGBA, alpha float64) {
	for py := int(y); py < int(y+h); py++ {
		for px := int(x); px < int(x+w); px++ {
			cx, cy := float64(px)+0.5, float64(py)+0.5
			// Ближайшая точка внутреннего прямоугольника без скруглений
			nx := clamp(cx, x+r, x+w-r)
			ny := clamp(cy, y+r, y+h-r)
			if (cx-nx)*(cx-nx)+(cy-ny)*(cy-ny) <= r*r {
				paint(img, px, py, c, alpha)
			}
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, r float64, c color.RGBA, alpha float64) {
	for py := int(cy - r); py <= int(cy+r); py++ {
		for px := int(cx - r); px <= int(cx+r); px++ {
			dx, dy := float64(px)+0.5-cx, float64(py)+0.5-cy
			if dx*dx+dy*dy <= r*r {
				paint(img, px, py, c, alpha)
			}
		}
	}
}

func fillTriangle(img *image.RGBA, a, b, p [2]float64, c color.RGBA) {
	minX, maxX := min(a[0], b[0], p[0]), max(a[0], b[0], p[0])
	minY, maxY := min(a[1], b[1], p[1]), max(a[1], b[1], p[1])
	edge := func(u, v [2]float64, x, y float64) float64 {
		return (v[0]-u[0])*(y-u[1]) - (v[1]-u[1])*(x-u[0])
	}
	for py := int(minY); py <= int(maxY); py++ {
		for px := int(minX); px <= int(maxX); px++ {
			x, y := float64(px)+0.5, float64(py)+0.5
			e1, e2, e3 := edge(a, b, x, y), edge(b, p, x, y), edge(p, a, x, y)
			if (e1 >= 0 && e2 >= 0 && e3 >= 0) || (e1 <= 0 && e2 <= 0 && e3 <= 0) {
				paint(img, px, py, c, 1)
			}
		}
	}
}

// drawLabel выводит текст с центром по x и базовой линией на y.
func drawLabel(img *image.RGBA, label string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(white),
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(label)
	d.Dot = fixed.Point26_6{X: fixed.I(x) - width/2, Y: fixed.I(y)}
	d.DrawString(label)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
