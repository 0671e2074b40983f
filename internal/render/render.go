// Package render draws schematic previews attached to replies.
//
// Blocks are drawn as flat squares coloured from their name, with a darker
// notch on the side they face. It is a preview, not a faithful sprite
// renderer.
package render

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/roach88/plent/internal/artifact"
)

const (
	// Scale is the pixel size of one tile.
	Scale = 8
	// MaxSide bounds the rendered image in tiles on either axis.
	MaxSide = 512
)

var background = color.RGBA{0x1e, 0x1e, 0x24, 0xff}

// Image draws a.
func Image(a *artifact.Artifact) (*image.RGBA, error) {
	w, h := int(a.Width), int(a.Height)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("render: empty schematic %dx%d", w, h)
	}
	if w > MaxSide || h > MaxSide {
		return nil, fmt.Errorf("render: schematic %dx%d exceeds %d tiles", w, h, MaxSide)
	}

	img := image.NewRGBA(image.Rect(0, 0, w*Scale, h*Scale))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)

	for _, t := range a.Tiles {
		x, y := int(t.X), int(t.Y)
		if x < 0 || y < 0 || x >= w || y >= h {
			continue
		}
		// Schematic y grows upwards; image y grows downwards.
		py := (h - 1 - y) * Scale
		px := x * Scale
		c := blockColor(t.Block)
		cell := image.Rect(px+1, py+1, px+Scale-1, py+Scale-1)
		draw.Draw(img, cell, &image.Uniform{c}, image.Point{}, draw.Src)
		draw.Draw(img, notch(cell, t.Rotation), &image.Uniform{shade(c)}, image.Point{}, draw.Src)
	}
	return img, nil
}

// PNG draws a and encodes it.
func PNG(a *artifact.Artifact) ([]byte, error) {
	img, err := Image(a)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func blockColor(block string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(block))
	v := h.Sum32()
	// Keep channels away from the background.
	return color.RGBA{
		R: 0x40 + uint8(v)%0xa0,
		G: 0x40 + uint8(v>>8)%0xa0,
		B: 0x40 + uint8(v>>16)%0xa0,
		A: 0xff,
	}
}

func shade(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R / 2, G: c.G / 2, B: c.B / 2, A: 0xff}
}

// notch is the strip of cell on the side rotation faces:
// 0 right, 1 up, 2 left, 3 down.
func notch(cell image.Rectangle, rotation uint8) image.Rectangle {
	const d = 2
	switch rotation % 4 {
	case 1:
		return image.Rect(cell.Min.X, cell.Min.Y, cell.Max.X, cell.Min.Y+d)
	case 2:
		return image.Rect(cell.Min.X, cell.Min.Y, cell.Min.X+d, cell.Max.Y)
	case 3:
		return image.Rect(cell.Min.X, cell.Max.Y-d, cell.Max.X, cell.Max.Y)
	default:
		return image.Rect(cell.Max.X-d, cell.Min.Y, cell.Max.X, cell.Max.Y)
	}
}
