package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/testutil"
)

func TestImage(t *testing.T) {
	a := testutil.Artifact("sorter", "conveyor", "router", "sorter")

	img, err := Image(a)
	require.NoError(t, err)
	assert.Equal(t, 3*Scale, img.Bounds().Dx())
	assert.Equal(t, 1*Scale, img.Bounds().Dy())

	// Tile centres are block-coloured, the gutter is background.
	assert.Equal(t, blockColor("conveyor"), img.RGBAAt(Scale/2-1, Scale/2))
	assert.Equal(t, background, img.RGBAAt(0, 0))
}

func TestImageFlipsY(t *testing.T) {
	a := &artifact.Artifact{Width: 1, Height: 2, Tiles: []artifact.Tile{{Block: "wall", X: 0, Y: 0}}}
	img, err := Image(a)
	require.NoError(t, err)
	assert.Equal(t, background, img.RGBAAt(Scale/2, Scale/2))
	assert.NotEqual(t, background, img.RGBAAt(Scale/2, Scale+Scale/2))
}

func TestImageRejectsBadSizes(t *testing.T) {
	_, err := Image(&artifact.Artifact{})
	assert.Error(t, err)

	_, err = Image(&artifact.Artifact{Width: MaxSide + 1, Height: 1})
	assert.Error(t, err)
}

func TestImageSkipsOutOfBoundsTiles(t *testing.T) {
	a := &artifact.Artifact{Width: 1, Height: 1, Tiles: []artifact.Tile{{Block: "wall", X: 4, Y: -1}}}
	_, err := Image(a)
	assert.NoError(t, err)
}

func TestPNG(t *testing.T) {
	data, err := PNG(testutil.Artifact("sorter"))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2*Scale, img.Bounds().Dx())
}

func TestNotchFollowsRotation(t *testing.T) {
	a := &artifact.Artifact{Width: 1, Height: 1, Tiles: []artifact.Tile{{Block: "conveyor", Rotation: 0}}}
	img, err := Image(a)
	require.NoError(t, err)
	c := blockColor("conveyor")
	assert.Equal(t, shade(c), img.RGBAAt(Scale-2, Scale/2))
	assert.Equal(t, c, img.RGBAAt(1, Scale/2))
}
