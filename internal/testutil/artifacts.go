package testutil

import (
	"testing"

	"github.com/roach88/plent/internal/artifact"
)

// Artifact builds a small schematic named name. Distinct names give
// distinct fingerprints; extra blocks change the structure.
func Artifact(name string, blocks ...string) *artifact.Artifact {
	if len(blocks) == 0 {
		blocks = []string{"conveyor", "router"}
	}
	a := &artifact.Artifact{
		Width:  int16(len(blocks)),
		Height: 1,
		Tags:   map[string]string{artifact.TagName: name},
	}
	for i, b := range blocks {
		a.Tiles = append(a.Tiles, artifact.Tile{Block: b, X: int16(i), Rotation: uint8(i % 4)})
	}
	return a
}

// Inline renders a in the base64 form users paste into chat.
func Inline(t testing.TB, a *artifact.Artifact) string {
	t.Helper()
	s, err := artifact.FormatText(artifact.Msch{}, a)
	if err != nil {
		t.Fatalf("format artifact: %v", err)
	}
	return s
}

// Encoded returns the msch bytes of a.
func Encoded(t testing.TB, a *artifact.Artifact) []byte {
	t.Helper()
	raw, err := artifact.Msch{}.Encode(a)
	if err != nil {
		t.Fatalf("encode artifact: %v", err)
	}
	return raw
}
