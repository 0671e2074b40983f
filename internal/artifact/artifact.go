package artifact

import (
	"fmt"
	"maps"
	"reflect"
	"strconv"
)

// Well-known tag keys.
const (
	TagName        = "name"
	TagDescription = "description"
	TagLabels      = "labels"
)

// ID identifies an artifact. It is the id of the chat message the artifact
// was first posted in.
type ID uint64

// Hex returns the lowercase hexadecimal form used for file names and
// commit messages.
func (id ID) Hex() string {
	return strconv.FormatUint(uint64(id), 16)
}

// String returns the decimal form used as the ownership index key.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseHex parses the file-name form of an id.
func ParseHex(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse artifact id %q: %w", s, err)
	}
	return ID(v), nil
}

// Artifact is a decoded schematic.
type Artifact struct {
	Width  int16
	Height int16
	Tags   map[string]string
	Tiles  []Tile
}

// Tile is one block placement inside a schematic.
type Tile struct {
	Block    string
	X, Y     int16
	Config   any
	Rotation uint8
}

// Name returns the artifact's display name, or "" when untagged.
func (a *Artifact) Name() string {
	return a.Tags[TagName]
}

// Description returns the optional description tag.
func (a *Artifact) Description() string {
	return a.Tags[TagDescription]
}

// Labels returns the decoded label-list tag.
func (a *Artifact) Labels() []string {
	raw, ok := a.Tags[TagLabels]
	if !ok {
		return nil
	}
	return DecodeLabels(raw)
}

// SetLabels overwrites the label-list tag. A nil or empty list removes it.
func (a *Artifact) SetLabels(labels []string) {
	if a.Tags == nil {
		a.Tags = make(map[string]string)
	}
	if len(labels) == 0 {
		delete(a.Tags, TagLabels)
		return
	}
	a.Tags[TagLabels] = EncodeLabels(labels)
}

// Clone returns a deep copy safe to mutate.
func (a *Artifact) Clone() *Artifact {
	c := &Artifact{
		Width:  a.Width,
		Height: a.Height,
		Tags:   maps.Clone(a.Tags),
		Tiles:  make([]Tile, len(a.Tiles)),
	}
	if c.Tags == nil {
		c.Tags = make(map[string]string)
	}
	copy(c.Tiles, a.Tiles)
	return c
}

// Equal reports whether a and b describe the same schematic. Nil and
// empty collections compare equal.
func Equal(a, b *Artifact) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Width != b.Width || a.Height != b.Height {
		return false
	}
	if len(a.Tags) != len(b.Tags) || len(a.Tiles) != len(b.Tiles) {
		return false
	}
	for k, v := range a.Tags {
		if bv, ok := b.Tags[k]; !ok || bv != v {
			return false
		}
	}
	for i := range a.Tiles {
		x, y := a.Tiles[i], b.Tiles[i]
		if x.Block != y.Block || x.X != y.X || x.Y != y.Y || x.Rotation != y.Rotation {
			return false
		}
		if !reflect.DeepEqual(x.Config, y.Config) {
			return false
		}
	}
	return true
}

// EqualIgnoringLabels compares two artifacts without their label tags.
// Stored artifacts carry labels added at write time, so exact searches
// against user input use this form.
func EqualIgnoringLabels(a, b *Artifact) bool {
	if a == nil || b == nil {
		return a == b
	}
	x, y := a.Clone(), b.Clone()
	delete(x.Tags, TagLabels)
	delete(y.Tags, TagLabels)
	return Equal(x, y)
}

// Codec converts between artifacts and their stored byte form.
type Codec interface {
	Decode(data []byte) (*Artifact, error)
	Encode(a *Artifact) ([]byte, error)
	// Ext is the file extension without the leading dot.
	Ext() string
}
