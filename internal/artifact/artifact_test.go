package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Forms(t *testing.T) {
	id := ID(1107438012345678901)
	assert.Equal(t, "1107438012345678901", id.String())
	assert.Equal(t, "f5e690138a0fc35", id.Hex())

	back, err := ParseHex(id.Hex())
	require.NoError(t, err)
	assert.Equal(t, id, back)

	_, err = ParseHex("not-hex")
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	a := sampleArtifact()
	b := sampleArtifact()
	assert.True(t, Equal(a, b))

	b.Tiles[3].Config = "goodbye"
	assert.False(t, Equal(a, b))

	c := sampleArtifact()
	c.Tags[TagName] = "other"
	assert.False(t, Equal(a, c))

	assert.True(t, Equal(&Artifact{}, &Artifact{Tags: map[string]string{}}))
	assert.False(t, Equal(a, nil))
	assert.True(t, Equal(nil, nil))
}

func TestClone_IsIndependent(t *testing.T) {
	a := sampleArtifact()
	c := a.Clone()
	c.Tags[TagName] = "changed"
	c.Tiles[0].Rotation = 0

	assert.Equal(t, "[accent]silicon smelter", a.Name())
	assert.Equal(t, uint8(1), a.Tiles[0].Rotation)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, `["a","b"]`, EncodeLabels([]string{"a", "b"}))
	assert.Equal(t, `["<unit>"]`, EncodeLabels([]string{"<unit>"}))

	assert.Equal(t, []string{"a", "b"}, DecodeLabels(`["a","b"]`))
	assert.Equal(t, []string{"a", "b"}, DecodeLabels(`[a, "b"]`))
	assert.Nil(t, DecodeLabels(`[]`))

	a := &Artifact{}
	a.SetLabels([]string{"x"})
	assert.Equal(t, []string{"x"}, a.Labels())
	a.SetLabels(nil)
	_, ok := a.Tags[TagLabels]
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	f1, err := Fingerprint(Msch{}, sampleArtifact())
	require.NoError(t, err)
	f2, err := Fingerprint(Msch{}, sampleArtifact())
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 64)

	other := sampleArtifact()
	other.Tags[TagName] = "different"
	f3, err := Fingerprint(Msch{}, other)
	require.NoError(t, err)
	assert.NotEqual(t, f1, f3)
}

func TestParseText(t *testing.T) {
	text, err := FormatText(Msch{}, sampleArtifact())
	require.NoError(t, err)

	t.Run("plain", func(t *testing.T) {
		got, err := ParseText(Msch{}, text)
		require.NoError(t, err)
		assert.True(t, Equal(sampleArtifact(), got))
	})

	t.Run("fenced", func(t *testing.T) {
		got, err := ParseText(Msch{}, "```\n"+text+"\n```")
		require.NoError(t, err)
		assert.True(t, Equal(sampleArtifact(), got))
	})

	t.Run("wrapped across lines", func(t *testing.T) {
		got, err := ParseText(Msch{}, text[:20]+"\n"+text[20:])
		require.NoError(t, err)
		assert.True(t, Equal(sampleArtifact(), got))
	})

	t.Run("ordinary chat", func(t *testing.T) {
		_, err := ParseText(Msch{}, "nice build!")
		assert.ErrorIs(t, err, ErrNoArtifact)
	})

	t.Run("broken base64", func(t *testing.T) {
		_, err := ParseText(Msch{}, inlinePrefix+"!!!")
		assert.Equal(t, Truncated, KindOf(err))
	})
}
