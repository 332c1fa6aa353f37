package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_ShortTextSingleSpan(t *testing.T) {
	s := NewSplitter(100, 10)

	spans := s.Split("a short document body")

	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].Index)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len([]rune("a short document body")), spans[0].End)
	assert.Equal(t, "a short document body", spans[0].Text)
}

func TestSplit_BlankTextYieldsNothing(t *testing.T) {
	s := NewSplitter(100, 10)

	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
}

func TestSplit_WindowsOverlapAndCoverEverything(t *testing.T) {
	s := NewSplitter(10, 4)
	text := strings.Repeat("abcdef", 10) // 60 chars

	spans := s.Split(text)

	require.Greater(t, len(spans), 1)
	runes := []rune(text)
	for i, sp := range spans {
		assert.Equal(t, i, sp.Index)
		assert.Equal(t, string(runes[sp.Start:sp.End]), sp.Text, "offsets map back to the source")
		if i > 0 {
			assert.Equal(t, 4, spans[i-1].End-sp.Start, "consecutive windows overlap")
		}
	}
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len(runes), spans[len(spans)-1].End, "last window reaches the end")
}

func TestSplit_MultibyteOffsetsAreRunePositions(t *testing.T) {
	s := NewSplitter(4, 1)
	text := "héllø wörld"

	spans := s.Split(text)

	runes := []rune(text)
	for _, sp := range spans {
		assert.Equal(t, string(runes[sp.Start:sp.End]), sp.Text)
	}
}

func TestNewSplitter_ClampsDegenerateOverlap(t *testing.T) {
	s := NewSplitter(8, 8) // overlap == window would never advance

	spans := s.Split(strings.Repeat("x", 40))
	require.NotEmpty(t, spans)
	assert.Equal(t, len([]rune(strings.Repeat("x", 40))), spans[len(spans)-1].End)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "hello", Snippet("  hello  ", 10))
	assert.Equal(t, "hel", Snippet("hello", 3))
	assert.Equal(t, "", Snippet("hello", 0))
	assert.Equal(t, "hél", Snippet("héllø", 3), "truncation respects rune boundaries")
}
