package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLocalTextReadsSlidesInOrder(t *testing.T) {
	slides := make([]string, 11)
	for i := range slides {
		slides[i] = "Slide " + string(rune('A'+i))
	}
	text, err := extractLocalText(mimePPTX, buildPPTX(t, slides...))
	require.NoError(t, err)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "Slide A", lines[0])
	assert.Equal(t, "Slide B", lines[1])
	assert.Equal(t, "Slide K", lines[10])
}

func TestExtractLocalTextUnsupported(t *testing.T) {
	_, err := extractLocalText(mimePPT, []byte("binary"))
	assert.Error(t, err)
	_, err = extractLocalText(mimePDF, []byte("not a pdf"))
	assert.Error(t, err)
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("  Title\x00 here \n\n\t line   two \n")
	assert.Equal(t, "Title here\nline two", got)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "hi", truncateRunes("hi", 4))
}
