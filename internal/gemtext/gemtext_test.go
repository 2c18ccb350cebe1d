package gemtext

import (
	"testing"

	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, s string) gurl.URL {
	u, err := gurl.Parse(s)
	require.NoError(t, err)
	return u
}

func TestParseScenario(t *testing.T) {
	u := mustURL(t, "gemini://example.org/")
	body := "# Title\r\n=> other.gmi Next\r\n"
	p := Parse(u, []byte(body))

	assert.Equal(t, "Title", p.Title)
	require.Len(t, p.Lines, 2)
	require.True(t, p.Lines[1].IsLink())
	assert.Equal(t, "gemini://example.org/other.gmi", p.Lines[1].Target.String())
	assert.Equal(t, "Next", p.Lines[1].Label)
}

func TestParseLinkWithoutLabelUsesURL(t *testing.T) {
	u := mustURL(t, "gemini://example.org/")
	body := "=> gemini://example.org/x\r\n"
	p := Parse(u, []byte(body))
	require.Len(t, p.Lines, 1)
	assert.Equal(t, "gemini://example.org/x", p.Lines[0].Label)
}

func TestPreformattedToggle(t *testing.T) {
	u := mustURL(t, "gemini://example.org/")
	body := "before\n```\ncode line 1\ncode line 2\n```\nafter\n"
	p := Parse(u, []byte(body))

	var pre []string
	for _, l := range p.Lines {
		if l.Preformatted {
			pre = append(pre, l.Text)
		}
	}
	assert.Equal(t, []string{"code line 1", "code line 2"}, pre)
}

func TestFixedPointOnRepeatedParse(t *testing.T) {
	u := mustURL(t, "gemini://example.org/")
	body := []byte("# Heading\n* item one\n> a quote\n```\npre\n```\n")

	first := Parse(u, body)
	second := Parse(u, body)

	require.Equal(t, len(first.Lines), len(second.Lines))
	for i := range first.Lines {
		assert.Equal(t, first.Lines[i].Text, second.Lines[i].Text)
		assert.Equal(t, first.Lines[i].Preformatted, second.Lines[i].Preformatted)
	}
}
