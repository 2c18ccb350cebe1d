package controller

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jansc/ncgopher/internal/bookmarks"
	"github.com/jansc/ncgopher/internal/fetch"
	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/history"
	"github.com/jansc/ncgopher/internal/page"
	"github.com/jansc/ncgopher/internal/settings"
	"github.com/jansc/ncgopher/internal/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	bm, err := bookmarks.Open(filepath.Join(t.TempDir(), "bookmarks.yaml"))
	require.NoError(t, err)
	ts, err := trust.Open(filepath.Join(t.TempDir(), "hosts"))
	require.NoError(t, err)
	return New(gurl.URL{}, hist, bm, ts, nil, settings.Defaults())
}

func TestStalePageLoadedMsgIsDropped(t *testing.T) {
	m := newTestModel(t)
	m.generation = 5
	m.url = gurl.URL{Scheme: "gemini", Host: "example.org", Path: "old"}

	updated, cmd := m.Update(pageLoadedMsg{
		gen:    3,
		target: gurl.URL{Scheme: "gemini", Host: "example.org", Path: "new"},
		result: fetch.Result{Kind: fetch.ResultPage, Page: page.Page{Title: "New"}},
	})
	next := updated.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, "old", next.url.Path)
}

func TestFreshPageLoadedMsgUpdatesCurrent(t *testing.T) {
	m := newTestModel(t)
	m.generation = 1
	m.url = gurl.URL{Scheme: "gemini", Host: "example.org", Path: "old"}

	target := gurl.URL{Scheme: "gemini", Host: "example.org", Path: "new"}
	updated, _ := m.Update(pageLoadedMsg{
		gen:         1,
		target:      target,
		fromURL:     m.url,
		pushCurrent: true,
		result:      fetch.Result{Kind: fetch.ResultPage, Page: page.Page{Title: "New"}},
	})
	next := updated.(Model)
	assert.Equal(t, "new", next.url.Path)
	assert.Equal(t, "New", next.current.Title)
	require.Len(t, next.history, 1)
	assert.Equal(t, "old", next.history[0].Path)
}

func TestTrustPromptRoutesReplyBack(t *testing.T) {
	m := newTestModel(t)
	m.generation = 2

	reply := make(chan bool, 1)
	updated, _ := m.Update(trustPromptMsg{gen: 2, host: "example.org", port: 1965, newFP: "aa:bb", reply: reply})
	next := updated.(Model)
	require.NotNil(t, next.pendingTrust)
	assert.Equal(t, stateSuspendedTrust, next.state)

	final, _ := next.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	got := final.(Model)
	assert.Nil(t, got.pendingTrust)
	select {
	case v := <-reply:
		assert.True(t, v)
	default:
		t.Fatal("expected a reply on the channel")
	}
}

func TestTrustPromptFromStaleGenerationAutoRejects(t *testing.T) {
	m := newTestModel(t)
	m.generation = 9

	reply := make(chan bool, 1)
	m.Update(trustPromptMsg{gen: 1, host: "example.org", port: 1965, newFP: "aa:bb", reply: reply})

	select {
	case v := <-reply:
		assert.False(t, v)
	default:
		t.Fatal("expected an immediate rejection reply for a stale generation")
	}
}

func TestBackWithEmptyHistoryIsNoOp(t *testing.T) {
	m := newTestModel(t)
	updated, cmd := m.navigateBack()
	next := updated.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, "No previous page", next.status)
}

func TestMoveCursorSkipsNonLinkLines(t *testing.T) {
	m := newTestModel(t)
	target1 := gurl.URL{Scheme: "gemini", Host: "example.org", Path: "a"}
	target2 := gurl.URL{Scheme: "gemini", Host: "example.org", Path: "b"}
	m.current = page.Page{Lines: []page.Line{
		page.TextLine("intro"),
		page.LinkLine(target1, "A", page.KindGeminiLink),
		page.TextLine("middle"),
		page.LinkLine(target2, "B", page.KindGeminiLink),
	}}
	m.cursor = 0

	m.moveCursor(1)
	assert.Equal(t, 1, m.cursor)
	m.moveCursor(1)
	assert.Equal(t, 3, m.cursor)
	m.moveCursor(1)
	assert.Equal(t, 3, m.cursor, "cursor should clamp at the last link")
}
