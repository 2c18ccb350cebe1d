// Package controller is the navigation state machine and message hub: it
// owns the current page, the history stack, the generation counter used to
// drop stale fetch responses, and the routing between key input and the
// protocol fetchers. It is implemented as a bubbletea tea.Model — the
// terminal-UI thread realisation of the controller/UI split.
package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jansc/ncgopher/internal/applog"
	"github.com/jansc/ncgopher/internal/bookmarks"
	"github.com/jansc/ncgopher/internal/clientcert"
	"github.com/jansc/ncgopher/internal/fetch"
	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/history"
	"github.com/jansc/ncgopher/internal/page"
	"github.com/jansc/ncgopher/internal/settings"
	"github.com/jansc/ncgopher/internal/trust"
)

// runState is the Idle/Dispatching/Suspended/Rendering machine from the
// concurrency model. Rendering is folded into Idle here: View() always
// renders the current model snapshot, there is no separate render phase to
// block on.
type runState int

const (
	stateIdle runState = iota
	stateDispatching
	stateSuspendedTrust
	stateSuspendedQuery
)

// pageLoadedMsg carries a completed fetch back to Update. gen must match the
// model's current generation or the result is dropped as stale.
type pageLoadedMsg struct {
	gen         int64
	target      gurl.URL
	fromURL     gurl.URL
	pushCurrent bool
	result      fetch.Result
	err         error
}

// trustPromptMsg is sent by a worker's TrustDecider when the trust store
// returns New or Mismatch. The worker blocks on reply until Update answers
// it from a key press.
type trustPromptMsg struct {
	gen   int64
	host  string
	port  int
	oldFP *string
	newFP string
	reply chan bool
}

type downloadProgressMsg struct {
	gen          int64
	bytesWritten int64
}

// Model is the controller's bubbletea state.
type Model struct {
	program *tea.Program

	current page.Page
	url     gurl.URL
	history []gurl.URL

	generation int64
	state      runState

	cursor int
	scroll int

	pendingTrust *trustPromptMsg
	queryTarget  gurl.URL
	queryPrompt  string
	queryInput   string

	historyStore  *history.Store
	bookmarkStore *bookmarks.Store
	trustStore    *trust.Store
	certStore     *clientcert.Store
	settings      settings.Settings

	status       string
	err          error
	bytesWritten int64
	width        int
	height       int
	quitting     bool
}

// New builds the initial controller model. startURL may be the zero value,
// in which case Init navigates to settings.Homepage instead.
func New(startURL gurl.URL, hist *history.Store, bm *bookmarks.Store, ts *trust.Store, cs *clientcert.Store, s settings.Settings) Model {
	return Model{
		url:           startURL,
		historyStore:  hist,
		bookmarkStore: bm,
		trustStore:    ts,
		certStore:     cs,
		settings:      s,
	}
}

// SetProgram must be called once, after tea.NewProgram(m), so worker
// TrustDecider callbacks can route AskTrust prompts back into Update without
// a manual channel plumbed through every fetch call.
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
}

func (m Model) Init() tea.Cmd {
	target := m.url
	if target.Scheme == "" {
		parsed, err := gurl.Parse(m.settings.Homepage)
		if err != nil {
			return nil
		}
		target = parsed
	}
	// Init runs on a copy of the model, so the generation bump navigateCmd
	// makes here is not kept. Step back first so the startup fetch carries
	// the model's current generation instead of being dropped as stale.
	m.generation--
	return m.navigateCmd(target, false)
}

// navigateCmd bumps the generation and returns the tea.Cmd that performs the
// fetch. It updates m.generation, m.state and m.status through its pointer
// receiver; callers return the updated model from Update so the change is
// kept alongside the returned Cmd. pushCurrent controls whether the page being left is
// pushed onto the history stack once the fetch succeeds: true for forward
// navigation (following a link, opening a URL), false for Back and Reload,
// which must not grow the stack.
func (m *Model) navigateCmd(target gurl.URL, pushCurrent bool) tea.Cmd {
	m.generation++
	gen := m.generation
	m.state = stateDispatching
	m.status = "Fetching " + target.Unicode() + "…"
	fromURL := m.url

	program := m.program
	store := m.trustStore
	certs := m.certStore
	timeout := fetch.DefaultTimeout
	downloadDir := m.settings.DownloadPath
	if downloadDir == "" {
		downloadDir = "."
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		decide := func(host string, port int, oldFP *string, newFP string) bool {
			if program == nil {
				return false
			}
			reply := make(chan bool, 1)
			program.Send(trustPromptMsg{gen: gen, host: host, port: port, oldFP: oldFP, newFP: newFP, reply: reply})
			return <-reply
		}

		sink := newLazyFileSink(downloadDir, downloadName(target))
		defer sink.Close()
		progress := func(written int64) {
			if program != nil {
				program.Send(downloadProgressMsg{gen: gen, bytesWritten: written})
			}
		}

		var result fetch.Result
		var err error
		switch target.Scheme {
		case "gopher", "gophers":
			result, err = fetch.Gopher(ctx, target, store, decide, sink, progress)
		case "gemini":
			result, err = fetch.Gemini(ctx, target, store, decide, certs, sink, progress)
		case "finger":
			result, err = fetch.Finger(ctx, target)
		case "about":
			result = aboutPage(target)
		default:
			err = fmt.Errorf("unsupported scheme %q", target.Scheme)
		}
		return pageLoadedMsg{gen: gen, target: target, fromURL: fromURL, pushCurrent: pushCurrent, result: result, err: err}
	}
}

// downloadName picks the destination file name for a binary fetch: the last
// path segment, or "download" if the URL has none.
func downloadName(u gurl.URL) string {
	name := filepath.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}

// recordableInHistory reports whether u may be written to the visit history.
// Binary downloads never reach here (ResultDownloadDone returns earlier), so
// this only needs to exclude query item-types and non-gopher/gemini/finger
// schemes such as the "about" pseudo-scheme.
func recordableInHistory(u gurl.URL) bool {
	switch u.Scheme {
	case "gopher", "gophers", "gemini", "finger":
	default:
		return false
	}
	return !u.ItemType.IsQuery()
}

// lazyFileSink defers creating its destination file until the first Write,
// so plain-text and menu fetches — which never write to their sink — never
// touch the filesystem.
type lazyFileSink struct {
	dir  string
	name string
	f    *os.File
	err  error
}

func newLazyFileSink(dir, name string) *lazyFileSink {
	return &lazyFileSink{dir: dir, name: name}
}

func (s *lazyFileSink) Write(p []byte) (int, error) {
	if s.f == nil && s.err == nil {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			s.err = err
			return 0, err
		}
		f, err := os.Create(filepath.Join(s.dir, s.name))
		if err != nil {
			s.err = err
			return 0, err
		}
		s.f = f
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.f.Write(p)
}

func (s *lazyFileSink) Close() error {
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}

func aboutPage(u gurl.URL) fetch.Result {
	var lines []page.Line
	switch u.Opaque {
	case "help":
		lines = []page.Line{
			page.TextLine("ncgopher"),
			page.TextLine(""),
			page.TextLine("A terminal client for Gopher, Gemini and Finger."),
			page.TextLine("Press the configured keybindings to navigate; see config.yaml."),
		}
	default:
		lines = []page.Line{page.TextLine("Unknown about: page: " + u.Opaque)}
	}
	return fetch.Result{Kind: fetch.ResultPage, Page: page.Page{URL: u, Title: "about:" + u.Opaque, Lines: lines}}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case trustPromptMsg:
		if msg.gen != m.generation {
			msg.reply <- false
			return m, nil
		}
		m.pendingTrust = &msg
		m.state = stateSuspendedTrust
		if msg.oldFP != nil {
			m.status = fmt.Sprintf("Certificate for %s:%d changed (was %s, now %s). Accept? [y/n]", msg.host, msg.port, *msg.oldFP, msg.newFP)
		} else {
			m.status = fmt.Sprintf("New certificate for %s:%d: %s. Accept? [y/n]", msg.host, msg.port, msg.newFP)
		}
		return m, nil

	case downloadProgressMsg:
		if msg.gen == m.generation {
			m.bytesWritten = msg.bytesWritten
			m.status = fmt.Sprintf("Downloading… %d bytes", msg.bytesWritten)
		}
		return m, nil

	case pageLoadedMsg:
		if msg.gen != m.generation {
			applog.Warn("controller.stale_response_dropped", "gen", msg.gen, "current", m.generation)
			return m, nil
		}
		m.state = stateIdle
		m.pendingTrust = nil
		if msg.err != nil {
			m.err = msg.err
			m.status = msg.err.Error()
			return m, nil
		}
		switch msg.result.Kind {
		case fetch.ResultNeedQuery:
			m.state = stateSuspendedQuery
			m.queryTarget = msg.target
			m.queryPrompt = msg.result.QueryPrompt
			m.queryInput = ""
			m.status = msg.result.QueryPrompt + ": "
			return m, nil
		case fetch.ResultDownloadDone:
			m.status = fmt.Sprintf("Saved %s (%d bytes)", msg.target.Unicode(), msg.result.BytesWritten)
			return m, nil
		default:
			if msg.pushCurrent && msg.fromURL.Scheme != "" {
				m.history = append(m.history, msg.fromURL)
			}
			m.url = msg.target
			m.current = msg.result.Page
			m.cursor = 0
			m.scroll = 0
			m.err = nil
			m.status = msg.target.Unicode()
			if m.historyStore != nil && !m.settings.DisableHistory && recordableInHistory(msg.target) {
				if err := m.historyStore.RecordVisit(msg.target.String(), msg.result.Page.Title); err != nil {
					applog.Error("controller.record_visit_failed", err)
				}
			}
			return m, nil
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == stateSuspendedTrust {
		switch msg.String() {
		case "y", "Y":
			m.pendingTrust.reply <- true
			m.pendingTrust = nil
			m.state = stateDispatching
			m.status = "Fetching…"
		case "n", "N", "esc":
			m.pendingTrust.reply <- false
			m.pendingTrust = nil
			m.state = stateDispatching
			m.status = "Certificate rejected"
		}
		return m, nil
	}

	if m.state == stateSuspendedQuery {
		switch msg.String() {
		case "enter":
			target := m.queryTarget
			target.Query = m.queryInput
			m.state = stateIdle
			cmd := m.navigateCmd(target, true)
			return m, cmd
		case "esc":
			m.state = stateIdle
			m.status = ""
		case "backspace":
			if len(m.queryInput) > 0 {
				m.queryInput = m.queryInput[:len(m.queryInput)-1]
			}
		default:
			if len(msg.Runes) > 0 {
				m.queryInput += string(msg.Runes)
			}
		}
		m.status = m.queryPrompt + ": " + m.queryInput
		return m, nil
	}

	kb := m.settings.Keybindings
	key := msg.String()

	switch {
	case key == "ctrl+c" || key == kb.Quit:
		m.quitting = true
		return m, tea.Quit

	case key == kb.Back:
		return m.navigateBack()

	case key == kb.Reload:
		if m.url.Scheme != "" {
			cmd := m.navigateCmd(m.url, false)
			return m, cmd
		}

	case key == kb.NextLink:
		m.moveCursor(1)

	case key == kb.PrevLink:
		m.moveCursor(-1)

	case key == kb.LineDown:
		m.scroll++

	case key == kb.LineUp:
		if m.scroll > 0 {
			m.scroll--
		}

	case key == kb.PageDown:
		m.scroll += m.visibleHeight()

	case key == "enter":
		if line, ok := m.selectedLink(); ok {
			cmd := m.navigateCmd(*line.Target, true)
			return m, cmd
		}

	case key == kb.AddBookmark:
		if m.bookmarkStore != nil && m.url.Scheme != "" {
			if err := m.bookmarkStore.Add(m.current.Title, m.url.String(), nil); err != nil {
				m.status = err.Error()
			} else {
				m.status = "Bookmarked " + m.url.Unicode()
			}
		}

	case key == kb.Save:
		return m, m.saveCmd()

	case key == kb.InfoLink:
		if line, ok := m.selectedLink(); ok {
			m.status = line.Target.Unicode()
		}
	}

	return m, nil
}

func (m *Model) navigateBack() (tea.Model, tea.Cmd) {
	if len(m.history) == 0 {
		m.status = "No previous page"
		return *m, nil
	}
	target := m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]
	cmd := m.navigateCmd(target, false)
	return *m, cmd
}

// moveCursor advances the selected-link cursor by delta link positions. If
// the cursor is not currently on a link line (page just loaded, or the
// previous selection scrolled out), it lands on the nearest link in the
// direction of travel instead of skipping past it.
func (m *Model) moveCursor(delta int) {
	links := m.linkIndexes()
	if len(links) == 0 {
		return
	}

	for i, idx := range links {
		if idx == m.cursor {
			pos := i + delta
			if pos < 0 {
				pos = 0
			}
			if pos >= len(links) {
				pos = len(links) - 1
			}
			m.cursor = links[pos]
			return
		}
	}

	if delta >= 0 {
		for _, idx := range links {
			if idx >= m.cursor {
				m.cursor = idx
				return
			}
		}
		m.cursor = links[len(links)-1]
		return
	}
	for i := len(links) - 1; i >= 0; i-- {
		if links[i] <= m.cursor {
			m.cursor = links[i]
			return
		}
	}
	m.cursor = links[0]
}

func (m Model) linkIndexes() []int {
	var out []int
	for i, l := range m.current.Lines {
		if l.IsLink() {
			out = append(out, i)
		}
	}
	return out
}

func (m Model) selectedLink() (page.Line, bool) {
	if m.cursor < 0 || m.cursor >= len(m.current.Lines) {
		return page.Line{}, false
	}
	l := m.current.Lines[m.cursor]
	if !l.IsLink() {
		return page.Line{}, false
	}
	return l, true
}

func (m Model) visibleHeight() int {
	h := m.height - 2
	if h < 1 {
		return 1
	}
	return h
}

func (m Model) saveCmd() tea.Cmd {
	gen := m.generation
	dir := m.settings.DownloadPath
	if dir == "" {
		dir = "."
	}
	name := filepath.Base(strings.TrimSuffix(m.url.Path, "/"))
	if name == "" || name == "." {
		name = "index"
	}
	target := m.url
	var body strings.Builder
	if m.current.Title != "" {
		body.WriteString(m.current.Title)
		body.WriteString("\n\n")
	}
	for _, l := range m.current.Lines {
		body.WriteString(l.Text)
		body.WriteByte('\n')
	}
	content := body.String()

	return func() tea.Msg {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return pageLoadedMsg{gen: gen, target: target, err: err}
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return pageLoadedMsg{gen: gen, target: target, err: err}
		}
		return pageLoadedMsg{gen: gen, target: target, result: fetch.Result{
			Kind:         fetch.ResultDownloadDone,
			BytesWritten: int64(len(content)),
		}}
	}
}

var (
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	linkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true).Reverse(true)
	preStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	titleStyle   = lipgloss.NewStyle().Bold(true)
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.current.Title))
	b.WriteByte('\n')
	b.WriteByte('\n')

	lines := m.current.Lines
	start := m.scroll
	if start > len(lines) {
		start = len(lines)
	}
	end := start + m.visibleHeight()
	if end > len(lines) {
		end = len(lines)
	}

	for i := start; i < end; i++ {
		l := lines[i]
		text := l.Text
		switch {
		case l.IsLink():
			text = linkStyle.Render("→ " + text)
		case l.Preformatted:
			text = preStyle.Render(text)
		}
		if i == m.cursor && l.IsLink() {
			text = cursorStyle.Render("→ " + l.Text)
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	status := m.status
	if m.err != nil {
		b.WriteString(errStyle.Render(status))
	} else {
		b.WriteString(statusStyle.Render(status))
	}
	return b.String()
}
