// Package tui renders one message thread in the terminal and keeps it in
// sync with a threadsync session.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/tOgg1/dmsync/internal/events"
	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/models"
	"github.com/tOgg1/dmsync/internal/threadsync"
)

const (
	eventBuffer    = 64
	statusInterval = 250 * time.Millisecond
	chromeLines    = 2
)

// Session is the part of threadsync.Session the view needs.
type Session interface {
	Thread() models.Thread
	Snapshot() threadsync.Snapshot
	SeedResult() threadsync.MergeResult
	LoadMore() bool
	Refresh() bool
	Loading() threadsync.LoadingState
	Exhausted() bool
	Subscribe(id string, filter events.Filter, handler events.EventHandler) error
	Unsubscribe(id string) error
}

// Config configures the thread view.
type Config struct {
	Theme          string
	ShowTimestamps bool
}

type sessionEventMsg struct {
	event *models.Event
}

type statusTickMsg struct{}

// Model is the bubbletea model for a single thread.
type Model struct {
	session  Session
	thread   models.Thread
	styles   styles
	showTime bool
	now      func() time.Time

	subID  string
	events chan *models.Event

	// messages is oldest first, the order rows are drawn in.
	messages   []models.Message
	version    uint64
	loading    threadsync.LoadingState
	exhausted  bool
	violations int
	lastErr    string

	width    int
	height   int
	selected int
	follow   bool
	top      int
}

// NewModel subscribes to session events and builds the initial view.
func NewModel(session Session, cfg Config) (*Model, error) {
	m := &Model{
		session:  session,
		thread:   session.Thread(),
		styles:   newStyles(ThemeByName(cfg.Theme)),
		showTime: cfg.ShowTimestamps,
		now:      time.Now,
		subID:    "tui-" + uuid.NewString(),
		events:   make(chan *models.Event, eventBuffer),
		follow:   true,
		width:    80,
		height:   24,
	}
	// Snapshot rejections were published before this subscription existed.
	m.violations = len(session.SeedResult().Rejected)

	err := session.Subscribe(m.subID, events.Filter{}, func(event *models.Event) {
		select {
		case m.events <- event:
		default:
			// The status tick re-reads the snapshot, so a dropped event only delays a redraw.
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to session events: %w", err)
	}

	m.reload()
	return m, nil
}

// Close removes the event subscription.
func (m *Model) Close() {
	_ = m.session.Unsubscribe(m.subID)
}

// Run starts the full-screen thread view and blocks until the user quits or
// ctx is cancelled.
func Run(ctx context.Context, session Session, cfg Config) error {
	model, err := NewModel(session, cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEventCmd(), statusTickCmd())
}

func (m *Model) waitForEventCmd() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return nil
		}
		return sessionEventMsg{event: event}
	}
}

func statusTickCmd() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case sessionEventMsg:
		m.applyEvent(typed.event)
		return m, m.waitForEventCmd()
	case statusTickMsg:
		m.reload()
		return m, statusTickCmd()
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) applyEvent(event *models.Event) {
	if event == nil {
		return
	}
	switch event.Type {
	case models.EventTypeListChanged:
		m.lastErr = ""
		m.reload()
	case models.EventTypeIntegrityViolation:
		var payload models.MalformedPayload
		if err := event.DecodePayload(&payload); err != nil {
			logger := logging.Component("tui")
			logger.Debug().Err(err).Msg("undecodable integrity payload")
			m.violations++
			return
		}
		m.violations += len(payload.Rejected)
	case models.EventTypeFetchFailed:
		var payload models.FetchFailedPayload
		if err := event.DecodePayload(&payload); err == nil {
			m.lastErr = fmt.Sprintf("%s fetch failed: %s", payload.Source, payload.Error)
		}
	case models.EventTypeHistoryExhausted:
		m.exhausted = true
	}
}

// reload pulls the session's current list and loading flags. The selected
// message keeps its position unless the view is following the newest one.
func (m *Model) reload() {
	m.loading = m.session.Loading()
	if m.session.Exhausted() {
		m.exhausted = true
	}

	snap := m.session.Snapshot()
	if snap.Version == m.version && m.messages != nil {
		return
	}

	var selectedID string
	if !m.follow && m.selected >= 0 && m.selected < len(m.messages) {
		selectedID = m.messages[m.selected].ItemID
	}

	ordered := make([]models.Message, len(snap.Messages))
	for i, msg := range snap.Messages {
		ordered[len(snap.Messages)-1-i] = msg
	}
	m.messages = ordered
	m.version = snap.Version

	switch {
	case m.follow || len(m.messages) == 0:
		m.selected = len(m.messages) - 1
	default:
		m.selected = len(m.messages) - 1
		for i, msg := range m.messages {
			if msg.ItemID == selectedID {
				m.selected = i
				break
			}
		}
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return tea.Quit
	case "k", "up":
		if m.selected == 0 {
			m.loadMore()
			return nil
		}
		m.move(-1)
	case "j", "down":
		m.move(1)
	case "ctrl+u", "pgup":
		m.move(-m.pageStep())
	case "ctrl+d", "pgdown":
		m.move(m.pageStep())
	case "g", "home":
		m.move(-len(m.messages))
	case "G", "end":
		m.move(len(m.messages))
	case "r":
		m.session.Refresh()
		m.loading = m.session.Loading()
	}
	return nil
}

func (m *Model) move(delta int) {
	if len(m.messages) == 0 {
		m.selected = 0
		m.follow = true
		return
	}
	m.selected = clampInt(m.selected+delta, 0, len(m.messages)-1)
	m.follow = m.selected == len(m.messages)-1
	if m.selected == 0 {
		m.loadMore()
	}
}

// loadMore asks for the next older page when the oldest row is reached.
func (m *Model) loadMore() {
	if m.exhausted {
		return
	}
	m.session.LoadMore()
	m.loading = m.session.Loading()
}

func (m *Model) pageStep() int {
	return maxInt(1, (m.height-chromeLines)/4)
}

func (m *Model) View() string {
	width := maxInt(20, m.width)
	bodyHeight := maxInt(1, m.height-chromeLines)

	var b strings.Builder
	b.WriteString(m.renderHeader(width))
	b.WriteByte('\n')
	b.WriteString(m.renderBody(width, bodyHeight))
	b.WriteByte('\n')
	b.WriteString(m.renderFooter(width))
	return b.String()
}

func (m *Model) renderHeader(width int) string {
	peer := m.thread.Peer().DisplayName()
	if peer == "" {
		peer = m.thread.ThreadID
	}
	left := m.styles.header.Render(peer)

	var flags []string
	if m.loading.Older {
		flags = append(flags, "loading older…")
	}
	if m.loading.Newer {
		flags = append(flags, "checking for new…")
	}
	flags = append(flags, fmt.Sprintf("%d messages", len(m.messages)))
	right := m.styles.muted.Render(strings.Join(flags, "  "))

	gap := maxInt(1, width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) renderFooter(width int) string {
	var status []string
	if m.violations > 0 {
		status = append(status, m.styles.warning.Render(fmt.Sprintf("%d malformed skipped", m.violations)))
	}
	if m.lastErr != "" {
		status = append(status, m.styles.errorText.Render(m.lastErr))
	}
	hints := m.styles.footer.Render("j/k move  ctrl+d/u page  g/G oldest/newest  r refresh  q quit")
	line := strings.Join(append(status, hints), "  ")
	return lipgloss.NewStyle().MaxWidth(width).Render(line)
}

// renderBody draws the window of rows that keeps the selected message in view.
func (m *Model) renderBody(width, height int) string {
	if len(m.messages) == 0 {
		if m.exhausted {
			return startMarker(width, m.styles)
		}
		return m.styles.muted.Render("No messages")
	}

	now := m.now()
	var lines []string
	if m.exhausted {
		lines = append(lines, startMarker(width, m.styles))
	} else if m.loading.Older {
		lines = append(lines, m.styles.muted.Render(lipgloss.PlaceHorizontal(width, lipgloss.Center, "loading older messages…")))
	}

	selStart, selEnd := 0, 0
	var prev *models.Message
	for i := range m.messages {
		msg := m.messages[i]
		withHeader := m.showTime || prev == nil || prev.IsSentByViewer != msg.IsSentByViewer || kindOf(*prev) == bubbleSystem
		if i == m.selected {
			selStart = len(lines)
		}
		lines = append(lines, renderBubble(msg, m.thread, width, withHeader, m.showTime, i == m.selected, now, m.styles)...)
		if i == m.selected {
			selEnd = len(lines)
		}
		prev = &m.messages[i]
	}

	m.top = scrollTop(m.top, selStart, selEnd, len(lines), height, m.follow)
	end := minInt(len(lines), m.top+height)
	return strings.Join(lines[m.top:end], "\n")
}

// scrollTop returns the first visible line so [selStart, selEnd) is shown.
func scrollTop(top, selStart, selEnd, total, height int, follow bool) int {
	maxTop := maxInt(0, total-height)
	if follow {
		return maxTop
	}
	if selStart < top {
		top = selStart
	}
	if selEnd > top+height {
		top = selEnd - height
	}
	return clampInt(top, 0, maxTop)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
