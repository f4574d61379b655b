// Package chattui renders one open conversation as a bottom-anchored
// terminal view over a window controller.
package chattui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/window"
)

const changeBufferSize = 64

// Config configures the conversation view.
type Config struct {
	// Controller owns the message window this view renders.
	Controller *window.Controller

	// PeerName is the display name for the conversation; empty falls back
	// to the peer id.
	PeerName string

	Theme          string
	ShowTimestamps bool
	CompactMode    bool
}

type changeMsg struct {
	change window.Change
}

type loadResultMsg struct {
	err error
}

type jumpResultMsg struct {
	target int64
	found  bool
	err    error
}

// Model is the bubbletea model for one conversation.
type Model struct {
	ctrl     *window.Controller
	peerName string
	theme    Theme

	showTimestamps bool
	compact        bool

	changes chan window.Change

	width  int
	height int

	// scroll is how many rendered rows the viewport sits above the bottom.
	scroll     int
	totalRows  int
	bodyRows   int
	pendingNew int

	jumpMode  bool
	jumpInput string

	loading bool
	lastErr error
}

// NewModel creates the conversation view and attaches it as the
// controller's observer.
func NewModel(cfg Config) (*Model, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("chattui: controller is required")
	}
	theme := Theme(strings.TrimSpace(cfg.Theme))
	if theme == "" {
		theme = ThemeDefault
	}
	if !ValidTheme(string(theme)) {
		return nil, fmt.Errorf("invalid theme %q", cfg.Theme)
	}

	name := strings.TrimSpace(cfg.PeerName)
	if name == "" {
		name = cfg.Controller.Peer().String()
	}

	m := &Model{
		ctrl:           cfg.Controller,
		peerName:       name,
		theme:          theme,
		showTimestamps: cfg.ShowTimestamps,
		compact:        cfg.CompactMode,
		changes:        make(chan window.Change, changeBufferSize),
	}

	cfg.Controller.Observe(func(change window.Change) {
		select {
		case m.changes <- change:
		default:
			// The view rebuilds from the controller snapshot anyway; a
			// dropped change only delays one repaint.
			select {
			case <-m.changes:
			default:
			}
			m.changes <- change
		}
	})
	return m, nil
}

// Run drives the view until the user quits, then disposes the controller.
func Run(cfg Config) error {
	model, err := NewModel(cfg)
	if err != nil {
		return err
	}
	defer cfg.Controller.Dispose()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.initialLoadCmd(), m.waitForChangeCmd())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.ctrl.SetInitialLimit(window.InitialLimitForViewport(m.contentHeight()))
		return m, nil
	case changeMsg:
		m.applyChange(typed.change)
		return m, m.waitForChangeCmd()
	case loadResultMsg:
		m.loading = false
		m.lastErr = typed.err
		return m, nil
	case jumpResultMsg:
		m.loading = false
		m.lastErr = typed.err
		if typed.err == nil && !typed.found {
			m.lastErr = fmt.Errorf("message %d not in local history", typed.target)
		}
		if typed.found {
			// The recentered window may not end at the newest message;
			// park the viewport mid-history.
			m.scroll = maxInt(0, m.totalRows-m.bodyRows) / 2
			m.syncAtBottom()
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jumpMode {
		return m.handleJumpKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "k", "up":
		return m, m.scrollBy(1)
	case "j", "down":
		return m, m.scrollBy(-1)
	case "ctrl+u", "pgup":
		return m, m.scrollBy(m.pageStep())
	case "ctrl+d", "pgdown":
		return m, m.scrollBy(-m.pageStep())
	case "g", "home":
		return m, m.scrollBy(maxInt(0, m.maxScroll()-m.scroll))
	case "G", "end":
		return m, m.jumpBottom()
	case "/":
		m.jumpMode = true
		m.jumpInput = ""
		return m, nil
	case "r":
		return m, m.initialLoadCmd()
	}
	return m, nil
}

func (m *Model) handleJumpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.jumpMode = false
		m.jumpInput = ""
		return m, nil
	case "enter":
		m.jumpMode = false
		input := m.jumpInput
		m.jumpInput = ""
		target, err := strconv.ParseInt(input, 10, 64)
		if err != nil || target <= 0 {
			m.lastErr = fmt.Errorf("invalid message id %q", input)
			return m, nil
		}
		return m, m.jumpToCmd(target)
	case "backspace":
		if len(m.jumpInput) > 0 {
			m.jumpInput = m.jumpInput[:len(m.jumpInput)-1]
		}
		return m, nil
	}
	if len(msg.String()) == 1 && msg.String() >= "0" && msg.String() <= "9" {
		m.jumpInput += msg.String()
	}
	return m, nil
}

func (m *Model) applyChange(change window.Change) {
	switch change.Kind {
	case window.ChangeKindAdded:
		if m.scroll > 0 {
			m.pendingNew += len(change.Messages)
		}
	case window.ChangeKindReload:
		m.pendingNew = 0
		if m.ctrl.AtBottom() {
			m.scroll = 0
		}
	}
	// Deleted and Updated repaint from the controller snapshot; the
	// viewport offset stays where it is.
}

func (m *Model) scrollBy(delta int) tea.Cmd {
	m.scroll = clampInt(m.scroll+delta, 0, m.maxScroll())
	if m.scroll == 0 {
		m.pendingNew = 0
	}
	m.syncAtBottom()

	// Hitting the top of the scrollback pulls in an older batch when the
	// store has more.
	if delta > 0 && m.scroll >= m.maxScroll() && !m.loading && m.ctrl.CanLoadOlderFromLocal() {
		return m.loadBatchCmd(window.LoadOlder)
	}
	if delta < 0 && m.scroll == 0 && !m.loading && m.ctrl.CanLoadNewerFromLocal() {
		return m.loadBatchCmd(window.LoadNewer)
	}
	return nil
}

func (m *Model) jumpBottom() tea.Cmd {
	m.scroll = 0
	m.pendingNew = 0
	if m.ctrl.CanLoadNewerFromLocal() {
		// The window is parked mid-history; snap back to the newest slice.
		m.ctrl.SetAtBottom(true)
		return m.initialLoadCmd()
	}
	m.syncAtBottom()
	return nil
}

func (m *Model) syncAtBottom() {
	m.ctrl.SetAtBottom(m.scroll == 0 && !m.ctrl.CanLoadNewerFromLocal())
}

func (m *Model) pageStep() int {
	return maxInt(1, m.contentHeight()/2)
}

func (m *Model) maxScroll() int {
	return maxInt(0, m.totalRows-m.bodyRows)
}

func (m *Model) contentHeight() int {
	// Header and footer take one row each.
	return maxInt(1, m.height-2)
}

func (m *Model) initialLoadCmd() tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		return loadResultMsg{err: m.ctrl.LoadInitial(context.Background())}
	}
}

func (m *Model) loadBatchCmd(dir window.LoadDirection) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		return loadResultMsg{err: m.ctrl.LoadBatch(context.Background(), dir)}
	}
}

func (m *Model) jumpToCmd(target int64) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		found, err := m.ctrl.LoadAroundMessage(context.Background(), target)
		return jumpResultMsg{target: target, found: found, err: err}
	}
}

func (m *Model) waitForChangeCmd() tea.Cmd {
	return func() tea.Msg {
		change, ok := <-m.changes
		if !ok {
			return nil
		}
		return changeMsg{change: change}
	}
}

func (m *Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	pal := themePalette(m.theme)
	header := m.renderHeader(pal)
	footer := m.renderFooter(pal)

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	rows := m.renderRows(pal)
	m.totalRows = len(rows)
	m.bodyRows = bodyHeight
	m.scroll = clampInt(m.scroll, 0, m.maxScroll())

	end := len(rows) - m.scroll
	start := maxInt(0, end-bodyHeight)
	visible := rows[start:end]

	// Bottom-anchor short histories.
	for len(visible) < bodyHeight {
		visible = append([]string{""}, visible...)
	}

	body := strings.Join(visible, "\n")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader(pal palette) string {
	left := pal.Header.Render(m.peerName)
	right := pal.HeaderMeta.Render(fmt.Sprintf("%d messages", m.ctrl.Len()))
	gap := maxInt(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) renderFooter(pal palette) string {
	if m.jumpMode {
		return pal.Footer.Render("jump to message id: ") + pal.FooterAlert.Render(m.jumpInput+"▌")
	}

	var parts []string
	if m.loading {
		parts = append(parts, "loading…")
	}
	if m.ctrl.CanLoadOlderFromLocal() && m.scroll >= m.maxScroll() {
		parts = append(parts, "↑ more history")
	}
	hints := "j/k scroll  G bottom  / jump  r refresh  q quit"
	parts = append(parts, hints)
	line := pal.Footer.Render(strings.Join(parts, "  "))

	if m.pendingNew > 0 {
		alert := pal.FooterAlert.Render(fmt.Sprintf("%d new ↓", m.pendingNew))
		gap := maxInt(1, m.width-lipgloss.Width(line)-lipgloss.Width(alert))
		return line + strings.Repeat(" ", gap) + alert
	}
	if m.lastErr != nil {
		errLine := pal.BodyFailed.Render(truncate(m.lastErr.Error(), maxInt(0, m.width-lipgloss.Width(line)-2)))
		gap := maxInt(1, m.width-lipgloss.Width(line)-lipgloss.Width(errLine))
		return line + strings.Repeat(" ", gap) + errLine
	}
	return line
}

func (m *Model) renderRows(pal palette) []string {
	sections := m.ctrl.Sections()
	if len(sections) == 0 {
		return []string{pal.HeaderMeta.Render("no messages")}
	}

	var rows []string
	for _, section := range sections {
		rows = append(rows, m.renderDayDivider(section, pal))
		for i := range section.Messages {
			rows = append(rows, m.renderMessage(&section.Messages[i], pal)...)
		}
	}
	return rows
}

func (m *Model) renderDayDivider(section window.DaySection, pal palette) string {
	label := section.Day.Format("Monday, 2 Jan 2006")
	line := "── " + label + " "
	if pad := m.width - lipgloss.Width(line); pad > 0 {
		line += strings.Repeat("─", pad)
	}
	return pal.DayDivider.Render(line)
}

func (m *Model) renderMessage(msg *models.Message, pal palette) []string {
	var prefix strings.Builder
	if m.showTimestamps {
		prefix.WriteString(pal.Timestamp.Render(msg.Date.Local().Format("15:04")))
		prefix.WriteString(" ")
	}

	sender := senderLabel(msg)
	if msg.Out {
		prefix.WriteString(pal.SenderOut.Render(sender))
	} else {
		prefix.WriteString(pal.SenderIn.Render(sender))
	}
	prefix.WriteString(" ")

	bodyStyle := pal.Body
	switch msg.Status {
	case models.MessageStatusSending:
		bodyStyle = pal.BodyPending
	case models.MessageStatusFailed:
		bodyStyle = pal.BodyFailed
	}

	text := msg.Text
	if text == "" {
		text = "(empty)"
	}
	indent := lipgloss.Width(prefix.String())
	wrapped := wordwrap.String(text, maxInt(8, m.width-indent))

	lines := strings.Split(wrapped, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		rendered := bodyStyle.Render(line)
		if i == 0 {
			rendered = prefix.String() + rendered
		} else if !m.compact {
			rendered = strings.Repeat(" ", indent) + rendered
		}
		out = append(out, rendered)
	}

	if suffix := statusSuffix(msg); suffix != "" {
		out[len(out)-1] += " " + pal.EditedTag.Render(suffix)
	}
	return out
}

func senderLabel(msg *models.Message) string {
	if msg.Out {
		return "you"
	}
	return fmt.Sprintf("user %d", msg.FromID)
}

func statusSuffix(msg *models.Message) string {
	switch {
	case msg.Status == models.MessageStatusSending:
		return "sending…"
	case msg.Status == models.MessageStatusFailed:
		return "failed"
	case msg.Edited():
		return "(edited)"
	}
	return ""
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
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
