package main

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vona/clipboard"
	"vona/session"
)

// TUI message types
type SessionStateMsg struct {
	State session.State
	Err   error
}
type TranscriptMsg struct{ T session.Transcript }
type ResponseMsg struct{ R session.Response }
type AudioLevelMsg struct {
	Level float64
	Bins  []float64
}
type PlayingMsg struct{ On bool }
type NoVoiceWarningMsg struct{ On bool }
type StatusMsg struct{ Text string }
type ErrorMsg struct{ Text string }
type CopiedMsg struct{}
type tickMsg time.Time

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

// tuiSink forwards pipeline events into the Bubble Tea program.
type tuiSink struct{}

func (tuiSink) send(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s tuiSink) SessionState(st session.State, err error) { s.send(SessionStateMsg{st, err}) }
func (s tuiSink) Transcript(t session.Transcript)          { s.send(TranscriptMsg{t}) }
func (s tuiSink) Response(r session.Response)              { s.send(ResponseMsg{r}) }
func (s tuiSink) AudioLevel(level float64, bins []float64) { s.send(AudioLevelMsg{level, bins}) }
func (s tuiSink) Playing(on bool)                          { s.send(PlayingMsg{on}) }
func (s tuiSink) NoVoiceWarning(on bool)                   { s.send(NoVoiceWarningMsg{on}) }
func (s tuiSink) Status(text string)                       { s.send(StatusMsg{text}) }
func (s tuiSink) Error(text string)                        { s.send(ErrorMsg{text}) }

type convEntry struct {
	role string // "you" or "vona"
	text string
}

const maxConvEntries = 50

type tuiModel struct {
	width, height int
	frame         int

	state    session.State
	stateErr error

	conv         []convEntry
	partial      string // live partial transcript, replaced in place
	lastResponse string

	level   float64
	bins    []float64
	playing bool
	warning bool

	status    string
	errLine   string
	copiedFor int // frames left to show the copied indicator

	serverLine string
	deviceLine string

	onRetry func()
}

var (
	styleState = map[session.State]lipgloss.Style{
		session.StateIdle:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		session.StateConnecting: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		session.StateOpen:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		session.StateClosing:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		session.StateClosed:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		session.StateFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
	styleUser      = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	stylePartial   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	styleAssistant = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	styleDim       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleWarn      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleErr       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleCopied    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleLevelRec  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleLevelPlay = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleHelp      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

func NewTUIProgram(serverLine, deviceLine string, onRetry func()) *tea.Program {
	m := tuiModel{
		serverLine: serverLine,
		deviceLine: deviceLine,
		onRetry:    onRetry,
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if m.lastResponse != "" {
				text := m.lastResponse
				return m, func() tea.Msg {
					clipboard.Copy(text)
					return CopiedMsg{}
				}
			}
		case "r":
			if m.state == session.StateFailed && m.onRetry != nil {
				go m.onRetry()
				m.errLine = ""
			}
		}

	case tickMsg:
		m.frame++
		if m.copiedFor > 0 {
			m.copiedFor--
		}
		return m, tuiTick()

	case SessionStateMsg:
		m.state = msg.State
		m.stateErr = msg.Err
		if msg.Err != nil {
			m.errLine = msg.Err.Error()
		}

	case TranscriptMsg:
		if msg.T.IsFinal {
			m.partial = ""
			m.conv = appendConv(m.conv, convEntry{role: "you", text: msg.T.Text})
		} else {
			m.partial = msg.T.Text
		}

	case ResponseMsg:
		m.conv = appendConv(m.conv, convEntry{role: "vona", text: msg.R.Text})
		m.lastResponse = msg.R.Text

	case AudioLevelMsg:
		m.level = m.level*0.6 + msg.Level*0.4
		m.bins = msg.Bins

	case PlayingMsg:
		m.playing = msg.On

	case NoVoiceWarningMsg:
		m.warning = msg.On

	case StatusMsg:
		m.status = msg.Text

	case ErrorMsg:
		m.errLine = msg.Text

	case CopiedMsg:
		m.copiedFor = 20
	}
	return m, nil
}

func appendConv(conv []convEntry, e convEntry) []convEntry {
	conv = append(conv, e)
	if len(conv) > maxConvEntries {
		conv = conv[len(conv)-maxConvEntries:]
	}
	return conv
}

var levelGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// renderLevelBar draws the 50 spectrum bins as a single line of block
// glyphs.
func renderLevelBar(bins []float64, width int, playing bool) string {
	if width < 10 {
		width = 10
	}
	n := len(bins)
	var b strings.Builder
	for i := 0; i < width; i++ {
		v := 0.0
		if n > 0 {
			v = bins[i*n/width] / 100
		}
		idx := int(v * float64(len(levelGlyphs)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(levelGlyphs) {
			idx = len(levelGlyphs) - 1
		}
		b.WriteRune(levelGlyphs[idx])
	}
	if playing {
		return styleLevelPlay.Render(b.String())
	}
	return styleLevelRec.Render(b.String())
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string

	// Header: state + identity
	stateLabel := strings.ToUpper(m.state.String())
	if m.playing && m.state == session.StateOpen {
		stateLabel = "SPEAKING"
	}
	header := styleState[m.state].Render("● "+stateLabel) +
		styleDim.Render("  "+m.serverLine)
	lines = append(lines, header)
	if m.deviceLine != "" {
		lines = append(lines, styleDim.Render(m.deviceLine))
	}
	lines = append(lines, "")

	// Mic spectrum
	barWidth := m.width - 2
	if barWidth > 50 {
		barWidth = 50
	}
	lines = append(lines, renderLevelBar(m.bins, barWidth, m.playing))
	if m.warning {
		lines = append(lines, styleWarn.Render("⚠ no voice detected"))
	} else {
		lines = append(lines, "")
	}
	lines = append(lines, "")

	// Conversation pane: newest entries, bounded by terminal height
	wrapWidth := m.width - 8
	if wrapWidth < 20 {
		wrapWidth = 20
	}
	convBudget := m.height - len(lines) - 5
	if convBudget < 3 {
		convBudget = 3
	}
	var convLines []string
	for _, e := range m.conv {
		style := styleAssistant
		prefix := "vona  "
		if e.role == "you" {
			style = styleUser
			prefix = "you   "
		}
		for i, line := range wrapText(e.text, wrapWidth) {
			p := prefix
			if i > 0 {
				p = "      "
			}
			convLines = append(convLines, styleDim.Render(p)+style.Render(line))
		}
	}
	if m.partial != "" {
		for i, line := range wrapText(m.partial, wrapWidth) {
			p := "you   "
			if i > 0 {
				p = "      "
			}
			convLines = append(convLines, styleDim.Render(p)+stylePartial.Render(line))
		}
	}
	if len(convLines) > convBudget {
		convLines = convLines[len(convLines)-convBudget:]
	}
	if len(convLines) == 0 {
		convLines = append(convLines, styleDim.Render("Say something..."))
	}
	lines = append(lines, convLines...)

	// Status / error footer
	lines = append(lines, "")
	if m.errLine != "" {
		errText := styleErr.Render("✗ " + m.errLine)
		if m.state == session.StateFailed {
			errText += styleDim.Render("  (r to retry)")
		}
		lines = append(lines, errText)
	} else if m.status != "" {
		lines = append(lines, styleDim.Render(m.status))
	} else {
		lines = append(lines, "")
	}

	help := styleHelp.Render("c copy last · q quit")
	if m.copiedFor > 0 {
		help += "  " + styleCopied.Render("[✓ copied]")
	}
	lines = append(lines, help)
	lines = append(lines, styleHelp.Render("vona "+version))

	out := strings.Join(lines, "\n")
	return lipgloss.NewStyle().Width(m.width).Height(m.height).Render(out)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
