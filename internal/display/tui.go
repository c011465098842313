package display

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lox/bingohall/internal/card"
	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/pattern"
	"github.com/lox/bingohall/internal/server"
)

// Player is the connection the watch UI sends intents through.
type Player interface {
	Join(ctx context.Context, cardNumber *int, manualMark bool) (engine.JoinResult, error)
	Leave(ctx context.Context) error
	Mark(ctx context.Context, number int) (engine.MarkResult, error)
	Claim(ctx context.Context) error
	Status(ctx context.Context) (engine.Status, error)
}

type eventMsg struct{ msg *server.Message }

type disconnectedMsg struct{}

type resultMsg struct {
	text   string
	err    error
	join   *engine.JoinResult
	mark   *engine.MarkResult
	status *engine.Status
	left   bool
}

// Model is the Bubble Tea model for watching and playing a round
type Model struct {
	player   Player
	events   <-chan *server.Message
	playerID string
	layout   card.Layout
	timeout  time.Duration

	// Round state
	status engine.Status
	card   *card.Card
	manual bool
	marked pattern.Marked
	drawn  []int

	// UI components
	logViewport viewport.Model
	input       textinput.Model

	log          []string
	quitting     bool
	disconnected bool
	styles       *Styles
	width        int
	height       int
}

// NewModel creates a watch model. status is the round summary returned by
// hello.
func NewModel(p Player, events <-chan *server.Message, playerID string, status engine.Status, layout card.Layout) *Model {
	vp := viewport.New(80, 12)

	ti := textinput.New()
	ti.Placeholder = "join [card] [manual] • leave • mark <n> • claim • status • quit"
	ti.Focus()
	ti.CharLimit = 64
	ti.Width = 80
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.Prompt = "> "

	return &Model{
		player:      p,
		events:      events,
		playerID:    playerID,
		layout:      layout,
		timeout:     10 * time.Second,
		status:      status,
		drawn:       slices.Clone(status.Drawn),
		logViewport: vp,
		input:       ti,
		styles:      DefaultStyles(),
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.events
		if !ok {
			return disconnectedMsg{}
		}
		return eventMsg{msg: msg}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateDimensions()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line != "" {
				m.AddLogEntry(m.styles.Info.Render("> " + line))
				if cmd := m.command(line); cmd != nil {
					cmds = append(cmds, cmd)
				}
			}
			if m.quitting {
				return m, tea.Quit
			}
		case "pgup":
			m.logViewport.HalfPageUp()
		case "pgdown":
			m.logViewport.HalfPageDown()
		}

	case eventMsg:
		m.applyEvent(msg.msg)
		cmds = append(cmds, m.waitForEvent())

	case disconnectedMsg:
		m.disconnected = true
		m.AddLogEntry(m.styles.Error.Render("Disconnected from server"))

	case resultMsg:
		m.applyResult(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// command parses an input line into an intent.
func (m *Model) command(line string) tea.Cmd {
	fields := strings.Fields(strings.ToLower(line))

	switch fields[0] {
	case "quit", "q", "exit":
		m.quitting = true
		return nil

	case "help", "?":
		m.AddLogEntry("Commands: join [card] [manual], leave, mark <n>, claim, status, quit")
		return nil

	case "join", "j":
		var cardNumber *int
		manual := false
		for _, f := range fields[1:] {
			if f == "manual" {
				manual = true
				continue
			}
			n, err := strconv.Atoi(f)
			if err != nil {
				m.AddLogEntry(m.styles.Error.Render("Card must be a number: " + f))
				return nil
			}
			cardNumber = &n
		}
		return m.run(func(ctx context.Context) resultMsg {
			res, err := m.player.Join(ctx, cardNumber, manual)
			return resultMsg{err: err, join: &res}
		})

	case "leave":
		return m.run(func(ctx context.Context) resultMsg {
			return resultMsg{err: m.player.Leave(ctx), left: true, text: "Left the round, stake refunded"}
		})

	case "mark", "m":
		if len(fields) != 2 {
			m.AddLogEntry(m.styles.Error.Render("Usage: mark <number>"))
			return nil
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			m.AddLogEntry(m.styles.Error.Render("Not a number: " + fields[1]))
			return nil
		}
		return m.run(func(ctx context.Context) resultMsg {
			res, err := m.player.Mark(ctx, n)
			return resultMsg{err: err, mark: &res}
		})

	case "claim":
		return m.run(func(ctx context.Context) resultMsg {
			return resultMsg{err: m.player.Claim(ctx), text: "Win claimed"}
		})

	case "status", "s":
		return m.run(func(ctx context.Context) resultMsg {
			st, err := m.player.Status(ctx)
			return resultMsg{err: err, status: &st}
		})

	default:
		m.AddLogEntry(m.styles.Error.Render("Unknown command: " + fields[0]))
		return nil
	}
}

func (m *Model) run(fn func(ctx context.Context) resultMsg) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(ctx)
	}
}

func (m *Model) applyResult(r resultMsg) {
	if r.err != nil {
		m.AddLogEntry(m.styles.Error.Render(r.err.Error()))
		return
	}

	switch {
	case r.join != nil:
		c := r.join.Player.Card
		m.card = &c
		m.manual = r.join.Player.ManualMark
		m.marked = make(pattern.Marked)
		for _, n := range r.join.Player.Marked {
			m.marked[n] = struct{}{}
		}
		m.AddLogEntry(m.styles.Success.Render(fmt.Sprintf("Joined round %s with card #%d, prize pool %d",
			short(r.join.RoundID), c.Number, r.join.PrizePool)))
	case r.mark != nil:
		m.marked = make(pattern.Marked)
		for _, n := range r.mark.Marked {
			m.marked[n] = struct{}{}
		}
		if r.mark.Won {
			m.AddLogEntry(m.styles.Success.Render("BINGO! " + r.mark.Pattern))
		}
	case r.status != nil:
		m.status = *r.status
		m.AddLogEntry(fmt.Sprintf("Round %s: %s, %d players, pool %d, %d drawn",
			short(m.status.RoundID), m.status.Phase, m.status.Players, m.status.PrizePool, len(m.status.Drawn)))
	default:
		if r.left {
			m.card = nil
			m.marked = nil
		}
		m.AddLogEntry(m.styles.Success.Render(r.text))
	}
}

func (m *Model) applyEvent(msg *server.Message) {
	switch engine.EventType(msg.Type) {
	case engine.EventTypePhaseChanged:
		var ev engine.PhaseChangedEvent
		if !decodeEvent(msg, &ev) {
			return
		}
		if ev.Round != m.status.RoundID {
			m.card = nil
			m.marked = nil
			m.drawn = nil
			m.status.Players = 0
			m.status.PrizePool = 0
		}
		m.status.RoundID = ev.Round
		m.status.Phase = ev.Phase
		line := fmt.Sprintf("Round %s: %s", short(ev.Round), ev.Phase)
		if ev.ETASeconds > 0 {
			line += fmt.Sprintf(" (%s)", time.Duration(ev.ETASeconds)*time.Second)
		}
		m.AddLogEntry(m.styles.Banner.Render(line))

	case engine.EventTypePlayerJoined:
		var ev engine.PlayerJoinedEvent
		if !decodeEvent(msg, &ev) {
			return
		}
		m.status.Players = ev.PlayerCount
		m.status.PrizePool = ev.PrizePool
		m.AddLogEntry(fmt.Sprintf("%s joined with card #%d (%d players, pool %d)",
			ev.PlayerID, ev.CardNumber, ev.PlayerCount, ev.PrizePool))

	case engine.EventTypePlayerLeft:
		var ev engine.PlayerLeftEvent
		if !decodeEvent(msg, &ev) {
			return
		}
		m.status.Players = ev.PlayerCount
		m.status.PrizePool = ev.PrizePool
		m.AddLogEntry(fmt.Sprintf("%s left (%d players)", ev.PlayerID, ev.PlayerCount))

	case engine.EventTypeNumberDrawn:
		var ev engine.NumberDrawnEvent
		if !decodeEvent(msg, &ev) {
			return
		}
		m.drawn = append(m.drawn, ev.Number)
		m.status.LastNumber = ev.Number
		if m.card != nil && !m.manual && m.card.Contains(ev.Number) {
			m.marked[ev.Number] = struct{}{}
		}
		m.AddLogEntry(fmt.Sprintf("Drew %s (%d drawn)", ev.Call, ev.TotalDrawn))

	case engine.EventTypeRoundEnded:
		var ev engine.RoundEndedEvent
		if !decodeEvent(msg, &ev) {
			return
		}
		if len(ev.Winners) == 0 {
			m.AddLogEntry(m.styles.Warning.Render(fmt.Sprintf("Round over (%s), no winner", ev.Reason)))
			return
		}
		for _, w := range ev.Winners {
			line := fmt.Sprintf("%s wins %d with %s on card #%d", w.PlayerID, w.Share, w.Pattern, w.CardNumber)
			if w.PlayerID == m.playerID {
				line = m.styles.Success.Render("BINGO! " + line + " (type claim)")
			}
			m.AddLogEntry(line)
		}

	case engine.EventTypeRoundCancelled:
		var ev engine.RoundCancelledEvent
		if !decodeEvent(msg, &ev) {
			return
		}
		m.AddLogEntry(m.styles.Warning.Render(fmt.Sprintf("Round cancelled: %s, %d refunds", ev.Reason, len(ev.Refunds))))

	case engine.EventTypeWinClaimed:
		var ev engine.WinClaimedEvent
		if !decodeEvent(msg, &ev) {
			return
		}
		m.AddLogEntry(fmt.Sprintf("%s claimed %s", ev.PlayerID, ev.Pattern))

	default:
		if msg.Type == server.MessageTypeError {
			m.AddLogEntry(m.styles.Error.Render(string(msg.Data)))
		}
	}
}

func decodeEvent(msg *server.Message, v any) bool {
	return json.Unmarshal(msg.Data, v) == nil
}

// short trims a round id for display.
func short(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

// View renders the UI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	header := m.styles.Title.Render(fmt.Sprintf(" BINGO • %s ", m.playerID))
	summary := fmt.Sprintf("Round %s  %s  players %d  pool %d  drawn %d",
		short(m.status.RoundID), m.status.Phase, m.status.Players, m.status.PrizePool, len(m.drawn))

	top := header + "  " + m.styles.Info.Render(summary)
	if m.card != nil {
		top = lipgloss.JoinVertical(lipgloss.Left, top,
			m.styles.CardPane.Render(RenderCard(*m.card, m.layout, m.marked, m.status.LastNumber, m.styles)))
	}

	logWidth := max(m.width-4, 20)
	logPane := m.styles.LogPane.Width(logWidth).Render(m.logViewport.View())

	help := "Enter to submit • PgUp/PgDn scroll • Ctrl+C to quit"
	if m.disconnected {
		help = "Disconnected • Ctrl+C to quit"
	}
	actionPane := m.styles.ActionPane.Width(logWidth).Render(
		m.input.View() + "\n" + m.styles.Info.Render(help))

	return lipgloss.JoinVertical(lipgloss.Left, top, logPane, actionPane)
}

// updateDimensions updates component dimensions based on terminal size
func (m *Model) updateDimensions() {
	if m.height <= 0 || m.width <= 0 {
		return
	}

	// Card (13 lines with title), action pane (4), borders.
	logHeight := max(m.height-13-4-4, 3)
	m.logViewport.Width = m.width - 6
	m.logViewport.Height = logHeight
	m.input.Width = m.width - 10
}

// AddLogEntry appends a line to the log and scrolls to the bottom
func (m *Model) AddLogEntry(entry string) {
	m.log = append(m.log, entry)
	m.logViewport.SetContent(strings.Join(m.log, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// Log returns the log lines, for tests and headless callers.
func (m *Model) Log() []string { return slices.Clone(m.log) }
