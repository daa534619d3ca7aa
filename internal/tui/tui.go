// Package tui is the interactive chat view. It reads only RoomSync derived
// state and calls its commands; the stream and the bus stay out of reach.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat-go/roomchat"
	"github.com/roomchat/roomchat-go/roomchat/rest"
)

const opTimeout = 10 * time.Second

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusOpen    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusDown    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusFailed  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	authorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	editedStyle   = lipgloss.NewStyle().Faint(true)
	presenceStyle = lipgloss.NewStyle().Faint(true)
	typingStyle   = lipgloss.NewStyle().Italic(true).Faint(true)
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Deps wires the chat view to the SDK.
type Deps struct {
	Client *roomchat.Client
	API    *rest.Client
	Log    zerolog.Logger
	RoomID string
	Self   *rest.UserInfo
}

type refreshMsg struct{}

type disconnectedMsg struct {
	code   int
	reason string
}

type errMsg struct{ err error }

type typingMsg struct{ payload roomchat.TypingPayload }

type typingExpiredMsg struct{}

type sentMsg struct{ err error }

type historyMsg struct{ err error }

// Run attaches a RoomSync for the room and blocks until the user quits.
func Run(ctx context.Context, d Deps) error {
	var p *tea.Program
	send := func(msg tea.Msg) {
		if p != nil {
			p.Send(msg)
		}
	}

	sync := roomchat.NewRoomSync(d.Client, d.API, d.Log, d.RoomID, d.Self.ID, roomchat.Callbacks{
		OnConnected:      func() { send(refreshMsg{}) },
		OnDisconnected:   func(code int, reason string) { send(disconnectedMsg{code, reason}) },
		OnError:          func(err error) { send(errMsg{err}) },
		OnMessageCreated: func(roomchat.MessageCreatedPayload) { send(refreshMsg{}) },
		OnMessageEdited:  func(roomchat.MessageEditedPayload) { send(refreshMsg{}) },
		OnMessageDeleted: func(roomchat.MessageDeletedPayload) { send(refreshMsg{}) },
		OnPresence:       func([]string) { send(refreshMsg{}) },
		OnTyping:         func(pl roomchat.TypingPayload) { send(typingMsg{pl}) },
	})

	m := newModel(d, sync)
	p = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if err := sync.Attach(); err != nil {
		return err
	}
	defer sync.Detach()

	_, err := p.Run()
	return err
}

type model struct {
	sync   *roomchat.RoomSync
	api    *rest.Client
	roomID string
	self   *rest.UserInfo

	input      textinput.Model
	state      roomchat.RoomState
	typingBy   string
	lastErr    error
	typingSent bool
	width      int
	height     int
}

func newModel(d Deps, sync *roomchat.RoomSync) model {
	ti := textinput.New()
	ti.Placeholder = "say something"
	ti.CharLimit = 2000
	ti.Focus()

	return model{
		sync:   sync,
		api:    d.API,
		roomID: d.RoomID,
		self:   d.Self,
		input:  ti,
		state:  sync.State(),
		width:  80,
		height: 24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory())
}

func (m model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return historyMsg{err: m.sync.LoadHistory(ctx)}
	}
}

func (m model) sendMessage(content string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, err := m.api.SendMessage(ctx, m.roomID, content)
		return sentMsg{err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			content := strings.TrimSpace(m.input.Value())
			if content == "" {
				return m, nil
			}
			m.input.Reset()
			if m.typingSent {
				m.sync.SendTyping(false, m.self.Username)
				m.typingSent = false
			}
			return m, m.sendMessage(content)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if !m.typingSent && m.input.Value() != "" {
			m.sync.SendTyping(true, m.self.Username)
			m.typingSent = true
		}
		return m, cmd

	case refreshMsg:
		m.state = m.sync.State()
		return m, nil

	case disconnectedMsg:
		m.state = m.sync.State()
		if msg.code != 1000 {
			m.lastErr = fmt.Errorf("disconnected (code %d): %s", msg.code, msg.reason)
		}
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.lastErr = msg.err
		}
		m.state = m.sync.State()
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.lastErr = msg.err
		}
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		m.state = m.sync.State()
		return m, nil

	case typingMsg:
		if msg.payload.IsTyping && msg.payload.UserID != m.self.ID {
			m.typingBy = msg.payload.Username
			return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return typingExpiredMsg{} })
		}
		if !msg.payload.IsTyping && msg.payload.Username == m.typingBy {
			m.typingBy = ""
		}
		return m, nil

	case typingExpiredMsg:
		m.typingBy = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("#"+m.roomID) + "  " + m.statusLine() + "\n")
	b.WriteString(presenceStyle.Render(fmt.Sprintf("online: %s", strings.Join(m.state.Presence, ", "))) + "\n\n")

	visible := m.height - 7
	if visible < 1 {
		visible = 1
	}
	msgs := m.state.Messages
	if len(msgs) > visible {
		msgs = msgs[len(msgs)-visible:]
	}
	for _, msg := range msgs {
		line := authorStyle.Render(msg.Author) + " " + msg.Content
		if msg.Edited {
			line += " " + editedStyle.Render("(edited)")
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if m.typingBy != "" {
		b.WriteString(typingStyle.Render(m.typingBy+" is typing…") + "\n")
	} else if m.lastErr != nil {
		b.WriteString(errStyle.Render(m.lastErr.Error()) + "\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) statusLine() string {
	st := m.state.ConnectionState
	label := st.String()
	if m.state.SnapshotLoading {
		label += " (syncing)"
	}
	switch st {
	case roomchat.StateOpen:
		return statusOpen.Render(label)
	case roomchat.StateFailed:
		// Terminal: distinguishable from "still retrying" so the user
		// knows a manual reconnect is needed.
		return statusFailed.Render(label + " (press esc and rejoin)")
	default:
		return statusDown.Render(label)
	}
}
