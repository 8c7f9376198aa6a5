package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lunabay/chapter-engine/pkg/chapter"
	"github.com/lunabay/chapter-engine/pkg/player"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Messages sent by the presenter bridge into the BubbleTea loop.
type (
	dialogueMsg struct {
		character string
		text      string
	}
	narrationMsg struct {
		text string
	}
	backgroundMsg struct {
		imageKey   string
		transition string
	}
	characterMsg struct {
		action player.CharacterAction
	}
	cgMsg struct {
		imageKey string
	}
	vfxMsg struct {
		kind string
	}
	choicesMsg struct {
		choices []player.AnnotatedChoice
	}
	hideChoicesMsg struct{}
	stateMsg       struct {
		state player.State
	}
	progressMsg struct {
		progress float64
	}
	engineDoneMsg struct {
		err error
	}
)

// uiBridge adapts the engine's blocking presenter contract to the
// message-driven BubbleTea loop: awaited effects send a message and block
// on the ack channel until the player advances.
type uiBridge struct {
	program *tea.Program
	ack     chan struct{}
}

func newBridge() *uiBridge {
	return &uiBridge{ack: make(chan struct{})}
}

func (b *uiBridge) await(ctx context.Context) error {
	select {
	case <-b.ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ackOne releases a single blocked awaited effect; it drops silently when
// nothing is waiting.
func (b *uiBridge) ackOne() {
	select {
	case b.ack <- struct{}{}:
	default:
	}
}

func (b *uiBridge) presenter() *player.Presenter {
	return &player.Presenter{
		Dialogue: func(ctx context.Context, character, text string) error {
			b.program.Send(dialogueMsg{character: character, text: text})
			return b.await(ctx)
		},
		Narration: func(ctx context.Context, text string) error {
			b.program.Send(narrationMsg{text: text})
			return b.await(ctx)
		},
		// Background and character updates are instant in a terminal;
		// confirm immediately.
		Background: func(ctx context.Context, imageKey, transition string) error {
			b.program.Send(backgroundMsg{imageKey: imageKey, transition: transition})
			return nil
		},
		Character: func(ctx context.Context, action player.CharacterAction) error {
			b.program.Send(characterMsg{action: action})
			return nil
		},
		ShowCG: func(ctx context.Context, imageKey string) error {
			b.program.Send(cgMsg{imageKey: imageKey})
			return b.await(ctx)
		},
		Vfx: func(kind string) {
			b.program.Send(vfxMsg{kind: kind})
		},
		ShowChoices: func(choices []player.AnnotatedChoice) {
			b.program.Send(choicesMsg{choices: choices})
		},
		HideChoices: func() {
			b.program.Send(hideChoicesMsg{})
		},
		StateChange: func(st player.State) {
			b.program.Send(stateMsg{state: st})
		},
		LoadingProgress: func(progress float64) {
			b.program.Send(progressMsg{progress: progress})
		},
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	selectedChoiceStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	disabledChoiceStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Strikethrough(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	cgStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)
)

var titleCaser = cases.Title(language.English)

// playerUI is the BubbleTea model driving one chapter attempt.
// https://github.com/charmbracelet/bubbletea
type playerUI struct {
	game    *player.Game
	bridge  *uiBridge
	doc     *chapter.Chapter
	storyID string

	viewport viewport.Model
	ready    bool
	width    int
	height   int

	lines      []string // styled transcript lines
	plainLines []string // unstyled transcript, for clipboard export

	state       player.State
	progress    float64
	background  string
	cgImage     string
	awaitingAck bool

	choices  []player.AnnotatedChoice
	selected int

	err error
}

func newPlayerUI(game *player.Game, bridge *uiBridge, doc *chapter.Chapter, storyID string) playerUI {
	vp := viewport.New(60, 20)
	vp.MouseWheelEnabled = true

	return playerUI{
		game:     game,
		bridge:   bridge,
		doc:      doc,
		storyID:  storyID,
		viewport: vp,
		state:    player.StateLoading,
	}
}

func (m playerUI) Init() tea.Cmd {
	return m.startEngine
}

// startEngine runs the whole chapter attempt; it blocks on awaited effects
// until the Update loop acks them, so it must live in its own Cmd.
func (m playerUI) startEngine() tea.Msg {
	err := m.game.LoadChapterFromData(context.Background(), m.doc, m.storyID, "1")
	return engineDoneMsg{err: err}
}

func (m playerUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 8
		m.ready = true
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case dialogueMsg:
		speaker := speakerStyle.Render(titleCaser.String(msg.character) + ":")
		m.appendLine(speaker+" "+msg.text, titleCaser.String(msg.character)+": "+msg.text)
		m.awaitingAck = true
		return m, nil

	case narrationMsg:
		m.appendLine(narratorStyle.Render(msg.text), msg.text)
		m.awaitingAck = true
		return m, nil

	case backgroundMsg:
		m.background = msg.imageKey
		note := fmt.Sprintf("— scene: %s —", msg.imageKey)
		if msg.transition != "" {
			note = fmt.Sprintf("— scene: %s (%s) —", msg.imageKey, msg.transition)
		}
		m.appendLine(stageStyle.Render(note), note)
		return m, nil

	case characterMsg:
		note := describeCharacterAction(msg.action)
		m.appendLine(stageStyle.Render(note), note)
		return m, nil

	case cgMsg:
		m.cgImage = msg.imageKey
		m.awaitingAck = true
		return m, nil

	case vfxMsg:
		note := fmt.Sprintf("*%s*", msg.kind)
		m.appendLine(stageStyle.Render(note), note)
		return m, nil

	case choicesMsg:
		m.choices = msg.choices
		m.selected = 0
		return m, nil

	case hideChoicesMsg:
		m.choices = nil
		m.selected = 0
		return m, nil

	case stateMsg:
		m.state = msg.state
		if msg.state == player.StateEnded {
			m.appendLine(titleStyle.Render("— chapter ended —"), "— chapter ended —")
		}
		return m, nil

	case progressMsg:
		m.progress = msg.progress
		return m, nil

	case engineDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m playerUI) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {

	case "ctrl+c", "q":
		m.game.Cleanup()
		return m, tea.Quit

	case "c":
		// Best effort; clipboard may be unavailable over SSH.
		_ = clipboard.WriteAll(strings.Join(m.plainLines, "\n"))
		return m, nil

	case "up", "k":
		if len(m.choices) > 0 && m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if len(m.choices) > 0 && m.selected < len(m.choices)-1 {
			m.selected++
		}
		return m, nil

	case "enter", " ":
		if m.cgImage != "" {
			m.cgImage = ""
			m.awaitingAck = false
			m.bridge.ackOne()
			return m, nil
		}
		if m.awaitingAck {
			m.awaitingAck = false
			m.bridge.ackOne()
			return m, nil
		}
		if len(m.choices) > 0 {
			chosen := m.choices[m.selected]
			if !chosen.CanAfford {
				return m, nil
			}
			note := "You chose: " + chosen.Text
			m.appendLine(statusStyle.Render(note), note)
			game := m.game
			id := chosen.ID
			return m, func() tea.Msg {
				game.SelectChoice(context.Background(), id)
				return nil
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *playerUI) appendLine(styled, plain string) {
	m.lines = append(m.lines, styled)
	m.plainLines = append(m.plainLines, plain)
	m.refreshViewport()
}

func (m *playerUI) refreshViewport() {
	if !m.ready {
		return
	}
	width := m.viewport.Width - 2
	if width < 10 {
		width = 10
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(strings.ToUpper(strings.ReplaceAll(m.storyID, "_", " "))) + "\n\n")
	for _, line := range m.lines {
		content.WriteString(wordwrap.String(line, width) + "\n\n")
	}
	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

func (m playerUI) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	if m.state == player.StateLoading {
		b.WriteString(loadingStyle.Render(fmt.Sprintf("Loading assets... %3.0f%%", m.progress*100)) + "\n\n")
	}

	b.WriteString(m.viewport.View() + "\n")

	if m.cgImage != "" {
		b.WriteString(cgStyle.Render(fmt.Sprintf("[ CG: %s ]\n\npress enter to dismiss", m.cgImage)) + "\n")
	} else if len(m.choices) > 0 {
		b.WriteString(m.renderChoices() + "\n")
	} else if m.awaitingAck {
		b.WriteString(stageStyle.Render("press enter to continue") + "\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m playerUI) renderChoices() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("What do you do?") + "\n")

	for i, choice := range m.choices {
		label := choice.Text
		if choice.Cost > 0 {
			costType := choice.CostType
			if costType == "" {
				costType = "diamonds"
			}
			label = fmt.Sprintf("%s (%d %s)", label, choice.Cost, costType)
		}

		switch {
		case !choice.CanAfford:
			b.WriteString("  " + disabledChoiceStyle.Render(label) + "\n")
		case i == m.selected:
			b.WriteString("> " + selectedChoiceStyle.Render(label) + "\n")
		default:
			b.WriteString("  " + choiceStyle.Render(label) + "\n")
		}
	}
	return b.String()
}

func (m playerUI) renderStatusBar() string {
	sm := m.game.StateManager()
	diamonds := sm.GetVariable("diamonds")
	tickets := sm.GetVariable("tickets")

	status := fmt.Sprintf("%s | node: %s | diamonds: %v | tickets: %v",
		m.state, sm.GetCurrentNode(), diamonds, tickets)
	if m.background != "" {
		status += " | scene: " + m.background
	}
	help := "enter: advance | ↑/↓: choose | c: copy transcript | q: quit"

	return statusStyle.Render(status) + "\n" + stageStyle.Render(help)
}

func describeCharacterAction(action player.CharacterAction) string {
	name := titleCaser.String(action.Character)
	switch action.Action {
	case "show":
		detail := ""
		if action.Emotion != "" {
			detail = " (" + action.Emotion + ")"
		}
		return fmt.Sprintf("+ %s enters%s", name, detail)
	case "hide":
		return fmt.Sprintf("- %s leaves", name)
	default:
		detail := action.Emotion
		if action.Outfit != "" {
			if detail != "" {
				detail += ", "
			}
			detail += action.Outfit
		}
		return fmt.Sprintf("~ %s changes (%s)", name, detail)
	}
}
