// Package tui is a terminal chat client for one ingestion session.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/service"
)

// Answerer is the TUI-facing subset of the query service.
type Answerer interface {
	Answer(ctx context.Context, question string, session domain.SessionID) (service.Answer, error)
}

// Exchange is one question and its answer.
type Exchange struct {
	Question string
	Answer   service.Answer
}

type answerMsg struct {
	question string
	answer   service.Answer
	err      error
}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	ctx      context.Context
	service  Answerer
	session  domain.SessionID
	input    textinput.Model
	viewport viewport.Model
	history  []Exchange
	status   string
	cursor   int
	ready    bool
	pending  bool
}

// New creates a chat model bound to session.
func New(ctx context.Context, service Answerer, session domain.SessionID) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  service,
		session:  session,
		input:    ti,
		viewport: vp,
		status:   "Ready. Ask about your documents.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+session, status, spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.history = append(m.history, Exchange{Question: msg.question, Answer: msg.answer})
		m.cursor = len(m.history) - 1
		m.status = statusFor(msg.answer)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = fmt.Sprintf("Thinking about %q...", q)
			m.input.SetValue("")
			return m, m.ask(q)
		case "up":
			if len(m.history) > 0 {
				m.cursor = (m.cursor - 1 + len(m.history)) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "down":
			if len(m.history) > 0 {
				m.cursor = (m.cursor + 1) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		a, err := m.service.Answer(m.ctx, question, m.session)
		return answerMsg{question: question, answer: a, err: err}
	}
}

// View renders the TUI layout and the selected exchange.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Multimodal RAG")
	session := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("session " + string(m.session))
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + session + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	ex := m.history[m.cursor]
	title := fmt.Sprintf("Exchange %d/%d", m.cursor+1, len(m.history))
	question := questionStyle.Render("Q: " + ex.Question)
	body := ex.Answer.Text
	if ex.Answer.Grounded {
		body = highlightBestSentence(body, ex.Question)
	}
	return title + "\n\n" + question + "\n\n" + body
}

func statusFor(a service.Answer) string {
	switch {
	case a.Cached:
		return "Answered from cache."
	case !a.Grounded:
		return "No supporting context found."
	default:
		return "Answered."
	}
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

// highlightBestSentence emphasizes the answer sentence sharing the most
// distinct words with the question. Ties keep the earliest sentence.
func highlightBestSentence(text, question string) string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text
	}
	q := wordSet(question)
	best, bestScore := 0, 0
	for i, sent := range sentences {
		if score := overlap(q, wordSet(sent)); score > bestScore {
			best, bestScore = i, score
		}
	}
	parts := make([]string, len(sentences))
	for i, sent := range sentences {
		parts[i] = strings.TrimSpace(sent)
	}
	if bestScore > 0 {
		parts[best] = highlightStyle.Render(parts[best])
	}
	return strings.Join(parts, " ")
}

func wordSet(s string) map[string]struct{} {
	words := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range b {
		if _, ok := a[w]; ok {
			n++
		}
	}
	return n
}
