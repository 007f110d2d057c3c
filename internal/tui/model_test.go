package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/service"
)

type fakeAnswerer struct {
	answer   service.Answer
	err      error
	question string
	session  domain.SessionID
}

func (f *fakeAnswerer) Answer(_ context.Context, q string, s domain.SessionID) (service.Answer, error) {
	f.question, f.session = q, s
	return f.answer, f.err
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func TestEnterAsksServiceAndRecordsExchange(t *testing.T) {
	svc := &fakeAnswerer{answer: service.Answer{Text: "Cats sleep. Dogs bark.", Grounded: true}}
	m := New(context.Background(), svc, "s1")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = typeText(next.(Model), "why do dogs bark")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, "why do dogs bark", svc.question)
	assert.Equal(t, domain.SessionID("s1"), svc.session)
	require.Len(t, m.history, 1)
	assert.False(t, m.pending)
	assert.Equal(t, "Answered.", m.status)
	assert.Contains(t, m.renderCurrent(), "Q: why do dogs bark")
}

func TestAnswerErrorShowsStatus(t *testing.T) {
	m := New(context.Background(), &fakeAnswerer{}, "s1")
	next, _ := m.Update(answerMsg{question: "q", err: errors.New("boom")})
	m = next.(Model)
	assert.Equal(t, "Error: boom", m.status)
	assert.Empty(t, m.history)
}

func TestEnterIgnoredWhileEmptyOrPending(t *testing.T) {
	m := New(context.Background(), &fakeAnswerer{}, "s1")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	m = typeText(m, "q")
	m.pending = true
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, "Answered from cache.", statusFor(service.Answer{Cached: true, Grounded: true}))
	assert.Equal(t, "No supporting context found.", statusFor(service.Answer{}))
}

func TestOverlap(t *testing.T) {
	q := wordSet("Dogs bark loudly")
	assert.Equal(t, 2, overlap(q, wordSet("Dogs bark, dogs bark.")))
	assert.Equal(t, 0, overlap(q, wordSet("Cats sleep.")))
}

func TestHighlightBestSentence_NoOverlapLeavesTextPlain(t *testing.T) {
	assert.Equal(t, "Cats sleep. Birds sing.", highlightBestSentence("Cats sleep. Birds sing.", "why do dogs bark"))
}
