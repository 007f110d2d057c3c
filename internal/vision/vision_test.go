package vision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/llm"
)

type fakeChat struct {
	reply string
	err   error
	got   []llm.Message
}

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	f.got = messages
	return f.reply, f.err
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	return path
}

func TestCaption_SendsImageAsDataURI(t *testing.T) {
	chat := &fakeChat{reply: " a bar chart \n"}
	out, err := New(chat).Caption(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, "a bar chart", out)

	require.Len(t, chat.got, 1)
	parts, ok := chat.got[0].Content.([]llm.Part)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, captionPrompt, parts[0].Text)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestExtractText_NoTextMarker(t *testing.T) {
	out, err := New(&fakeChat{reply: "NO_TEXT."}).ExtractText(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = New(&fakeChat{reply: "Revenue 2024"}).ExtractText(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, "Revenue 2024", out)
}

func TestReason_IncludesQuestion(t *testing.T) {
	chat := &fakeChat{reply: "It shows growth."}
	out, err := New(chat).Reason(context.Background(), writeImage(t), "what trend?")
	require.NoError(t, err)
	assert.Equal(t, "It shows growth.", out)
	parts := chat.got[0].Content.([]llm.Part)
	assert.Contains(t, parts[0].Text, "what trend?")
}

func TestErrorsCarryOperation(t *testing.T) {
	boom := errors.New("boom")
	c := New(&fakeChat{err: boom})
	path := writeImage(t)

	for op, call := range map[string]func() error{
		"caption":   func() error { _, err := c.Caption(context.Background(), path); return err },
		"ocr":       func() error { _, err := c.ExtractText(context.Background(), path); return err },
		"reasoning": func() error { _, err := c.Reason(context.Background(), path, "q"); return err },
	} {
		err := call()
		var ue *domain.UpstreamError
		require.ErrorAs(t, err, &ue, op)
		assert.Equal(t, op, ue.Op)
		assert.ErrorIs(t, err, boom)
	}
}

func TestDataURI_MissingFile(t *testing.T) {
	_, err := DataURI(filepath.Join(t.TempDir(), "none.jpg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
