// Package vision implements captioning, OCR and visual question answering
// on top of an OpenAI-compatible multimodal chat endpoint.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/llm"
)

var (
	_ domain.Captioner      = (*Client)(nil)
	_ domain.OCR            = (*Client)(nil)
	_ domain.VisualReasoner = (*Client)(nil)
)

// Chatter sends a multi-part chat request.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

const (
	captionPrompt = "Describe this image in one short sentence."
	ocrPrompt     = "Transcribe all text visible in this image exactly as written. " +
		"Reply with " + noText + " if the image contains no text."
	reasonPrompt = "Answer the question about this image. Be concise.\n\nQuestion: %s"

	noText = "NO_TEXT"
)

// Client runs image prompts through a vision-capable chat model.
type Client struct {
	chat Chatter
}

// New wraps a chat client.
func New(chat Chatter) *Client {
	return &Client{chat: chat}
}

// Ping delegates to the underlying chat client when it supports it.
func (c *Client) Ping(ctx context.Context) error {
	if p, ok := c.chat.(domain.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Caption returns a short description of the image at path.
func (c *Client) Caption(ctx context.Context, path string) (string, error) {
	out, err := c.ask(ctx, path, captionPrompt)
	if err != nil {
		return "", domain.Upstream("caption", err)
	}
	return out, nil
}

// ExtractText returns the text found in the image, or "" when there is none.
func (c *Client) ExtractText(ctx context.Context, path string) (string, error) {
	out, err := c.ask(ctx, path, ocrPrompt)
	if err != nil {
		return "", domain.Upstream("ocr", err)
	}
	if strings.EqualFold(strings.Trim(out, ". "), noText) {
		return "", nil
	}
	return out, nil
}

// Reason answers question about the image at path.
func (c *Client) Reason(ctx context.Context, path, question string) (string, error) {
	out, err := c.ask(ctx, path, fmt.Sprintf(reasonPrompt, question))
	if err != nil {
		return "", domain.Upstream("reasoning", err)
	}
	return out, nil
}

func (c *Client) ask(ctx context.Context, path, prompt string) (string, error) {
	uri, err := DataURI(path)
	if err != nil {
		return "", err
	}
	out, err := c.chat.Chat(ctx, []llm.Message{{
		Role:    "user",
		Content: []llm.Part{llm.TextPart(prompt), llm.ImagePart(uri)},
	}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DataURI reads the image at path and encodes it as a base64 data URI.
func DataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		mt = "application/octet-stream"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
