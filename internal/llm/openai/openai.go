// Package openai is a chat-completions client for OpenAI-compatible servers,
// including Ollama and vLLM.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cpage-pivotal/ipzs/internal/retry"
)

var ErrEmptyResponse = errors.New("openai: empty completion")

// Config configures the chat client. An empty APIKeyEnv means no key is sent.
type Config struct {
	BaseURL           string
	APIKeyEnv         string
	Model             string
	Temperature       float64
	SystemInstruction string
	Timeout           time.Duration
	MaxRetries        int
}

// Client implements the generator interface over /chat/completions.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	system      string
	client      *http.Client
	stream      *http.Client
	maxRetries  int
}

func NewClient(cfg Config) (*Client, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("openai: missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		system:      cfg.SystemInstruction,
		client:      &http.Client{Timeout: cfg.Timeout},
		stream:      &http.Client{Transport: streamTransport(cfg.Timeout)},
		maxRetries:  max(cfg.MaxRetries, 0),
	}, nil
}

// streamTransport bounds only the wait for response headers. Streamed
// bodies are read for as long as the server keeps sending.
func streamTransport(headerTimeout time.Duration) http.RoundTripper {
	t, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	t = t.Clone()
	t.ResponseHeaderTimeout = headerTimeout
	return t
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

func (c *Client) request(prompt string, stream bool) ([]byte, error) {
	var msgs []message
	if c.system != "" {
		msgs = append(msgs, message{Role: "system", Content: c.system})
	}
	msgs = append(msgs, message{Role: "user", Content: prompt})
	return json.Marshal(chatRequest{Model: c.model, Messages: msgs, Temperature: c.temperature, Stream: stream})
}

func (c *Client) post(ctx context.Context, hc *http.Client, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return hc.Do(req)
}

// Complete returns the whole completion, retrying 429 and 5xx answers and
// transport errors a bounded number of times.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := c.request(prompt, false)
	if err != nil {
		return "", err
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.post(ctx, c.client, body)
		if err != nil {
			lastErr = fmt.Errorf("openai chat: %w", err)
			if ctx.Err() != nil || attempt == c.maxRetries {
				break
			}
			if err := retry.Sleep(ctx, retry.Delay(attempt)); err != nil {
				return "", err
			}
			continue
		}
		if retry.Retryable(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("openai chat failed: %s", resp.Status)
			if attempt == c.maxRetries {
				break
			}
			if err := retry.Sleep(ctx, retry.After(resp.Header, attempt)); err != nil {
				return "", err
			}
			continue
		}
		text, err := decodeCompletion(resp)
		resp.Body.Close()
		return text, err
	}
	return "", lastErr
}

func decodeCompletion(resp *http.Response) (string, error) {
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("openai chat failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai chat: decode: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// Stream relays content deltas from a server-sent event stream. The
// configured timeout bounds the wait for the response headers; the body is
// read until the server finishes or ctx is done.
func (c *Client) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		body, err := c.request(prompt, true)
		if err != nil {
			yield("", err)
			return
		}
		resp, err := c.post(ctx, c.stream, body)
		if err != nil {
			yield("", fmt.Errorf("openai chat: %w", err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			yield("", fmt.Errorf("openai chat failed: %s", resp.Status))
			return
		}
		for delta, err := range readSSE(resp.Body) {
			if !yield(delta, err) || err != nil {
				return
			}
		}
	}
}

func readSSE(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield("", fmt.Errorf("openai chat: decode stream: %w", err))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("openai chat: read stream: %w", err))
		}
	}
}
