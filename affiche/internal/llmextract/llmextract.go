// Package llmextract calls an external text-understanding service to pull
// candidate records out of text the heuristic extractor could not read. It
// speaks the OpenAI /v1/chat/completions format, which covers vLLM, Ollama,
// llama.cpp server and OpenAI itself, and asks for a JSON object constrained
// to the candidate-item schema.
//
// The client fails closed: any transport error, non-2xx status or malformed
// payload returns an error and no items. Callers treat that as a soft
// failure for the one document involved, never as a batch failure.
package llmextract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/affiche/horosafe"
)

// Item is one extracted candidate record. Field names mirror the catalog's
// canonical shape so responses bind without a translation table.
type Item struct {
	Name         string `json:"name"`
	VenueName    string `json:"venue_name"`
	VenueAddress string `json:"venue_address"`
	VenueCity    string `json:"venue_city"`
	EventDate    string `json:"event_date"`
	Phone        string `json:"phone"`
	URL          string `json:"url"`
	Category     string `json:"category"`
	Genre        string `json:"genre"`
	Season       string `json:"season"`
	Description  string `json:"description"`
}

// Config configures the extraction client.
type Config struct {
	// Endpoint is the service base URL, e.g. "http://localhost:8004".
	Endpoint string `yaml:"endpoint"`
	// Model is passed through to the completion request.
	Model string `yaml:"model"`
	// APIKey, when set, is sent as a bearer token.
	APIKey string `yaml:"api_key"`
	// MaxChars truncates the input text before sending.
	MaxChars int `yaml:"max_chars"`
	// Timeout bounds one extraction call end to end.
	Timeout time.Duration `yaml:"timeout"`
	// MaxResponseBytes caps how much of the response body is read.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "extraction-default"
	}
	if c.MaxChars <= 0 {
		c.MaxChars = 12000
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = horosafe.MaxResponseBody
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// extractionPrompt is the target item schema, stated as instructions. The
// service must answer with a single JSON object holding an "items" array.
const extractionPrompt = `Extract every event or venue mentioned in the user text.
Respond with one JSON object of the form {"items": [...]} and nothing else.
Each item may carry these string fields, omitting any that are unknown:
name, venue_name, venue_address, venue_city, event_date, phone, url,
category, genre, season, description. The "name" field is required; skip
entries without a clear name. Copy dates exactly as written, do not
reformat them.`

// Client talks to one extraction endpoint. Safe for concurrent use.
type Client struct {
	endpoint string
	cfg      Config
	client   *http.Client
	log      *slog.Logger
}

// New builds a Client for the configured endpoint.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      cfg.Logger.With("component", "llmextract"),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the completion envelope; the item list is JSON inside
// the first choice's message content.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract sends text to the service and returns the candidate items it
// found. The input is truncated to MaxChars before sending. An empty items
// array is a valid result, not an error.
func (c *Client) Extract(ctx context.Context, text string) ([]Item, error) {
	if r := []rune(text); len(r) > c.cfg.MaxChars {
		text = string(r[:c.cfg.MaxChars])
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.endpoint + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := horosafe.LimitedReadAll(resp.Body, c.cfg.MaxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := raw
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, string(snippet))
	}

	var envelope chatResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("no completion returned from %s", url)
	}

	var payload struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal([]byte(envelope.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}

	c.log.Debug("extraction complete", "items", len(payload.Items), "chars", len(text))
	return payload.Items, nil
}
