package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediaintel/internal/config"
	"mediaintel/internal/domain"
	"mediaintel/internal/ports"
)

const defaultSystemPrompt = `You analyze news articles. Reply with a single JSON object with keys ` +
	`"summary" (2-3 sentences), "category" (one short label), ` +
	`"relevance" (one of "high", "medium", "low") and "tags" (up to 5 short strings). ` +
	`Reply with JSON only, no prose.`

// Client talks to an OpenAI-compatible chat completions API for both article
// enrichment and the natural-language query passthrough.
type Client struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var (
	_ ports.Enricher      = (*Client)(nil)
	_ ports.ChatCompleter = (*Client)(nil)
)

// NewClient builds a client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: prompt,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enrich sends the article text and validates the provider's structured reply.
// A malformed reply is an error for this item only, never a crash.
func (c *Client) Enrich(ctx context.Context, item domain.RawItem) (domain.EnrichmentResult, error) {
	user := fmt.Sprintf("Title: %s\n\n%s", item.Title, item.Body)
	content, err := c.chat(ctx, c.systemPrompt, user)
	if err != nil {
		return domain.EnrichmentResult{}, err
	}
	return parseEnrichment(content)
}

// Complete forwards a prompt pair and returns the raw reply text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, system, user)
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("llm client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal llm payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call llm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}

	return completion.Choices[0].Message.Content, nil
}

func parseEnrichment(content string) (domain.EnrichmentResult, error) {
	var raw struct {
		Summary   string   `json:"summary"`
		Category  string   `json:"category"`
		Relevance string   `json:"relevance"`
		Tags      []string `json:"tags"`
	}

	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return domain.EnrichmentResult{}, fmt.Errorf("unparseable enrichment output: %w", err)
	}
	if strings.TrimSpace(raw.Summary) == "" {
		return domain.EnrichmentResult{}, fmt.Errorf("enrichment output missing summary")
	}
	if strings.TrimSpace(raw.Category) == "" {
		return domain.EnrichmentResult{}, fmt.Errorf("enrichment output missing category")
	}

	tags := make([]string, 0, len(raw.Tags))
	for _, tag := range raw.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	return domain.EnrichmentResult{
		Summary:   strings.TrimSpace(raw.Summary),
		Category:  strings.TrimSpace(raw.Category),
		Relevance: domain.NormalizeTier(raw.Relevance),
		Tags:      tags,
	}, nil
}

// stripFences tolerates providers that wrap JSON in a markdown code block.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
