// Package newswire supplies the curated news items that go on a card. The
// research call degrades to a fixed fallback set on any failure, so callers
// never have to handle an error here.
package newswire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	perplexityEndpoint = "https://api.perplexity.ai/chat/completions"
	maxItems           = 3
)

// Item is one news entry on a card.
type Item struct {
	SourceLogo string `json:"source_logo"`
	Headline   string `json:"headline"`
	Meta       string `json:"meta"`
	URL        string `json:"url"`
	BTPAngle   string `json:"btp_angle,omitempty"`
}

// Provider returns at most three items for a human-readable time context.
// Implementations must absorb every internal failure and fall back to a
// deterministic item set instead of returning an error.
type Provider interface {
	Research(ctx context.Context, whenLocal string) []Item
}

// PerplexityProvider asks the Perplexity chat API for recent enterprise AI
// headlines. Without an API key it serves the fallback set directly.
type PerplexityProvider struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// NewPerplexityProvider creates a provider. An empty apiKey disables the
// remote call entirely.
func NewPerplexityProvider(apiKey, model string) *PerplexityProvider {
	return &PerplexityProvider{
		apiKey:     apiKey,
		model:      model,
		endpoint:   perplexityEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// jsonObjectRe grabs the trailing JSON object from a response that may be
// wrapped in code fences or commentary.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Research returns up to three curated items for the given banner string.
func (p *PerplexityProvider) Research(ctx context.Context, whenLocal string) []Item {
	if p.apiKey == "" {
		return FallbackItems(whenLocal)
	}

	items, err := p.research(ctx, whenLocal)
	if err != nil {
		log.Printf("[NEWSWIRE] research call failed, using fallback items: %v", err)
		return FallbackItems(whenLocal)
	}
	if len(items) == 0 {
		return FallbackItems(whenLocal)
	}
	return items
}

func (p *PerplexityProvider) research(ctx context.Context, whenLocal string) ([]Item, error) {
	requestBody := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": "Be precise and concise. Follow the JSON schema exactly."},
			{"role": "user", "content": buildPrompt(whenLocal)},
		},
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("research request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("research request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse research response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("research response has no choices")
	}

	return parseItems(result.Choices[0].Message.Content)
}

// parseItems extracts the strict-JSON item list from the model output,
// dropping entries without a headline and URL and capping at three.
func parseItems(content string) ([]Item, error) {
	match := jsonObjectRe.FindString(content)
	if match == "" {
		return nil, fmt.Errorf("no JSON object in research output")
	}

	var parsed struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse research items: %w", err)
	}

	cleaned := make([]Item, 0, maxItems)
	for _, it := range parsed.Items {
		if it.Headline == "" || it.URL == "" {
			continue
		}
		if it.SourceLogo == "" {
			it.SourceLogo = "https://logo.clearbit.com/openai.com"
		}
		if it.Meta == "" {
			it.Meta = "Today"
		}
		cleaned = append(cleaned, it)
		if len(cleaned) == maxItems {
			break
		}
	}
	return cleaned, nil
}

func buildPrompt(whenLocal string) string {
	return fmt.Sprintf(`Return STRICT JSON ONLY:

{
  "items": [
    {
      "source_logo": "https://logo.clearbit.com/<publisher-domain>",
      "headline": "concise enterprise AI headline",
      "meta": "<Publisher> • Europe/Paris local time like 07:10",
      "url": "https://link",
      "btp_angle": "1 short line: why it matters for SAP BTP (AI Core/Joule/security/cost)"
    }
  ]
}

Rules:
- 3 items max, published within 24-48h, enterprise-relevant.
- Prefer reputable sources (FT, WSJ, Economist, vendor blogs).
- Valid https URLs only. Use Europe/Paris for the time in 'meta'.
- NO markdown, no commentary outside the JSON.
Context banner (do not include in output): %s`, whenLocal)
}

// FallbackItems is the deterministic backup set used when research is
// unavailable. The banner's leading segment (the date label) feeds the meta
// lines so the static items still read as current.
func FallbackItems(whenLocal string) []Item {
	label := whenLocal
	if idx := strings.Index(whenLocal, "•"); idx > 0 {
		label = strings.TrimSpace(whenLocal[:idx])
	}

	return []Item{
		{
			SourceLogo: "https://logo.clearbit.com/openai.com",
			Headline:   "Enterprise AI controls gain traction (audit logs, PII filters, isolation)",
			Meta:       fmt.Sprintf("BTP4AI Wire • %s", label),
			URL:        "https://openai.com/enterprise",
			BTPAngle:   "Governance patterns map cleanly to Joule + AI Core guardrails.",
		},
		{
			SourceLogo: "https://logo.clearbit.com/microsoft.com",
			Headline:   "Vector search & RAG now standard in enterprise stacks",
			Meta:       fmt.Sprintf("Microsoft Learn • %s", label),
			URL:        "https://learn.microsoft.com/azure/search/search-what-is-azure-search",
			BTPAngle:   "Ground copilots on SAP data (S/4, docs) with managed vector stores.",
		},
		{
			SourceLogo: "https://logo.clearbit.com/cloud.google.com",
			Headline:   "Long-context models in production: design notes",
			Meta:       fmt.Sprintf("Google Cloud Blog • %s", label),
			URL:        "https://cloud.google.com/blog/products/ai-machine-learning",
			BTPAngle:   "Contracts/specs use-cases benefit; watch cost/latency.",
		},
	}
}
