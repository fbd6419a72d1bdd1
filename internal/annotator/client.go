package annotator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Client handles communication with the AI annotation service
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	stubMode   bool
}

// NewClient creates a new annotator client with the given configuration
func NewClient(baseURL, secret string, stubMode bool) *Client {
	return &Client{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		stubMode:   stubMode,
	}
}

// Annotate requests a summary and priority score for one message.
// Scores outside 0-100 are clamped; the service is treated as opaque
// and occasionally returns out-of-range values.
func (c *Client) Annotate(ctx context.Context, req AnnotateRequest) (*Annotation, error) {
	if c.stubMode {
		return stubAnnotation(req), nil
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/annotate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("X-Annotator-Secret", c.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("annotator returned status %d: %s", resp.StatusCode, string(body))
	}

	var annotation Annotation
	if err := json.NewDecoder(resp.Body).Decode(&annotation); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	annotation.PriorityScore = clampScore(annotation.PriorityScore)
	return &annotation, nil
}

// stubAnnotation produces a deterministic annotation for development:
// a keyword-driven score with a VIP boost and a truncated summary.
func stubAnnotation(req AnnotateRequest) *Annotation {
	score := 30
	lower := strings.ToLower(req.Subject + " " + req.Content)
	for keyword, boost := range map[string]int{
		"urgent":   40,
		"asap":     30,
		"board":    25,
		"contract": 20,
		"invoice":  15,
		"meeting":  10,
	} {
		if strings.Contains(lower, keyword) {
			score += boost
		}
	}
	if req.IsVip {
		score += 20
	}

	summary := strings.TrimSpace(req.Content)
	if utf8.RuneCountInString(summary) > 160 {
		runes := []rune(summary)
		summary = string(runes[:160]) + "..."
	}
	if summary == "" {
		summary = req.Subject
	}

	return &Annotation{
		Summary:       summary,
		PriorityScore: clampScore(score),
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
