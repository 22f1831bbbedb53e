package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel   = "omni-moderation-latest"
	DefaultBaseURL = "https://api.openai.com/v1"
)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OpenAIScreener classifies text through the moderation endpoint. Content
// carrying an image URL goes through the multimodal input form, which the SDK
// request type does not model.
type OpenAIScreener struct {
	client     *openai.Client
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	logger     *slog.Logger
}

func NewOpenAIScreener(cfg OpenAIConfig, logger *slog.Logger) *OpenAIScreener {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	config.HTTPClient = cfg.HTTPClient

	return &OpenAIScreener{
		client:     openai.NewClientWithConfig(config),
		httpClient: cfg.HTTPClient,
		apiKey:     cfg.APIKey,
		baseURL:    config.BaseURL,
		model:      cfg.Model,
		logger:     logger,
	}
}

func (s *OpenAIScreener) Screen(ctx context.Context, content Content) Verdict {
	if content.Empty() {
		return Verdict{Outcome: OutcomeClean}
	}
	if s.apiKey == "" {
		s.logger.Warn("moderation api key not set, skipping", "component", "moderation")
		return Verdict{Outcome: OutcomeUnavailable, Err: errNotConfigured}
	}

	var (
		flagged    bool
		categories []string
		err        error
	)
	if strings.TrimSpace(content.ImageURL) != "" {
		flagged, categories, err = s.screenMultimodal(ctx, content)
	} else {
		flagged, categories, err = s.screenText(ctx, content.Text)
	}
	if err != nil {
		s.logger.Error("moderation request failed", "component", "moderation", "error", err)
		return Verdict{Outcome: OutcomeUnavailable, Err: err}
	}
	if flagged {
		return Verdict{Outcome: OutcomeFlagged, Categories: categories}
	}
	return Verdict{Outcome: OutcomeClean}
}

func (s *OpenAIScreener) screenText(ctx context.Context, text string) (bool, []string, error) {
	resp, err := s.client.Moderations(ctx, openai.ModerationRequest{Input: text, Model: s.model})
	if err != nil {
		return false, nil, err
	}
	if len(resp.Results) == 0 {
		return false, nil, nil
	}
	result := resp.Results[0]
	raw, err := json.Marshal(result.Categories)
	if err != nil {
		return false, nil, err
	}
	var cats map[string]bool
	if err := json.Unmarshal(raw, &cats); err != nil {
		return false, nil, err
	}
	return result.Flagged, trueKeys(cats), nil
}

type multimodalInput struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type multimodalResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

func (s *OpenAIScreener) screenMultimodal(ctx context.Context, content Content) (bool, []string, error) {
	input := make([]multimodalInput, 0, 2)
	if strings.TrimSpace(content.Text) != "" {
		input = append(input, multimodalInput{Type: "text", Text: content.Text})
	}
	input = append(input, multimodalInput{Type: "image_url", ImageURL: &imageRef{URL: content.ImageURL}})

	body, err := json.Marshal(map[string]any{"model": s.model, "input": input})
	if err != nil {
		return false, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return false, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, nil, fmt.Errorf("moderation api status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out multimodalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, nil, fmt.Errorf("decode moderation response: %w", err)
	}
	if len(out.Results) == 0 {
		return false, nil, errors.New("moderation response has no results")
	}
	return out.Results[0].Flagged, trueKeys(out.Results[0].Categories), nil
}

func trueKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, k)
		}
	}
	return keys
}
