package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/source"
)

const breakdownInstruction = `Split the story below into short scenes for a narrated slideshow.
Answer with JSON only: {"scenes":[{"script":"<one subtitle line>","prompt":"<image prompt for that line>"}]}.
Keep the story order. Every script is one or two sentences.

Story:
`

type chatCompletionsRequest struct {
	Model          string           `json:"model"`
	Messages       []chatMessage    `json:"messages"`
	Modalities     []string         `json:"modalities,omitempty"`
	Stream         bool             `json:"stream"`
	ImageConfig    *imageConfigBody `json:"image_config,omitempty"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type imageConfigBody struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionsResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenRouterClient implements Service on the OpenRouter chat completions API.
type OpenRouterClient struct {
	BaseURL     string
	APIKey      string
	ImageModel  string
	TextModel   string
	AspectRatio string
	AssetDir    string
	HTTP        *http.Client
}

func NewOpenRouterClient(cfg *config.Config) *OpenRouterClient {
	return &OpenRouterClient{
		BaseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		APIKey:      cfg.APIKey,
		ImageModel:  cfg.ImageModel,
		TextModel:   cfg.TextModel,
		AspectRatio: cfg.AspectRatio,
		AssetDir:    cfg.AssetDir,
		HTTP:        &http.Client{Timeout: 2 * time.Minute},
	}
}

// GenerateVisual renders prompt to an image and stores it under AssetDir.
func (c *OpenRouterClient) GenerateVisual(ctx context.Context, prompt string) (Asset, error) {
	if c.APIKey == "" {
		return Asset{}, ErrCredential
	}

	req := chatCompletionsRequest{
		Model:      c.ImageModel,
		Messages:   []chatMessage{{Role: "user", Content: prompt}},
		Modalities: []string{"image", "text"},
	}
	if c.AspectRatio != "" {
		req.ImageConfig = &imageConfigBody{AspectRatio: c.AspectRatio}
	}

	parsed, err := c.complete(ctx, req)
	if err != nil {
		return Asset{}, err
	}
	if len(parsed.Choices) == 0 || len(parsed.Choices[0].Message.Images) == 0 {
		return Asset{}, errors.New("no image in response")
	}
	imageURL := strings.TrimSpace(parsed.Choices[0].Message.Images[0].ImageURL.URL)
	if imageURL == "" {
		return Asset{}, errors.New("image URL is empty")
	}

	var data []byte
	var mt string
	if strings.HasPrefix(imageURL, "data:") {
		data, err = source.DecodeDataURL(imageURL)
		mt = dataURLMIME(imageURL)
	} else {
		data, mt, err = c.download(ctx, imageURL)
	}
	if err != nil {
		return Asset{}, fmt.Errorf("fetch image: %w", err)
	}

	return c.save(data, mt)
}

// BreakdownStory asks the text model to split text into scenes.
func (c *OpenRouterClient) BreakdownStory(ctx context.Context, text string) ([]Beat, error) {
	if c.APIKey == "" {
		return nil, ErrCredential
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("story text is empty")
	}

	parsed, err := c.complete(ctx, chatCompletionsRequest{
		Model:          c.TextModel,
		Messages:       []chatMessage{{Role: "user", Content: breakdownInstruction + text}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("no breakdown in response")
	}
	return ParseBreakdown(parsed.Choices[0].Message.Content)
}

// ValidateCredential reports whether the provider accepts the key. A missing
// key is invalid without a request.
func (c *OpenRouterClient) ValidateCredential(ctx context.Context) (bool, error) {
	if c.APIKey == "" {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/key", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("key check: status %d", resp.StatusCode)
	}
}

func (c *OpenRouterClient) complete(ctx context.Context, body chatCompletionsRequest) (*chatCompletionsResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrCredential)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed chatCompletionsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response (%d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}
	return &parsed, nil
}

func (c *OpenRouterClient) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return data, mt, nil
}

func (c *OpenRouterClient) save(data []byte, mt string) (Asset, error) {
	if err := os.MkdirAll(c.AssetDir, 0755); err != nil {
		return Asset{}, err
	}
	name := buildFilename(c.ImageModel, extensionFromMIME(mt))
	f, err := os.CreateTemp(c.AssetDir, name)
	if err != nil {
		return Asset{}, err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return Asset{}, err
	}
	return Asset{Path: f.Name(), MIME: mt}, nil
}

// ParseBreakdown reads the model's JSON answer, tolerating markdown fences and
// a bare array instead of the {"scenes": [...]} object.
func ParseBreakdown(content string) ([]Beat, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var beats []Beat
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &beats); err != nil {
			return nil, fmt.Errorf("parse breakdown: %w", err)
		}
	} else {
		var wrapped struct {
			Scenes []Beat `json:"scenes"`
		}
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, fmt.Errorf("parse breakdown: %w", err)
		}
		beats = wrapped.Scenes
	}

	out := beats[:0]
	for _, b := range beats {
		b.Script = strings.TrimSpace(b.Script)
		b.Prompt = strings.TrimSpace(b.Prompt)
		if b.Script == "" && b.Prompt == "" {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, errors.New("breakdown has no scenes")
	}
	return out, nil
}

func dataURLMIME(dataURL string) string {
	meta := strings.TrimPrefix(dataURL, "data:")
	if i := strings.IndexAny(meta, ";,"); i >= 0 {
		meta = meta[:i]
	}
	return meta
}

func extensionFromMIME(mt string) string {
	mt = strings.TrimSpace(strings.ToLower(mt))
	switch mt {
	case "", "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	exts, err := mime.ExtensionsByType(mt)
	if err != nil || len(exts) == 0 {
		return ".png"
	}
	return exts[0]
}

// buildFilename returns a CreateTemp pattern; the * becomes a unique suffix.
func buildFilename(model, ext string) string {
	safeModel := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(model)
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("%s_%s_*%s", safeModel, timestamp, ext)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
