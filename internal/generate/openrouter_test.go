package generate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenRouterClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &OpenRouterClient{
		BaseURL:    srv.URL,
		APIKey:     "sk-test",
		ImageModel: "google/gemini-image",
		TextModel:  "google/gemini-text",
		AssetDir:   t.TempDir(),
		HTTP:       srv.Client(),
	}
}

func imageResponse(url string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":"","images":[{"image_url":{"url":%q}}]}}]}`, url)
}

func TestGenerateVisualDataURL(t *testing.T) {
	payload := []byte("\x89PNG fake")
	var got chatCompletionsRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, imageResponse("data:image/png;base64,"+base64.StdEncoding.EncodeToString(payload)))
	})
	c.AspectRatio = "16:9"

	asset, err := c.GenerateVisual(context.Background(), "a lighthouse at dusk")
	if err != nil {
		t.Fatalf("GenerateVisual: %v", err)
	}
	if got.Model != "google/gemini-image" || got.Messages[0].Content != "a lighthouse at dusk" {
		t.Errorf("request = %+v", got)
	}
	if got.ImageConfig == nil || got.ImageConfig.AspectRatio != "16:9" {
		t.Errorf("image config = %+v", got.ImageConfig)
	}
	if filepath.Ext(asset.Path) != ".png" || filepath.Dir(asset.Path) != c.AssetDir {
		t.Errorf("asset path = %s", asset.Path)
	}
	data, err := os.ReadFile(asset.Path)
	if err != nil || string(data) != string(payload) {
		t.Errorf("saved %q, %v", data, err)
	}
}

func TestGenerateVisualDownloadsURL(t *testing.T) {
	var srvURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/completions":
			fmt.Fprint(w, imageResponse(srvURL+"/img/1"))
		case "/img/1":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg bytes"))
		default:
			http.NotFound(w, r)
		}
	})
	srvURL = c.BaseURL

	asset, err := c.GenerateVisual(context.Background(), "x")
	if err != nil {
		t.Fatalf("GenerateVisual: %v", err)
	}
	if filepath.Ext(asset.Path) != ".jpg" || asset.MIME != "image/jpeg" {
		t.Errorf("asset = %+v", asset)
	}
}

func TestGenerateVisualErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		cred   bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, true},
		{"api error", http.StatusBadRequest, `{"error":{"message":"content policy"}}`, false},
		{"no image", http.StatusOK, `{"choices":[{"message":{"content":"sorry"}}]}`, false},
		{"garbage", http.StatusBadGateway, `<html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.GenerateVisual(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrCredential) != tt.cred {
				t.Errorf("credential error = %v, want %v (%v)", errors.Is(err, ErrCredential), tt.cred, err)
			}
		})
	}
}

func TestMissingKey(t *testing.T) {
	c := &OpenRouterClient{}
	ctx := context.Background()

	if _, err := c.GenerateVisual(ctx, "x"); !errors.Is(err, ErrCredential) {
		t.Errorf("GenerateVisual = %v", err)
	}
	if _, err := c.BreakdownStory(ctx, "x"); !errors.Is(err, ErrCredential) {
		t.Errorf("BreakdownStory = %v", err)
	}
	if ok, err := c.ValidateCredential(ctx); ok || err != nil {
		t.Errorf("ValidateCredential = %v, %v", ok, err)
	}
}

func TestValidateCredential(t *testing.T) {
	tests := []struct {
		status int
		ok     bool
		err    bool
	}{
		{http.StatusOK, true, false},
		{http.StatusUnauthorized, false, false},
		{http.StatusInternalServerError, false, true},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/key" {
				t.Errorf("path = %s", r.URL.Path)
			}
			w.WriteHeader(tt.status)
		})
		ok, err := c.ValidateCredential(context.Background())
		if ok != tt.ok || (err != nil) != tt.err {
			t.Errorf("status %d: got %v, %v", tt.status, ok, err)
		}
	}
}

func TestBreakdownStory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionsRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("response format = %+v", req.ResponseFormat)
		}
		if !strings.Contains(req.Messages[0].Content, "Once upon a time") {
			t.Errorf("story missing from prompt")
		}
		content := `{"scenes":[{"script":"Once.","prompt":"castle"},{"script":"Then.","prompt":"dragon"}]}`
		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": content}}}}
		json.NewEncoder(w).Encode(resp)
	})

	beats, err := c.BreakdownStory(context.Background(), "Once upon a time")
	if err != nil {
		t.Fatalf("BreakdownStory: %v", err)
	}
	prompts, scripts := Split(beats)
	if len(prompts) != 2 || prompts[1] != "dragon" || scripts[0] != "Once." {
		t.Errorf("prompts=%v scripts=%v", prompts, scripts)
	}
}

func TestParseBreakdown(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"object", `{"scenes":[{"script":"a","prompt":"b"}]}`, 1, false},
		{"array", `[{"script":"a","prompt":"b"},{"script":"c","prompt":"d"}]`, 2, false},
		{"fenced", "```json\n{\"scenes\":[{\"script\":\"a\",\"prompt\":\"b\"}]}\n```", 1, false},
		{"blank entries dropped", `[{"script":" ","prompt":""},{"script":"a","prompt":"b"}]`, 1, false},
		{"empty", `{"scenes":[]}`, 0, true},
		{"not json", `here are your scenes`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			beats, err := ParseBreakdown(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if len(beats) != tt.want {
				t.Errorf("beats = %+v", beats)
			}
		})
	}
}
