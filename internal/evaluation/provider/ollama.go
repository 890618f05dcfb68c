package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llava"
)

type OllamaConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// OllamaProvider talks to a local Ollama server over its HTTP API.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	System string   `json:"system,omitempty"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (o *OllamaProvider) DescribeImage(ctx context.Context, instruction string, image []byte, _ string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image is empty")
	}
	return o.generate(ctx, ollamaGenerateRequest{
		Model:  o.model,
		Prompt: "Transcribe the attached image.",
		System: instruction,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
	})
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return o.generate(ctx, ollamaGenerateRequest{Model: o.model, Prompt: prompt})
}

func (o *OllamaProvider) generate(ctx context.Context, req ollamaGenerateRequest) (string, error) {
	var resp ollamaGenerateResponse
	if err := o.postJSON(ctx, "/api/generate", req, &resp, "generate"); err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", errors.New("ollama returned no text")
	}
	return text, nil
}

func (o *OllamaProvider) postJSON(ctx context.Context, path string, payload interface{}, out interface{}, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if text := strings.TrimSpace(string(msg)); text != "" {
			return fmt.Errorf("ollama %s status: %s: %s", operation, resp.Status, text)
		}
		return fmt.Errorf("ollama %s status: %s", operation, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
