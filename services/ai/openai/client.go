package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/amebo/notes-backend/services/providers"
)

// Client speaks the OpenAI REST dialect. It is shared by every backend that
// exposes an OpenAI-compatible API, so errors carry the caller's provider label.
type Client struct {
	provider   string
	envKey     string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// ClientConfig configures a Client
type ClientConfig struct {
	// Provider labels errors raised by this client
	Provider string

	// EnvKey names the variable the API key comes from, for missing-credential errors
	EnvKey string

	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a client. A missing API key is reported at call time.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		provider:   cfg.Provider,
		envKey:     cfg.EnvKey,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: providers.NewHTTPClient(cfg.Timeout),
	}
}

// ChatCompletion returns the content of the first choice
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (string, error) {
	if err := c.checkCredentials(); err != nil {
		return "", err
	}

	resp, err := providers.SendJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/chat/completions", c.headers(), req)
	if err != nil {
		return "", providers.NewProviderError(c.provider, providers.CodeHTTPError, "chat completion request failed", 0, err)
	}
	if !resp.OK() {
		return "", c.handleErrorResponse(resp.StatusCode, resp.Body)
	}

	var chatResp ChatResponse
	if err := resp.Decode(&chatResp); err != nil {
		return "", providers.NewProviderError(c.provider, providers.CodeParseError, "failed to decode chat completion", resp.StatusCode, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", providers.NewProviderError(c.provider, providers.CodeVendorError, "chat completion returned no choices", resp.StatusCode, nil)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Embedding returns the vector for input
func (c *Client) Embedding(ctx context.Context, model, input string) ([]float64, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	body := EmbeddingRequest{Model: model, Input: input}
	resp, err := providers.SendJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/embeddings", c.headers(), body)
	if err != nil {
		return nil, providers.NewProviderError(c.provider, providers.CodeHTTPError, "embedding request failed", 0, err)
	}
	if !resp.OK() {
		return nil, c.handleErrorResponse(resp.StatusCode, resp.Body)
	}

	var embResp EmbeddingResponse
	if err := resp.Decode(&embResp); err != nil {
		return nil, providers.NewProviderError(c.provider, providers.CodeParseError, "failed to decode embedding", resp.StatusCode, err)
	}
	if len(embResp.Data) == 0 {
		return nil, providers.NewProviderError(c.provider, providers.CodeVendorError, "embedding response was empty", resp.StatusCode, nil)
	}

	return embResp.Data[0].Embedding, nil
}

// Transcription uploads audio as multipart form data and requests verbose JSON
func (c *Client) Transcription(ctx context.Context, model string, audio []byte, mimeType string) (*TranscriptionResponse, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreatePart(filePartHeader(mimeType))
	if err != nil {
		return nil, providers.NewProviderError(c.provider, providers.CodeRequestError, "failed to build upload", 0, err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, providers.NewProviderError(c.provider, providers.CodeRequestError, "failed to build upload", 0, err)
	}
	_ = writer.WriteField("model", model)
	_ = writer.WriteField("response_format", "verbose_json")
	if err := writer.Close(); err != nil {
		return nil, providers.NewProviderError(c.provider, providers.CodeRequestError, "failed to build upload", 0, err)
	}

	resp, err := providers.Send(ctx, c.httpClient, providers.Request{
		Method:      http.MethodPost,
		URL:         c.baseURL + "/audio/transcriptions",
		Headers:     c.headers(),
		Body:        &buf,
		ContentType: writer.FormDataContentType(),
	})
	if err != nil {
		return nil, providers.NewProviderError(c.provider, providers.CodeHTTPError, "transcription request failed", 0, err)
	}
	if !resp.OK() {
		return nil, c.handleErrorResponse(resp.StatusCode, resp.Body)
	}

	var trResp TranscriptionResponse
	if err := resp.Decode(&trResp); err != nil {
		return nil, providers.NewProviderError(c.provider, providers.CodeParseError, "failed to decode transcription", resp.StatusCode, err)
	}
	return &trResp, nil
}

func (c *Client) checkCredentials() error {
	if c.apiKey == "" {
		return providers.MissingCredential(c.provider, c.envKey)
	}
	return nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// handleErrorResponse turns a non-2xx body into a ProviderError
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(c.provider, providers.CodeHTTPError,
			fmt.Sprintf("unexpected status %d", statusCode), statusCode, errors.New(string(body)))
	}

	return providers.NewProviderError(
		c.provider,
		providers.CodeVendorError,
		errResp.Error.Message,
		statusCode,
		errors.New(errResp.Error.Type),
	)
}

func filePartHeader(mimeType string) textproto.MIMEHeader {
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="audio.%s"`, audioExtension(mimeType)))
	h.Set("Content-Type", mimeType)
	return h
}

func audioExtension(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	switch base {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/ogg":
		return "ogg"
	default:
		return "webm"
	}
}

// OpenAI wire types

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type EmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type EmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

type TranscriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
