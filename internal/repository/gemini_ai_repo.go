package repository

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"insight-reports/config"
	"insight-reports/internal/dto"
	"insight-reports/pkg/httpclient"
	"insight-reports/pkg/logger"
	"insight-reports/pkg/ratelimit"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GenerationRepository is the AI collaborator boundary. It takes a
// fully-built request and returns the model's raw text output; section
// parsing happens in the service layer.
type GenerationRepository interface {
	Generate(ctx context.Context, req dto.GenerationRequest) (string, error)
}

// geminiRepository talks to the Google Gemini API.
type geminiRepository struct {
	cfg            *config.Config
	logger         *logger.Logger
	httpClient     httpclient.HTTPClient
	tokenLimiter   *ratelimit.TokenLimiter
	requestLimiter *rate.Limiter
	genAiClient    *genai.Client
}

// NewGeminiRepository creates a new instance of geminiRepository.
func NewGeminiRepository(cfg *config.Config, log *logger.Logger) (GenerationRepository, error) {
	secondsPerRequest := time.Minute / time.Duration(cfg.Gemini.MaxRequestPerMinute)
	requestLimiter := rate.NewLimiter(rate.Every(secondsPerRequest), 1)

	tokenLimiter := ratelimit.NewTokenLimiter(cfg.Gemini.MaxTokenPerMinute)
	genAiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.Gemini.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiRepository{
		cfg:            cfg,
		logger:         log,
		httpClient:     httpclient.New(cfg.Gemini.BaseURL, cfg.Gemini.Timeout, ""),
		tokenLimiter:   tokenLimiter,
		requestLimiter: requestLimiter,
		genAiClient:    genAiClient,
	}, nil
}

func (r *geminiRepository) model(mode dto.GenerationMode) string {
	if mode == dto.ModeDeep {
		return r.cfg.Gemini.DeepModel
	}
	return r.cfg.Gemini.QuickModel
}

func (r *geminiRepository) Generate(ctx context.Context, req dto.GenerationRequest) (string, error) {
	prompt := r.buildPrompt(req)
	modelName := r.model(req.Mode)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, "user"),
	}
	geminiTokenResp, err := r.genAiClient.Models.CountTokens(ctx, modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to count tokens: %w", err)
	}

	r.logger.Debug("Gemini token count",
		logger.IntField("total_tokens", int(geminiTokenResp.TotalTokens)),
		logger.IntField("remaining", r.tokenLimiter.GetRemaining()),
	)
	if err := r.tokenLimiter.Wait(ctx, int(geminiTokenResp.TotalTokens)); err != nil {
		return "", fmt.Errorf("failed to wait for gemini token limit: %w", err)
	}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for gemini request limit: %w", err)
	}

	payload := dto.GeminiAPIRequest{
		Contents: []dto.Content{{Parts: []dto.Part{{Text: prompt}}}},
	}

	geminiAPIResponse := dto.GeminiAPIResponse{}
	apiURL := fmt.Sprintf("/%s:generateContent?key=%s", modelName, r.cfg.Gemini.APIKey)

	geminiResp, err := r.httpClient.Post(ctx, apiURL, payload, nil, &geminiAPIResponse)
	if err != nil {
		return "", fmt.Errorf("failed to send request to gemini: %w", err)
	}

	if geminiResp.StatusCode != http.StatusOK {
		r.logger.ErrorContext(ctx, "failed to get data from gemini", logger.IntField("status_code", geminiResp.StatusCode))
		return "", fmt.Errorf("gemini returned status %d: %s", geminiResp.StatusCode, geminiResp.Body)
	}

	if len(geminiAPIResponse.Candidates) == 0 || len(geminiAPIResponse.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("invalid response from Gemini API: no content found")
	}

	output := geminiAPIResponse.Candidates[0].Content.Parts[0].Text
	return strings.TrimSpace(output), nil
}
