package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

// AIService sends prompts to the configured LLM providers, falling back
// through every active config until one answers.
type AIService struct {
	db     *gorm.DB
	config *config.AIConfig
	usage  *AIUsageService
}

func NewAIService(db *gorm.DB, cfg *config.AIConfig) *AIService {
	return &AIService{
		db:     db,
		config: cfg,
		usage:  NewAIUsageService(db),
	}
}

type CompletionRequest struct {
	ProjectID uint
	Purpose   string // analyze, fix, review
	Prompt    string
	MaxTokens int
}

type Completion struct {
	Content          string
	ConfigName       string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

func (s *AIService) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	var project models.Project
	if req.ProjectID > 0 {
		if err := s.db.First(&project, req.ProjectID).Error; err != nil {
			return nil, fmt.Errorf("project not found: %w", err)
		}
	}

	logger.Infof("[AI] %s prompt length: %d chars", req.Purpose, len(req.Prompt))

	llmConfigs := s.getOrderedLLMConfigs(&project)
	if len(llmConfigs) == 0 {
		return nil, fmt.Errorf("no LLM configuration available")
	}

	var lastErr error
	for i, llmConfig := range llmConfigs {
		if req.MaxTokens > 0 && llmConfig.MaxTokens < req.MaxTokens {
			llmConfig.MaxTokens = req.MaxTokens
		}
		logger.Infof("[AI] Attempting LLM %d/%d: %s (model: %s)", i+1, len(llmConfigs), llmConfig.Name, llmConfig.Model)

		start := time.Now()
		result, err := s.callLLM(ctx, &llmConfig, req.Prompt)
		latency := time.Since(start)
		s.recordUsage(req, &llmConfig, result, latency, err)

		if err == nil {
			logger.Infof("[AI] Success with LLM: %s (%d chars in %s)", llmConfig.Name, len(result.Content), latency.Round(time.Millisecond))
			result.ConfigName = llmConfig.Name
			return result, nil
		}

		lastErr = err
		logger.Warnf("[AI] LLM %s failed: %v, trying next...", llmConfig.Name, err)
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("all LLMs failed, last error: %w", lastErr)
}

func (s *AIService) recordUsage(req CompletionRequest, cfg *models.LLMConfig, result *Completion, latency time.Duration, err error) {
	provider := providerName(cfg.Provider)
	llmCounter.WithLabelValues(provider, req.Purpose, statusLabel(err)).Inc()
	llmLatency.WithLabelValues(provider).Observe(latency.Seconds())

	entry := &models.AIUsageLog{
		Purpose:     req.Purpose,
		LLMConfigID: cfg.ID,
		Provider:    provider,
		Model:       cfg.Model,
		LatencyMs:   latency.Milliseconds(),
		Success:     err == nil,
	}
	if req.ProjectID > 0 {
		pid := req.ProjectID
		entry.ProjectID = &pid
	}
	if result != nil {
		entry.PromptTokens = result.PromptTokens
		entry.CompletionTokens = result.CompletionTokens
		entry.TotalTokens = result.PromptTokens + result.CompletionTokens
	}
	if err != nil {
		entry.ErrorMessage = truncate(err.Error(), 500)
	}
	s.usage.Record(entry)
}

// getOrderedLLMConfigs returns project config, then default, then every
// other active config by priority, then the config file entry.
func (s *AIService) getOrderedLLMConfigs(project *models.Project) []models.LLMConfig {
	var configs []models.LLMConfig

	if project.LLMConfigID != nil {
		var projectConfig models.LLMConfig
		if err := s.db.Where("id = ? AND is_active = ?", *project.LLMConfigID, true).First(&projectConfig).Error; err == nil {
			configs = append(configs, projectConfig)
		}
	}

	var defaultConfig models.LLMConfig
	if err := s.db.Where("is_default = ? AND is_active = ?", true, true).First(&defaultConfig).Error; err == nil {
		if len(configs) == 0 || configs[0].ID != defaultConfig.ID {
			configs = append(configs, defaultConfig)
		}
	}

	var backupConfigs []models.LLMConfig
	existingIDs := make(map[uint]bool)
	for _, c := range configs {
		existingIDs[c.ID] = true
	}
	s.db.Where("is_active = ?", true).Order("priority ASC, id ASC").Find(&backupConfigs)
	for _, c := range backupConfigs {
		if !existingIDs[c.ID] {
			configs = append(configs, c)
		}
	}

	if s.config != nil && (s.config.APIKey != "" || s.config.Provider == "ollama") {
		configs = append(configs, models.LLMConfig{
			Name:     "config-file",
			Provider: s.config.Provider,
			BaseURL:  s.config.BaseURL,
			APIKey:   s.config.APIKey,
			Model:    s.config.Model,
		})
	}

	return configs
}

func providerName(p string) string {
	if p == "" {
		return "openai"
	}
	return p
}

// callLLM dispatches to the appropriate provider-specific function based on Provider field
func (s *AIService) callLLM(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*Completion, error) {
	switch llmConfig.Provider {
	case "anthropic":
		return s.callAnthropic(ctx, llmConfig, prompt)
	case "ollama":
		return s.callOllama(ctx, llmConfig, prompt)
	case "gemini":
		return s.callGemini(ctx, llmConfig, prompt)
	case "azure":
		return s.callOpenAICompatible(ctx, llmConfig, prompt, openai.DefaultAzureConfig(llmConfig.APIKey, llmConfig.BaseURL))
	default:
		// openai and other OpenAI-compatible services
		clientConfig := openai.DefaultConfig(llmConfig.APIKey)
		if llmConfig.BaseURL != "" {
			clientConfig.BaseURL = llmConfig.BaseURL
		}
		return s.callOpenAICompatible(ctx, llmConfig, prompt, clientConfig)
	}
}

func (s *AIService) callOpenAICompatible(ctx context.Context, llmConfig *models.LLMConfig, prompt string, clientConfig openai.ClientConfig) (*Completion, error) {
	client := openai.NewClientWithConfig(clientConfig)

	temperature := float32(0.2)
	if llmConfig.Temperature > 0 {
		temperature = float32(llmConfig.Temperature)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		// For Azure this is the deployment name.
		Model: llmConfig.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   llmConfig.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", providerName(llmConfig.Provider), err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", providerName(llmConfig.Provider))
	}

	return &Completion{
		Content:          resp.Choices[0].Message.Content,
		Provider:         providerName(llmConfig.Provider),
		Model:            llmConfig.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// callAnthropic handles Anthropic Claude API using the native SDK
func (s *AIService) callAnthropic(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*Completion, error) {
	opts := []option.RequestOption{option.WithAPIKey(llmConfig.APIKey)}
	if llmConfig.BaseURL != "" && !strings.Contains(llmConfig.BaseURL, "openai.com") {
		opts = append(opts, option.WithBaseURL(llmConfig.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(llmConfig.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	model := llmConfig.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Completion{
		Content:          content.String(),
		Provider:         "anthropic",
		Model:            model,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// callOllama handles Ollama API using the native SDK
func (s *AIService) callOllama(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*Completion, error) {
	baseURL := llmConfig.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := llmConfig.Model
	if model == "" {
		model = "llama3"
	}

	out := &Completion{Provider: "ollama", Model: model}
	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Options: map[string]interface{}{
			"temperature": llmConfig.Temperature,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			out.PromptTokens = resp.PromptEvalCount
			out.CompletionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama API error: %w", err)
	}

	out.Content = content.String()
	return out, nil
}

// callGemini handles Google Gemini API using the native SDK
func (s *AIService) callGemini(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*Completion, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  llmConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini client error: %w", err)
	}

	model := llmConfig.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	out := &Completion{
		Content:  resp.Text(),
		Provider: "gemini",
		Model:    model,
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
