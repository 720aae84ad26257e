package integration_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/circuitbreaker"
	"github.com/tributary-ai/llm-router-waf/internal/config"
	"github.com/tributary-ai/llm-router-waf/internal/costtable"
	"github.com/tributary-ai/llm-router-waf/internal/providers/openai"
	"github.com/tributary-ai/llm-router-waf/internal/routing"
	"github.com/tributary-ai/llm-router-waf/internal/types"
)

func TestRouterIntegration(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	costs := costtable.NewTable()
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{}, logger)
	router := routing.NewRouter(routing.PolicyCost, "openai", costs, breakers, 0.5, logger)

	openaiConfig := &openai.OpenAIConfig{
		APIKey: "test-api-key",
		Models: []types.ModelInfo{
			{
				Name:              "gpt-3.5-turbo",
				ProviderModelID:   "gpt-3.5-turbo",
				InputCostPer1K:    0.0015,
				OutputCostPer1K:   0.002,
				MaxContextWindow:  16385,
				MaxOutputTokens:   4096,
			},
		},
		Timeout: 30 * time.Second,
	}

	openaiProvider := openai.NewOpenAIProvider(openaiConfig, logger)
	router.RegisterProvider("openai", openaiProvider)
	costs.Refresh([]costtable.Entry{
		{Provider: "openai", Model: "gpt-3.5-turbo", InputCostPer1K: 0.0015, OutputCostPer1K: 0.002},
	})

	providers := router.ListProviders()
	if len(providers) != 1 {
		t.Fatalf("Expected 1 provider, got %d", len(providers))
	}
	if providers[0] != "openai" {
		t.Fatalf("Expected provider 'openai', got %s", providers[0])
	}

	provider, exists := router.GetProvider("openai")
	if !exists {
		t.Fatal("OpenAI provider should exist")
	}
	if provider.GetProviderName() != "openai" {
		t.Fatalf("Expected provider name 'openai', got %s", provider.GetProviderName())
	}

	caps := provider.GetCapabilities()
	if caps.ProviderName != "openai" {
		t.Fatalf("Expected provider name 'openai', got %s", caps.ProviderName)
	}

	req := &types.ChatRequest{
		ID:    "test-request",
		Model: "gpt-3.5-turbo",
		Messages: []types.Message{
			{Role: "user", Content: "Hello, world!"},
		},
		Timestamp: time.Now(),
	}

	decision, routedProvider, err := router.Route(req)
	if err != nil {
		t.Fatalf("Routing failed: %v", err)
	}
	if decision.Provider != "openai" {
		t.Fatalf("Expected routing to 'openai', got %s", decision.Provider)
	}
	if routedProvider.GetProviderName() != "openai" {
		t.Fatalf("Expected routed provider 'openai', got %s", routedProvider.GetProviderName())
	}
}

func TestConfigurationLoading(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-openai-key")
	t.Setenv("ANTHROPIC_API_KEY", "test-anthropic-key")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("Expected default port '8080', got %s", cfg.Server.Port)
	}
	if cfg.Router.Policy != "default" {
		t.Fatalf("Expected default routing policy 'default', got %s", cfg.Router.Policy)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("Expected default log level 'info', got %s", cfg.Logging.Level)
	}

	serverConfig := cfg.ToServerConfig()
	if serverConfig.Port != cfg.Server.Port {
		t.Fatalf("Server config conversion failed")
	}

	enabledProviders := cfg.GetEnabledProviders()
	if len(enabledProviders) != 2 {
		t.Fatalf("Expected 2 enabled providers with API keys, got %d", len(enabledProviders))
	}
}

func TestCostEstimation(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg := &openai.OpenAIConfig{
		APIKey: "test-key",
		Models: []types.ModelInfo{
			{
				Name:              "gpt-3.5-turbo",
				ProviderModelID:   "gpt-3.5-turbo",
				InputCostPer1K:    0.0015,
				OutputCostPer1K:   0.002,
				MaxContextWindow:  16385,
				MaxOutputTokens:   4096,
			},
		},
	}

	provider := openai.NewOpenAIProvider(cfg, logger)

	maxTokens := 100
	req := &types.ChatRequest{
		Model: "gpt-3.5-turbo",
		Messages: []types.Message{
			{Role: "user", Content: "Hello, this is a test message for cost estimation"},
		},
		MaxTokens: &maxTokens,
	}

	estimate, err := provider.EstimateCost(req)
	if err != nil {
		t.Fatalf("Cost estimation failed: %v", err)
	}
	if estimate.TotalCost <= 0 {
		t.Fatalf("Expected positive total cost, got %f", estimate.TotalCost)
	}
	if estimate.InputTokens <= 0 {
		t.Fatalf("Expected positive input tokens, got %d", estimate.InputTokens)
	}
	if estimate.OutputTokens != 100 {
		t.Fatalf("Expected 100 output tokens, got %d", estimate.OutputTokens)
	}
}

func BenchmarkRouting(b *testing.B) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	costs := costtable.NewTable()
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{}, logger)
	router := routing.NewRouter(routing.PolicyCost, "openai", costs, breakers, 0.5, logger)

	openaiConfig := &openai.OpenAIConfig{
		APIKey: "test-key",
		Models: []types.ModelInfo{
			{
				Name:              "gpt-3.5-turbo",
				ProviderModelID:   "gpt-3.5-turbo",
				InputCostPer1K:    0.0015,
				OutputCostPer1K:   0.002,
				MaxContextWindow:  16385,
				MaxOutputTokens:   4096,
			},
		},
	}

	openaiProvider := openai.NewOpenAIProvider(openaiConfig, logger)
	router.RegisterProvider("openai", openaiProvider)
	costs.Refresh([]costtable.Entry{
		{Provider: "openai", Model: "gpt-3.5-turbo", InputCostPer1K: 0.0015, OutputCostPer1K: 0.002},
	})

	req := &types.ChatRequest{
		ID:    "benchmark-request",
		Model: "gpt-3.5-turbo",
		Messages: []types.Message{
			{Role: "user", Content: "Hello, world!"},
		},
		Timestamp: time.Now(),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := router.Route(req); err != nil {
			b.Fatalf("Routing failed: %v", err)
		}
	}
}
