package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Version: "test",
		Providers: map[string]config.ProviderConfig{
			"anthropic": {Type: "anthropic", BaseURL: "https://api.anthropic.com", APIKey: "sk-secret"},
			"lab":       {Type: "vllm", BaseURL: "http://localhost:8000/v1"},
		},
		Models: map[string]config.ModelConfig{
			"orchestrator": {Provider: "anthropic", Model: "claude-sonnet-4", DisplayName: "Orchestrator"},
			"executor":     {Provider: "lab", Model: "qwen-32b", DisplayName: "Model A", Default: true},
		},
		Workflow: config.WorkflowConfig{
			OrchestratorModel: "orchestrator",
			ExecutionModel:    "executor",
			MaxTurns:          15,
			MaxConcurrent:     5,
		},
		Pipelines: config.PipelinesConfig{
			GeneratorModel:  "executor",
			VerifierModels:  []string{"executor"},
			EvaluatorModels: []string{"executor"},
			MaxConcurrent:   5,
			MaxRetries:      1,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "console"},
		Server:  config.ServerConfig{Addr: ":0", MetricsEnabled: true, Transport: "ndjson"},
	}
}

func TestNewServerWiresPipelines(t *testing.T) {
	s, err := NewServer(testConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, s.generator)
	require.Equal(t, 1, s.verifier.Models())
	require.Len(t, s.evaluators, 1)
	require.Nil(t, s.store)
}

func TestNewServerRejectsUnknownPipelineModel(t *testing.T) {
	cfg := testConfig()
	cfg.Pipelines.VerifierModels = []string{"missing"}

	_, err := NewServer(cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "verifier model")
}

func TestConfigHandlerHidesCredentials(t *testing.T) {
	s, err := NewServer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rr := httptest.NewRecorder()
	s.configHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotContains(t, rr.Body.String(), "sk-secret")

	var view configView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Equal(t, "test", view.Version)
	require.Len(t, view.Models, 2)
	require.Equal(t, "executor", view.Models[0].ID)
	require.Equal(t, "vllm", view.Models[0].ProviderType)
}

func TestHealthHandler(t *testing.T) {
	s, err := NewServer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.healthHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"ok"`)
}
