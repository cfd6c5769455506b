package llm

import (
	"context"
	"strings"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/common"
)

// GenerationConfig bounds a single model call. Store is the provider-side
// data retention flag and is always false for planner calls.
type GenerationConfig struct {
	MaxOutputTokens int
	Temperature     float32
	Store           bool
}

var taskConfigs = map[constants.Task]GenerationConfig{
	constants.TaskReceipt:                 {MaxOutputTokens: 2000, Temperature: 0.3},
	constants.TaskFamilyRecommendations:   {MaxOutputTokens: 500, Temperature: 0.7},
	constants.TaskLeftoverRecommendations: {MaxOutputTokens: 500, Temperature: 0.7},
	constants.TaskWeeklyMenu:              {MaxOutputTokens: 4000, Temperature: 0.7},
	constants.TaskMetrics:                 {MaxOutputTokens: 600, Temperature: 0.5},
	constants.TaskAsk:                     {MaxOutputTokens: 800, Temperature: 0.7},
	constants.TaskPing:                    {MaxOutputTokens: 16, Temperature: 0},
}

// TaskConfig returns the generation preset for a task.
func TaskConfig(task constants.Task) GenerationConfig {
	if cfg, ok := taskConfigs[task]; ok {
		return cfg
	}
	return GenerationConfig{MaxOutputTokens: 500, Temperature: 0.7}
}

// Image is a decoded receipt image sent alongside the prompt.
type Image struct {
	Data      []byte
	MediaType string
}

// Request is one plain-text generation call.
type Request struct {
	Task   constants.Task
	Model  string
	System string
	User   string
	Image  *Image
	Config GenerationConfig
	APIKey string
}

// Invoker sends a prompt to a model provider and returns its raw text output.
// Implementations must return *common.ModelInvocationError for any failure
// and must not retry.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Credentials carries the per-request key and the deployment default.
type Credentials struct {
	APIKey     string
	DefaultKey string
}

// Resolve picks the caller key when set, the default otherwise.
func (c Credentials) Resolve() (string, error) {
	if k := strings.TrimSpace(c.APIKey); k != "" {
		return k, nil
	}
	if k := strings.TrimSpace(c.DefaultKey); k != "" {
		return k, nil
	}
	return "", common.NewConfigurationError("no API key provided and no default key configured")
}
