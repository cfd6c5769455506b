package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/llm"
)

const provider = "openai"

type inputContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type inputMessage struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

type responsesRequest struct {
	Model           string         `json:"model"`
	Instructions    string         `json:"instructions,omitempty"`
	Input           []inputMessage `json:"input"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Temperature     float32        `json:"temperature"`
	Store           bool           `json:"store"`
}

type responsesResponse struct {
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// Invoke implements llm.Invoker against the Responses API. Image requests
// send the instructions and the image in a single user message.
func (c *Client) Invoke(ctx context.Context, req llm.Request) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", common.NewConfigurationError("openai: missing API key")
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	body := responsesRequest{
		Model:           model,
		MaxOutputTokens: req.Config.MaxOutputTokens,
		Temperature:     req.Config.Temperature,
		Store:           req.Config.Store,
	}
	if req.Image != nil {
		text := req.System + "\n\n" + req.User
		if req.System == "" {
			text = req.User
		}
		body.Input = []inputMessage{{
			Role: "user",
			Content: []inputContent{
				{Type: "input_text", Text: text},
				{Type: "input_image", ImageURL: req.Image.DataURL()},
			},
		}}
	} else {
		body.Instructions = req.System
		body.Input = []inputMessage{{
			Role:    "user",
			Content: []inputContent{{Type: "input_text", Text: req.User}},
		}}
	}

	start := time.Now()
	c.logger.Info("llm.invoke.start",
		"provider", provider,
		"task", req.Task,
		"model", model,
		"max_output_tokens", req.Config.MaxOutputTokens,
		"has_image", req.Image != nil,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/responses"
	headers := map[string]string{"Authorization": "Bearer " + req.APIKey}
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var te *llm.TransportError
		if status == 0 && errors.As(err, &te) {
			return "", &common.ModelInvocationError{
				Provider:  provider,
				Message:   transportMessage(ctx, err),
				Transient: !errors.Is(err, context.Canceled),
				Cause:     err,
			}
		}
		if status == 0 {
			return "", &common.ModelInvocationError{Provider: provider, Message: err.Error(), Cause: err}
		}
		return "", &common.ModelInvocationError{
			Provider:  provider,
			Status:    status,
			Message:   errorMessage(raw, status),
			Transient: common.TransientStatus(status),
			Cause:     err,
		}
	}

	var rr responsesResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return "", &common.ModelInvocationError{Provider: provider, Status: status, Message: "decode response: " + err.Error(), Cause: err}
	}
	if rr.Error != nil && rr.Error.Message != "" {
		return "", &common.ModelInvocationError{Provider: provider, Status: status, Message: rr.Error.Message}
	}

	text := outputText(rr)
	if strings.TrimSpace(text) == "" {
		return "", &common.ModelInvocationError{Provider: provider, Status: status, Message: "empty output (status " + rr.Status + ")"}
	}

	c.logger.Info("llm.invoke.ok",
		"provider", provider,
		"task", req.Task,
		"status", rr.Status,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func outputText(rr responsesResponse) string {
	var b strings.Builder
	for _, item := range rr.Output {
		if item.Type != "" && item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

func errorMessage(raw []byte, status int) string {
	var env struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return fmt.Sprintf("unexpected status %d", status)
}

func transportMessage(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request canceled"
	}
	return err.Error()
}
