package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/llm"
)

const provider = "gemini"

// Config for the Gemini client. Options are appended to every client the
// invoker builds, after the per-request API key.
type Config struct {
	Model   string
	Options []option.ClientOption
}

// Client implements llm.Invoker with the Google Generative AI SDK. A genai
// client is built per call because the key can differ per request.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

func (c *Client) Invoke(ctx context.Context, req llm.Request) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", common.NewConfigurationError("gemini: missing API key")
	}
	modelName := req.Model
	if modelName == "" || strings.HasPrefix(modelName, "gpt-") {
		modelName = c.cfg.Model
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	logger := c.logger.With("req_id", reqID)

	start := time.Now()
	logger.Info("llm.invoke.start",
		"provider", provider,
		"task", req.Task,
		"model", modelName,
		"has_image", req.Image != nil,
	)

	opts := append([]option.ClientOption{option.WithAPIKey(req.APIKey)}, c.cfg.Options...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		logger.Error("llm.invoke.error", "provider", provider, "task", req.Task, "stage", "client", "error", err)
		return "", &common.ModelInvocationError{Provider: provider, Message: "create client: " + err.Error(), Cause: err}
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("llm.gemini.close_error", "error", cerr)
		}
	}()

	model := client.GenerativeModel(modelName)
	model.SetTemperature(req.Config.Temperature)
	if req.Config.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(req.Config.MaxOutputTokens))
	}

	var parts []genai.Part
	if req.Image != nil {
		parts = append(parts, genai.Text(llm.Prompt{System: req.System, User: req.User}.Combined()))
		parts = append(parts, genai.ImageData(imageFormat(req.Image.MediaType), req.Image.Data))
	} else {
		if req.System != "" {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
		}
		parts = append(parts, genai.Text(req.User))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		logger.Error("llm.invoke.error",
			"provider", provider,
			"task", req.Task,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", classify(ctx, err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		logger.Warn("llm.invoke.empty", "provider", provider, "task", req.Task)
		return "", &common.ModelInvocationError{Provider: provider, Message: "no content generated"}
	}

	logger.Info("llm.invoke.ok",
		"provider", provider,
		"task", req.Task,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// imageFormat maps a media type to the short format genai.ImageData expects.
func imageFormat(mediaType string) string {
	f := strings.TrimPrefix(mediaType, "image/")
	if f == "" || f == mediaType {
		return "jpeg"
	}
	return f
}

// classify maps SDK errors onto ModelInvocationError. The SDK surfaces gRPC
// status errors or googleapi errors depending on transport.
func classify(ctx context.Context, err error) error {
	mie := &common.ModelInvocationError{Provider: provider, Message: err.Error(), Cause: err}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		mie.Message = "request timed out"
		mie.Transient = true
		return mie
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		mie.Status = gerr.Code
		if gerr.Message != "" {
			mie.Message = gerr.Message
		}
		mie.Transient = common.TransientStatus(gerr.Code)
		return mie
	}

	if st, ok := status.FromError(err); ok {
		mie.Message = st.Message()
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			mie.Transient = true
		case codes.Unauthenticated, codes.PermissionDenied:
			mie.Message = "credentials rejected: " + st.Message()
		}
	}
	return mie
}
