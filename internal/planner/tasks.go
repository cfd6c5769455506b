package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
	"github.com/joseph-ayodele/zerowaste/internal/llm"
)

const reasonMalformed = "model response could not be parsed"

// ReceiptFallback is returned when the model answered with unusable text.
func ReceiptFallback() entity.ReceiptExtraction {
	return entity.ReceiptExtraction{LineItems: []entity.LineItem{}, Confidence: 0}
}

func RecommendationsFallback() entity.RecommendationSet {
	return entity.RecommendationSet{Recommendations: []string{}}
}

func WeeklyMenuFallback() entity.WeeklyMenuPlan {
	return entity.WeeklyMenuPlan{WeeklyMenu: []entity.DayPlan{}}
}

func MetricsFallback() entity.MetricsReport {
	return entity.MetricsReport{
		Metrics: entity.Metrics{
			WastePercentage:  0,
			EstimatedSavings: 0,
			WeeklyWaste:      []float64{0, 0, 0, 0, 0},
		},
		Recommendations: []string{},
	}
}

// ProcessReceipt extracts a receipt from a base64 or data-URL image. Model
// failures are returned as *ReceiptError; unusable text yields a degraded
// outcome holding ReceiptFallback.
func (s *Service) ProcessReceipt(ctx context.Context, imagePayload, apiKey string) (Outcome[entity.ReceiptExtraction], error) {
	logger := common.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	if _, err := (llm.Credentials{APIKey: apiKey, DefaultKey: s.cfg.DefaultKey}).Resolve(); err != nil {
		return Outcome[entity.ReceiptExtraction]{}, err
	}
	image, err := llm.DecodeImagePayload(imagePayload)
	if err != nil {
		logger.Warn("planner.receipt.bad_image", "error", err)
		return Outcome[entity.ReceiptExtraction]{}, err
	}

	raw, err := s.invoke(ctx, constants.TaskReceipt, llm.BuildReceiptPrompt(), image, apiKey)
	if err != nil {
		if errors.Is(err, common.ErrConfiguration) {
			return Outcome[entity.ReceiptExtraction]{}, err
		}
		logger.Error("planner.receipt.invoke_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Outcome[entity.ReceiptExtraction]{}, &ReceiptError{Cause: err}
	}

	receipt, parsed := decode[entity.ReceiptExtraction](logger, constants.TaskReceipt, raw)
	if !parsed {
		return degraded(ReceiptFallback(), reasonMalformed, nil), nil
	}
	logger.Info("planner.receipt.ok",
		"items", len(receipt.LineItems),
		"confidence", receipt.Confidence,
		"image_type", image.MediaType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ok(receipt), nil
}

// RecommendForFamily suggests meal planning advice for a household.
func (s *Service) RecommendForFamily(ctx context.Context, members []entity.FamilyMember, restrictions []entity.DietaryRestriction, prohibited []entity.ProhibitedDish, apiKey string) (Outcome[entity.RecommendationSet], error) {
	prompt, err := llm.BuildFamilyPrompt(members, restrictions, prohibited)
	if err != nil {
		return Outcome[entity.RecommendationSet]{}, err
	}
	return runTask(ctx, s, constants.TaskFamilyRecommendations, prompt, apiKey, RecommendationsFallback)
}

// RecommendForLeftovers suggests ways to reuse leftovers.
func (s *Service) RecommendForLeftovers(ctx context.Context, leftovers []entity.Leftover, apiKey string) (Outcome[entity.RecommendationSet], error) {
	prompt, err := llm.BuildLeftoverPrompt(leftovers)
	if err != nil {
		return Outcome[entity.RecommendationSet]{}, err
	}
	return runTask(ctx, s, constants.TaskLeftoverRecommendations, prompt, apiKey, RecommendationsFallback)
}

// GenerateWeeklyMenu plans a week of meals. A plan with fewer than seven
// days is returned as is; check IsComplete on the value.
func (s *Service) GenerateWeeklyMenu(ctx context.Context, h entity.Household, apiKey string) (Outcome[entity.WeeklyMenuPlan], error) {
	prompt, err := llm.BuildWeeklyMenuPrompt(h.Members, h.Restrictions, h.Prohibited, h.Products)
	if err != nil {
		return Outcome[entity.WeeklyMenuPlan]{}, err
	}
	out, err := runTask(ctx, s, constants.TaskWeeklyMenu, prompt, apiKey, WeeklyMenuFallback)
	if err == nil && !out.Degraded() && !out.Value.IsComplete() {
		common.LoggerFromContext(ctx, s.logger).Warn("planner.menu.partial", "days", len(out.Value.WeeklyMenu))
	}
	return out, err
}

// GenerateMetrics estimates household waste and savings.
func (s *Service) GenerateMetrics(ctx context.Context, members []entity.FamilyMember, products []entity.Product, leftovers []entity.Leftover, apiKey string) (Outcome[entity.MetricsReport], error) {
	prompt, err := llm.BuildMetricsPrompt(members, products, leftovers)
	if err != nil {
		return Outcome[entity.MetricsReport]{}, err
	}
	return runTask(ctx, s, constants.TaskMetrics, prompt, apiKey, MetricsFallback)
}

// runTask is the shared path for the non-receipt tasks: configuration
// errors propagate, everything else degrades to the fallback.
func runTask[T any](ctx context.Context, s *Service, task constants.Task, prompt llm.Prompt, apiKey string, fallback func() T) (Outcome[T], error) {
	logger := common.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	raw, err := s.invoke(ctx, task, prompt, nil, apiKey)
	if err != nil {
		if errors.Is(err, common.ErrConfiguration) {
			return Outcome[T]{}, err
		}
		logger.Warn("planner.task.degraded", "task", task, "reason", "invocation failed", "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return degraded(fallback(), "model unavailable: "+err.Error(), err), nil
	}

	value, parsed := decode[T](logger, task, raw)
	if !parsed {
		logger.Warn("planner.task.degraded", "task", task, "reason", reasonMalformed,
			"elapsed_ms", time.Since(start).Milliseconds())
		return degraded(fallback(), reasonMalformed, nil), nil
	}
	logger.Info("planner.task.ok", "task", task, "elapsed_ms", time.Since(start).Milliseconds())
	return ok(value), nil
}

// AskResponse is the answer to a free-form cooking question.
type AskResponse struct {
	Response string `json:"response"`
}

// Ask answers a free-form question. When the model ignores the JSON
// envelope, its plain text becomes the response.
func (s *Service) Ask(ctx context.Context, question, apiKey string) (Outcome[AskResponse], error) {
	if question == "" {
		return Outcome[AskResponse]{}, fmt.Errorf("%w: question is required", common.ErrInvalidInput)
	}
	raw, err := s.invoke(ctx, constants.TaskAsk, llm.BuildAskPrompt(question), nil, apiKey)
	if err != nil {
		if errors.Is(err, common.ErrConfiguration) {
			return Outcome[AskResponse]{}, err
		}
		return degraded(AskResponse{}, "model unavailable: "+err.Error(), err), nil
	}
	value, parsed := decode[AskResponse](common.LoggerFromContext(ctx, s.logger), constants.TaskAsk, raw)
	if !parsed || value.Response == "" {
		return degraded(AskResponse{Response: llm.StripFences(raw)}, "response was not JSON", nil), nil
	}
	return ok(value), nil
}

// Ping sends a minimal prompt to confirm the provider accepts the key.
func (s *Service) Ping(ctx context.Context, apiKey string) error {
	_, err := s.invoke(ctx, constants.TaskPing, llm.Prompt{User: `Respond with exactly: "OK"`}, nil, apiKey)
	return err
}
