package planner

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
	"github.com/joseph-ayodele/zerowaste/internal/llm"
)

var pngPayload = base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00"))

// scripted replays canned responses in order and records every request.
type scripted struct {
	mu       sync.Mutex
	replies  []func(ctx context.Context) (string, error)
	requests []llm.Request
}

func (s *scripted) Invoke(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	n := len(s.requests)
	s.mu.Unlock()
	if n > len(s.replies) {
		return "", errors.New("unexpected call")
	}
	return s.replies[n-1](ctx)
}

func (s *scripted) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func text(out string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return out, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func hang() func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
}

var (
	errUnavailable = &common.ModelInvocationError{Provider: "test", Status: 503, Message: "overloaded", Transient: true}
	errBadKey      = &common.ModelInvocationError{Provider: "test", Status: 401, Message: "bad key"}
)

func newTestService(inv llm.Invoker, cfg Config) *Service {
	if cfg.DefaultKey == "" {
		cfg.DefaultKey = "default-key"
	}
	if cfg.RetryInitial == 0 {
		cfg.RetryInitial = time.Millisecond
	}
	return NewService(inv, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRetriesTransientFailureOnce(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){
		fail(errUnavailable),
		text(`{"recommendations": ["Plan portions"]}`),
	}}
	s := newTestService(inv, Config{MaxRetries: 1})

	out, err := s.RecommendForFamily(context.Background(), nil, nil, nil, "")
	require.NoError(t, err)
	assert.False(t, out.Degraded())
	assert.Equal(t, []string{"Plan portions"}, out.Value.Recommendations)
	assert.Equal(t, 2, inv.calls())
}

func TestGivesUpAfterOneRetry(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){
		fail(errUnavailable), fail(errUnavailable), fail(errUnavailable),
	}}
	s := newTestService(inv, Config{MaxRetries: 5})

	out, err := s.RecommendForLeftovers(context.Background(), nil, "")
	require.NoError(t, err)
	assert.True(t, out.Degraded())
	assert.Equal(t, []string{}, out.Value.Recommendations)
	assert.ErrorIs(t, out.Cause, common.ErrModelInvocation)
	assert.Contains(t, out.Reason, "model unavailable")
	assert.Equal(t, 2, inv.calls())
}

func TestDoesNotRetryPermanentFailure(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){fail(errBadKey), text("{}")}}
	s := newTestService(inv, Config{MaxRetries: 1})

	out, err := s.GenerateMetrics(context.Background(), nil, nil, nil, "")
	require.NoError(t, err)
	assert.True(t, out.Degraded())
	assert.Equal(t, 1, inv.calls())
	assert.Equal(t, MetricsFallback(), out.Value)
}

func TestPerCallTimeout(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){hang(), hang()}}
	s := newTestService(inv, Config{CallTimeout: 20 * time.Millisecond, MaxRetries: 1})

	start := time.Now()
	out, err := s.RecommendForFamily(context.Background(), nil, nil, nil, "")
	require.NoError(t, err)
	assert.True(t, out.Degraded())
	assert.Contains(t, out.Reason, "timed out")
	assert.True(t, common.IsTransient(out.Cause))
	assert.Equal(t, 2, inv.calls())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMissingCredentialsFailBeforeAnyCall(t *testing.T) {
	inv := &scripted{}
	s := NewService(inv, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := s.ProcessReceipt(context.Background(), "not even an image", "")
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = s.RecommendForFamily(context.Background(), nil, nil, nil, "")
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = s.GenerateWeeklyMenu(context.Background(), entity.Household{}, "")
	assert.ErrorIs(t, err, common.ErrConfiguration)

	assert.ErrorIs(t, s.Ping(context.Background(), ""), common.ErrConfiguration)
	assert.Zero(t, inv.calls())
}

func TestCallerKeyWinsAndRequestIsShaped(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){text(`{"recommendations": []}`)}}
	s := newTestService(inv, Config{Model: "m1"})

	_, err := s.RecommendForFamily(context.Background(), nil, nil, nil, "caller-key")
	require.NoError(t, err)

	req := inv.requests[0]
	assert.Equal(t, "caller-key", req.APIKey)
	assert.Equal(t, "m1", req.Model)
	assert.Equal(t, constants.TaskFamilyRecommendations, req.Task)
	assert.Equal(t, llm.TaskConfig(constants.TaskFamilyRecommendations), req.Config)
	assert.False(t, req.Config.Store)
	assert.Nil(t, req.Image)
}

func TestRecommendationsFromFencedText(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){
		text("```json\n{\"recommendations\": [\"Use leftover rice for fried rice\"]}\n```"),
	}}
	out, err := newTestService(inv, Config{}).RecommendForLeftovers(context.Background(), []entity.Leftover{{Product: "rice"}}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, []string{"Use leftover rice for fried rice"}, out.Value.Recommendations)
}

func TestRecommendationsFallbackOnProse(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){text("Sorry, I cannot help with that.")}}
	out, err := newTestService(inv, Config{}).RecommendForLeftovers(context.Background(), nil, "")
	require.NoError(t, err)
	assert.True(t, out.Degraded())
	assert.Nil(t, out.Cause)
	assert.NotNil(t, out.Value.Recommendations)
	assert.Empty(t, out.Value.Recommendations)
}

func TestProcessReceiptCoercesFields(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){
		text(`{"merchant": "Market", "confidence": 7, "lineItems": "none"}`),
	}}
	out, err := newTestService(inv, Config{}).ProcessReceipt(context.Background(), pngPayload, "")
	require.NoError(t, err)
	assert.False(t, out.Degraded())
	require.NotNil(t, out.Value.Merchant)
	assert.Equal(t, "Market", *out.Value.Merchant)
	assert.Equal(t, 0.5, out.Value.Confidence)
	assert.NotNil(t, out.Value.LineItems)
	assert.Empty(t, out.Value.LineItems)

	req := inv.requests[0]
	require.NotNil(t, req.Image)
	assert.Equal(t, "image/png", req.Image.MediaType)
	assert.Equal(t, constants.TaskReceipt, req.Task)
}

func TestProcessReceiptParsesLineItems(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){
		text(`Here: {"merchant": null, "lineItems": [{"name": "Leche", "qty": 2, "unitPrice": "25.50", "total": 51}], "total": 51, "confidence": 0.9}`),
	}}
	out, err := newTestService(inv, Config{}).ProcessReceipt(context.Background(), pngPayload, "")
	require.NoError(t, err)
	assert.Nil(t, out.Value.Merchant)
	require.Len(t, out.Value.LineItems, 1)
	assert.Equal(t, 25.5, *out.Value.LineItems[0].UnitPrice)
	assert.Equal(t, 0.9, out.Value.Confidence)
}

func TestProcessReceiptMalformedIsDegraded(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){text("I can't read this image")}}
	out, err := newTestService(inv, Config{}).ProcessReceipt(context.Background(), pngPayload, "")
	require.NoError(t, err)
	assert.True(t, out.Degraded())
	assert.Equal(t, ReceiptFallback(), out.Value)
	assert.Zero(t, out.Value.Confidence)
}

func TestProcessReceiptInvocationFailure(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){fail(errBadKey)}}
	_, err := newTestService(inv, Config{}).ProcessReceipt(context.Background(), pngPayload, "")

	var re *ReceiptError
	require.True(t, errors.As(err, &re))
	assert.True(t, strings.HasPrefix(err.Error(), "Error processing receipt: "))
	assert.ErrorIs(t, err, common.ErrModelInvocation)
}

func TestProcessReceiptRejectsNonImage(t *testing.T) {
	inv := &scripted{}
	_, err := newTestService(inv, Config{}).ProcessReceipt(context.Background(), base64.StdEncoding.EncodeToString([]byte("plain text")), "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Zero(t, inv.calls())
}

func TestWeeklyMenuPartialPlanIsReturned(t *testing.T) {
	raw := `{"weeklyMenu": [
		{"day": "Mon", "recipe": {"name": "Soup", "ingredients": [{"name": "Carrot", "quantity": "2", "unit": "pcs"}]}, "protein": "beans", "side": "bread"},
		{"day": "Tue", "recipe": {"name": "Tacos"}, "protein": "beef", "side": "rice"},
		{"day": "Wed", "recipe": {"name": "Pasta", "servings": 4}, "protein": "tuna", "side": "salad"},
		{"day": "Thu", "recipe": {"name": "Omelette", "difficulty": "Easy"}, "protein": "eggs", "side": "toast"}
	]}`
	inv := &scripted{replies: []func(context.Context) (string, error){text(raw)}}
	out, err := newTestService(inv, Config{}).GenerateWeeklyMenu(context.Background(), entity.Household{}, "")
	require.NoError(t, err)
	assert.False(t, out.Degraded())
	require.Len(t, out.Value.WeeklyMenu, 4)
	assert.False(t, out.Value.IsComplete())
	assert.Equal(t, "4", out.Value.WeeklyMenu[2].Recipe.Servings)
	assert.NotNil(t, out.Value.WeeklyMenu[1].Recipe.Ingredients)
}

func TestMetricsFallbackShape(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){text("no metrics today")}}
	out, err := newTestService(inv, Config{}).GenerateMetrics(context.Background(), nil, nil, nil, "")
	require.NoError(t, err)
	assert.True(t, out.Degraded())
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, out.Value.Metrics.WeeklyWaste)
	assert.Equal(t, []string{}, out.Value.Recommendations)
}

func TestAsk(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){
		text(`{"response": "Make fried rice."}`),
		text("Just make fried rice."),
	}}
	s := newTestService(inv, Config{})

	out, err := s.Ask(context.Background(), "rice?", "")
	require.NoError(t, err)
	assert.False(t, out.Degraded())
	assert.Equal(t, "Make fried rice.", out.Value.Response)

	out, err = s.Ask(context.Background(), "rice?", "")
	require.NoError(t, err)
	assert.True(t, out.Degraded())
	assert.Equal(t, "Just make fried rice.", out.Value.Response)

	_, err = s.Ask(context.Background(), "", "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestPing(t *testing.T) {
	inv := &scripted{replies: []func(context.Context) (string, error){text("OK"), fail(errBadKey)}}
	s := newTestService(inv, Config{})

	assert.NoError(t, s.Ping(context.Background(), ""))
	assert.ErrorIs(t, s.Ping(context.Background(), ""), common.ErrModelInvocation)
	assert.Equal(t, constants.TaskPing, inv.requests[0].Task)
}

func TestConcurrentTasksShareNothing(t *testing.T) {
	inv := llm.InvokerFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Task == constants.TaskMetrics {
			return `{"metrics": {"wastePercentage": 12, "estimatedSavings": 80, "weeklyWaste": [1,2,3,4,5]}, "recommendations": ["a"]}`, nil
		}
		return `{"weeklyMenu": []}`, nil
	})
	s := newTestService(inv, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			out, err := s.GenerateMetrics(context.Background(), nil, nil, nil, "")
			assert.NoError(t, err)
			assert.Equal(t, 12.0, out.Value.Metrics.WastePercentage)
		}()
		go func() {
			defer wg.Done()
			out, err := s.GenerateWeeklyMenu(context.Background(), entity.Household{}, "")
			assert.NoError(t, err)
			assert.Empty(t, out.Value.WeeklyMenu)
		}()
	}
	wg.Wait()
}
