package household

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
	"github.com/joseph-ayodele/zerowaste/internal/planner"
	"github.com/joseph-ayodele/zerowaste/internal/repository"
)

const pngPayload = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAIAAACQd1Pe"

// fakePlanner returns fixed outcomes and records the household it was given.
type fakePlanner struct {
	receipt   planner.Outcome[entity.ReceiptExtraction]
	receiptEr error
	recs      planner.Outcome[entity.RecommendationSet]
	menu      planner.Outcome[entity.WeeklyMenuPlan]
	metrics   planner.Outcome[entity.MetricsReport]
	err       error

	seen entity.Household
	keys []string
}

func (f *fakePlanner) ProcessReceipt(_ context.Context, _ string, apiKey string) (planner.Outcome[entity.ReceiptExtraction], error) {
	f.keys = append(f.keys, apiKey)
	return f.receipt, f.receiptEr
}

func (f *fakePlanner) RecommendForFamily(_ context.Context, _ []entity.FamilyMember, _ []entity.DietaryRestriction, _ []entity.ProhibitedDish, apiKey string) (planner.Outcome[entity.RecommendationSet], error) {
	f.keys = append(f.keys, apiKey)
	return f.recs, f.err
}

func (f *fakePlanner) RecommendForLeftovers(_ context.Context, _ []entity.Leftover, apiKey string) (planner.Outcome[entity.RecommendationSet], error) {
	f.keys = append(f.keys, apiKey)
	return f.recs, f.err
}

func (f *fakePlanner) GenerateWeeklyMenu(_ context.Context, h entity.Household, apiKey string) (planner.Outcome[entity.WeeklyMenuPlan], error) {
	f.seen = h
	f.keys = append(f.keys, apiKey)
	return f.menu, f.err
}

func (f *fakePlanner) GenerateMetrics(_ context.Context, members []entity.FamilyMember, products []entity.Product, leftovers []entity.Leftover, apiKey string) (planner.Outcome[entity.MetricsReport], error) {
	f.seen = entity.Household{Members: members, Products: products, Leftovers: leftovers}
	f.keys = append(f.keys, apiKey)
	return f.metrics, f.err
}

func okOutcome[T any](v T) planner.Outcome[T] {
	return planner.Outcome[T]{Value: v, Status: planner.StatusOK}
}

func degradedOutcome[T any](v T) planner.Outcome[T] {
	return planner.Outcome[T]{Value: v, Status: planner.StatusDegraded, Reason: "model unavailable"}
}

func newTestService(t *testing.T, p Planner) (*Service, *repository.HouseholdRepository) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	drv, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: "file:" + filepath.Join(t.TempDir(), "hh.db")}, logger)
	require.NoError(t, err)
	store, err := repository.NewSQLStore(ctx, drv, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repo := repository.NewHouseholdRepository(store, logger)
	svc := NewService(p, repo, logger)
	svc.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestSaveFamilyDataStoresRecommendations(t *testing.T) {
	p := &fakePlanner{recs: okOutcome(entity.RecommendationSet{Recommendations: []string{"Cook in batches"}})}
	svc, repo := newTestService(t, p)
	ctx := context.Background()

	recs, res, err := svc.SaveFamilyData(ctx, "home", FamilyInput{
		Members:    []entity.FamilyMember{{Type: "adult", Count: 2}},
		Prohibited: []entity.ProhibitedDish{{Name: "Liver"}},
	}, "caller-key")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{"Cook in batches"}, recs)
	assert.Equal(t, []string{"caller-key"}, p.keys)

	stored, err := repo.LoadRecommendations(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cook in batches"}, stored)
	h, err := repo.LoadHousehold(ctx, "home")
	require.NoError(t, err)
	assert.Len(t, h.Members, 1)
}

func TestDegradedRecommendationsAreNotPersisted(t *testing.T) {
	p := &fakePlanner{recs: degradedOutcome(planner.RecommendationsFallback())}
	svc, repo := newTestService(t, p)
	ctx := context.Background()
	require.NoError(t, repo.SaveRecommendations(ctx, "home", []string{"previous"}))

	recs, res, err := svc.SaveLeftovers(ctx, "home", []entity.Leftover{{Meal: "dinner", Product: "rice", Quantity: "1 cup"}}, "")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "model unavailable", res.Reason)
	assert.Empty(t, recs)

	stored, err := repo.LoadRecommendations(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, []string{"previous"}, stored)
	h, err := repo.LoadHousehold(ctx, "home")
	require.NoError(t, err)
	assert.Len(t, h.Leftovers, 1)
}

func TestSaveFamilyDataValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakePlanner{})
	_, _, err := svc.SaveFamilyData(context.Background(), "", FamilyInput{
		Members: []entity.FamilyMember{{Type: "", Count: -1}},
	}, "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestConfigurationErrorPropagates(t *testing.T) {
	svc, _ := newTestService(t, &fakePlanner{err: common.NewConfigurationError("no key")})
	_, _, err := svc.GenerateMenu(context.Background(), "home", "")
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestProcessReceiptAppendsProducts(t *testing.T) {
	qty := 2.0
	p := &fakePlanner{receipt: okOutcome(entity.ReceiptExtraction{
		LineItems:  []entity.LineItem{{Name: "Leche", Qty: &qty}, {Name: "Pan"}},
		Confidence: 0.9,
	})}
	svc, repo := newTestService(t, p)
	ctx := context.Background()

	res, err := svc.ProcessReceipt(ctx, "home", pngPayload, "")
	require.NoError(t, err)
	require.Len(t, res.Products, 2)
	assert.Equal(t, "Dairy", res.Products[0].Category)
	assert.Equal(t, 0.9, res.Receipt.Confidence)

	h, err := repo.LoadHousehold(ctx, "home")
	require.NoError(t, err)
	assert.Len(t, h.Products, 2)
}

func TestProcessReceiptWithoutProducts(t *testing.T) {
	p := &fakePlanner{receipt: degradedOutcome(planner.ReceiptFallback())}
	svc, repo := newTestService(t, p)
	ctx := context.Background()

	res, err := svc.ProcessReceipt(ctx, "home", pngPayload, "")
	assert.ErrorIs(t, err, ErrNoProducts)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.True(t, res.Degraded)

	h, err := repo.LoadHousehold(ctx, "home")
	require.NoError(t, err)
	assert.Empty(t, h.Products)
}

func TestProcessReceiptErrors(t *testing.T) {
	receiptErr := &planner.ReceiptError{Cause: &common.ModelInvocationError{Provider: "p", Message: "down"}}
	svc, _ := newTestService(t, &fakePlanner{receiptEr: receiptErr})

	_, err := svc.ProcessReceipt(context.Background(), "home", pngPayload, "")
	var re *planner.ReceiptError
	assert.True(t, errors.As(err, &re))

	_, err = svc.ProcessReceipt(context.Background(), "home", "%%%", "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSaveValidatedProductsCanonicalisesCategory(t *testing.T) {
	svc, repo := newTestService(t, &fakePlanner{})
	ctx := context.Background()

	in := []entity.Product{{Name: "Queso", Category: "lácteos"}, {Name: "Manzana", Category: "whatever"}}
	require.NoError(t, svc.SaveValidatedProducts(ctx, "home", in))
	assert.Equal(t, "lácteos", in[0].Category)

	h, err := repo.LoadHousehold(ctx, "home")
	require.NoError(t, err)
	require.Len(t, h.Products, 2)
	assert.Equal(t, "Dairy", h.Products[0].Category)
	assert.Equal(t, "Fruits", h.Products[1].Category)

	assert.ErrorIs(t, svc.SaveValidatedProducts(ctx, "home", []entity.Product{{Name: ""}}), common.ErrInvalidInput)
}

func sevenDayPlan() entity.WeeklyMenuPlan {
	var plan entity.WeeklyMenuPlan
	for _, d := range []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"} {
		plan.WeeklyMenu = append(plan.WeeklyMenu, entity.DayPlan{Day: d, Recipe: entity.Recipe{
			Name:        d + " bowl",
			Ingredients: []entity.Ingredient{{Name: "Rice", Quantity: "1", Unit: "cup"}, {Name: d + " tomato"}},
		}})
	}
	return plan
}

func TestGenerateMenuAndShoppingList(t *testing.T) {
	p := &fakePlanner{menu: okOutcome(sevenDayPlan())}
	svc, repo := newTestService(t, p)
	ctx := context.Background()
	require.NoError(t, repo.AppendProducts(ctx, "home", []entity.Product{{Name: "Rice"}}))

	_, err := svc.GenerateShoppingList(ctx, "home")
	assert.ErrorIs(t, err, common.ErrNotFound)

	plan, res, err := svc.GenerateMenu(ctx, "home", "")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.True(t, plan.IsComplete())
	assert.Equal(t, "Rice", p.seen.Products[0].Name)

	items, err := svc.GenerateShoppingList(ctx, "home")
	require.NoError(t, err)
	assert.Len(t, items, 8)

	updated, err := svc.UpdateShoppingItem(ctx, "home", items[0].ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Purchased)
	stored, err := repo.LoadShoppingList(ctx, "home")
	require.NoError(t, err)
	assert.True(t, stored[0].Purchased)
	assert.False(t, stored[1].Purchased)

	_, err = svc.UpdateShoppingItem(ctx, "home", "8a7b3f1e-0000-4000-8000-000000000000", true)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = svc.UpdateShoppingItem(ctx, "home", "not-a-uuid", true)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestConcurrentShoppingItemUpdatesAreAllKept(t *testing.T) {
	p := &fakePlanner{menu: okOutcome(sevenDayPlan())}
	svc, repo := newTestService(t, p)
	ctx := context.Background()

	_, _, err := svc.GenerateMenu(ctx, "home", "")
	require.NoError(t, err)
	items, err := svc.GenerateShoppingList(ctx, "home")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.UpdateShoppingItem(ctx, "home", id, true)
			assert.NoError(t, err)
		}(it.ID)
	}
	wg.Wait()

	stored, err := repo.LoadShoppingList(ctx, "home")
	require.NoError(t, err)
	require.Len(t, stored, len(items))
	for _, it := range stored {
		assert.True(t, it.Purchased, it.Name)
	}
}

func TestDegradedMenuKeepsSavedPlan(t *testing.T) {
	p := &fakePlanner{menu: degradedOutcome(planner.WeeklyMenuFallback())}
	svc, repo := newTestService(t, p)
	ctx := context.Background()
	require.NoError(t, repo.SaveWeeklyMenu(ctx, "home", sevenDayPlan()))

	plan, res, err := svc.GenerateMenu(ctx, "home", "")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, plan.WeeklyMenu)

	saved, err := repo.LoadWeeklyMenu(ctx, "home")
	require.NoError(t, err)
	assert.Len(t, saved.WeeklyMenu, 7)
}

func TestGenerateMetricsRecordsWeek(t *testing.T) {
	report := entity.MetricsReport{
		Metrics:         entity.Metrics{WastePercentage: 10, EstimatedSavings: 50, WeeklyWaste: []float64{5, 4, 3, 2, 1}},
		Recommendations: []string{"Use the freezer"},
	}
	svc, repo := newTestService(t, &fakePlanner{metrics: okOutcome(report)})
	ctx := context.Background()

	got, res, err := svc.GenerateMetrics(ctx, "home", "")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, report, got)

	rec, err := repo.LoadMetrics(ctx, "home")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 42, rec.WeekNumber)
	recs, err := repo.LoadRecommendations(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, []string{"Use the freezer"}, recs)

	snap, err := svc.Snapshot(ctx, "home")
	require.NoError(t, err)
	require.NotNil(t, snap.Metrics)
	assert.Equal(t, []string{"Use the freezer"}, snap.Recommendations)
}

func TestDegradedMetricsAreNotSaved(t *testing.T) {
	svc, repo := newTestService(t, &fakePlanner{metrics: degradedOutcome(planner.MetricsFallback())})
	ctx := context.Background()

	got, res, err := svc.GenerateMetrics(ctx, "home", "")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Len(t, got.Metrics.WeeklyWaste, 5)

	rec, err := repo.LoadMetrics(ctx, "home")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
