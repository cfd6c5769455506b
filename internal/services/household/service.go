package household

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
	"github.com/joseph-ayodele/zerowaste/internal/planner"
	"github.com/joseph-ayodele/zerowaste/internal/repository"
)

// ErrNoProducts means a receipt scan finished but yielded nothing to store.
var ErrNoProducts = errors.New("no products found in the receipt")

// Planner is the subset of planner.Service the household service drives.
type Planner interface {
	ProcessReceipt(ctx context.Context, imagePayload, apiKey string) (planner.Outcome[entity.ReceiptExtraction], error)
	RecommendForFamily(ctx context.Context, members []entity.FamilyMember, restrictions []entity.DietaryRestriction, prohibited []entity.ProhibitedDish, apiKey string) (planner.Outcome[entity.RecommendationSet], error)
	RecommendForLeftovers(ctx context.Context, leftovers []entity.Leftover, apiKey string) (planner.Outcome[entity.RecommendationSet], error)
	GenerateWeeklyMenu(ctx context.Context, h entity.Household, apiKey string) (planner.Outcome[entity.WeeklyMenuPlan], error)
	GenerateMetrics(ctx context.Context, members []entity.FamilyMember, products []entity.Product, leftovers []entity.Leftover, apiKey string) (planner.Outcome[entity.MetricsReport], error)
}

// Service persists household data and runs the planner over it.
// Fallback values are never persisted.
type Service struct {
	planner Planner
	repo    *repository.HouseholdRepository
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(p Planner, repo *repository.HouseholdRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{planner: p, repo: repo, logger: logger, now: time.Now}
}

// Result reports whether a planner-backed action produced real output.
type Result struct {
	Degraded bool
	Reason   string
}

func resultOf[T any](o planner.Outcome[T]) Result {
	return Result{Degraded: o.Degraded(), Reason: o.Reason}
}

// FamilyInput is the onboarding form.
type FamilyInput struct {
	Members      []entity.FamilyMember
	Restrictions []entity.DietaryRestriction
	Prohibited   []entity.ProhibitedDish
}

func validateHousehold(household string) *common.Validator {
	v := common.NewValidator()
	v.Field("household", household, common.Required, common.MaxLen(64))
	return v
}

// SaveFamilyData replaces the family profile and stores fresh recommendations.
func (s *Service) SaveFamilyData(ctx context.Context, household string, in FamilyInput, apiKey string) ([]string, Result, error) {
	v := validateHousehold(household)
	for i, m := range in.Members {
		v.Field(fmt.Sprintf("members[%d].type", i), m.Type, common.Required, common.MaxLen(50))
		v.Field(fmt.Sprintf("members[%d].count", i), m.Count, common.NonNegative)
	}
	for i, r := range in.Restrictions {
		v.Field(fmt.Sprintf("restrictions[%d].name", i), r.Name, common.Required, common.MaxLen(100))
	}
	if err := v.Error(); err != nil {
		return nil, Result{}, err
	}

	s.logger.Info("household.family.save_start", "household", household,
		"members", len(in.Members), "restrictions", len(in.Restrictions), "prohibited", len(in.Prohibited))
	if err := s.repo.SaveFamily(ctx, household, in.Members, in.Restrictions, in.Prohibited); err != nil {
		return nil, Result{}, err
	}

	out, err := s.planner.RecommendForFamily(ctx, in.Members, in.Restrictions, in.Prohibited, apiKey)
	if err != nil {
		return nil, Result{}, err
	}
	if err := s.saveRecommendations(ctx, household, out); err != nil {
		return nil, Result{}, err
	}
	return out.Value.Recommendations, resultOf(out), nil
}

// SaveLeftovers appends leftovers and stores reuse recommendations.
func (s *Service) SaveLeftovers(ctx context.Context, household string, leftovers []entity.Leftover, apiKey string) ([]string, Result, error) {
	v := validateHousehold(household)
	for i, l := range leftovers {
		v.Field(fmt.Sprintf("leftovers[%d].product", i), l.Product, common.Required, common.MaxLen(100))
	}
	if err := v.Error(); err != nil {
		return nil, Result{}, err
	}

	if err := s.repo.AppendLeftovers(ctx, household, leftovers); err != nil {
		return nil, Result{}, err
	}
	out, err := s.planner.RecommendForLeftovers(ctx, leftovers, apiKey)
	if err != nil {
		return nil, Result{}, err
	}
	if err := s.saveRecommendations(ctx, household, out); err != nil {
		return nil, Result{}, err
	}
	return out.Value.Recommendations, resultOf(out), nil
}

func (s *Service) saveRecommendations(ctx context.Context, household string, out planner.Outcome[entity.RecommendationSet]) error {
	if out.Degraded() || len(out.Value.Recommendations) == 0 {
		return nil
	}
	s.logger.Info("household.recommendations.saving", "household", household, "count", len(out.Value.Recommendations))
	return s.repo.SaveRecommendations(ctx, household, out.Value.Recommendations)
}

// ReceiptResult is a processed scan with the products that were stored.
type ReceiptResult struct {
	Receipt  entity.ReceiptExtraction
	Products []entity.Product
	Result
}

// ProcessReceipt scans a receipt image and appends its products.
func (s *Service) ProcessReceipt(ctx context.Context, household, imagePayload, apiKey string) (ReceiptResult, error) {
	v := validateHousehold(household)
	v.Field("image", imagePayload, common.Required, common.Base64Payload)
	if err := v.Error(); err != nil {
		return ReceiptResult{}, err
	}

	s.logger.Info("household.receipt.start", "household", household)
	out, err := s.planner.ProcessReceipt(ctx, imagePayload, apiKey)
	if err != nil {
		return ReceiptResult{}, err
	}
	res := ReceiptResult{Receipt: out.Value, Result: resultOf(out)}
	res.Products = planner.ProductsFromReceipt(out.Value)
	if len(res.Products) == 0 {
		s.logger.Warn("household.receipt.no_products", "household", household, "degraded", out.Degraded())
		return res, common.NewAppError("NO_PRODUCTS", ErrNoProducts.Error(), errors.Join(ErrNoProducts, common.ErrInvalidInput))
	}
	if err := s.repo.AppendProducts(ctx, household, res.Products); err != nil {
		return ReceiptResult{}, err
	}
	s.logger.Info("household.receipt.saved", "household", household, "products", len(res.Products))
	return res, nil
}

// SaveValidatedProducts stores products the user reviewed by hand. Category
// labels are canonicalised, falling back to the name when unrecognised.
func (s *Service) SaveValidatedProducts(ctx context.Context, household string, products []entity.Product) error {
	v := validateHousehold(household)
	for i, p := range products {
		v.Field(fmt.Sprintf("products[%d].name", i), p.Name, common.Required, common.MaxLen(100))
	}
	if err := v.Error(); err != nil {
		return err
	}
	products = append([]entity.Product(nil), products...)
	for i := range products {
		cat, known := constants.Canonicalize(products[i].Category)
		if !known {
			cat = constants.CategorizeIngredient(products[i].Name)
		}
		products[i].Category = string(cat)
	}
	return s.repo.AppendProducts(ctx, household, products)
}

// GenerateMenu plans the week from stored data. Only non-degraded plans
// replace the saved menu.
func (s *Service) GenerateMenu(ctx context.Context, household, apiKey string) (entity.WeeklyMenuPlan, Result, error) {
	if err := validateHousehold(household).Error(); err != nil {
		return entity.WeeklyMenuPlan{}, Result{}, err
	}
	h, err := s.repo.LoadHousehold(ctx, household)
	if err != nil {
		return entity.WeeklyMenuPlan{}, Result{}, err
	}
	s.logger.Debug("household.menu.inputs", "household", household,
		"members", len(h.Members), "active_restrictions", h.ActiveRestrictions(), "products", len(h.Products))

	out, err := s.planner.GenerateWeeklyMenu(ctx, h, apiKey)
	if err != nil {
		return entity.WeeklyMenuPlan{}, Result{}, err
	}
	if !out.Degraded() && len(out.Value.WeeklyMenu) > 0 {
		if err := s.repo.SaveWeeklyMenu(ctx, household, out.Value); err != nil {
			return entity.WeeklyMenuPlan{}, Result{}, err
		}
		s.logger.Info("household.menu.saved", "household", household, "days", len(out.Value.WeeklyMenu), "complete", out.Value.IsComplete())
	}
	return out.Value, resultOf(out), nil
}

// GenerateMetrics computes waste metrics from stored data.
func (s *Service) GenerateMetrics(ctx context.Context, household, apiKey string) (entity.MetricsReport, Result, error) {
	if err := validateHousehold(household).Error(); err != nil {
		return entity.MetricsReport{}, Result{}, err
	}
	h, err := s.repo.LoadHousehold(ctx, household)
	if err != nil {
		return entity.MetricsReport{}, Result{}, err
	}
	out, err := s.planner.GenerateMetrics(ctx, h.Members, h.Products, h.Leftovers, apiKey)
	if err != nil {
		return entity.MetricsReport{}, Result{}, err
	}
	if !out.Degraded() {
		_, week := s.now().ISOWeek()
		rec := repository.MetricsRecord{Report: out.Value, WeekNumber: week, CreatedAt: s.now().UTC()}
		if err := s.repo.SaveMetrics(ctx, household, rec); err != nil {
			return entity.MetricsReport{}, Result{}, err
		}
		if len(out.Value.Recommendations) > 0 {
			if err := s.repo.SaveRecommendations(ctx, household, out.Value.Recommendations); err != nil {
				return entity.MetricsReport{}, Result{}, err
			}
		}
	}
	return out.Value, resultOf(out), nil
}

// GenerateShoppingList derives the shopping list from the saved menu.
func (s *Service) GenerateShoppingList(ctx context.Context, household string) ([]entity.ShoppingItem, error) {
	if err := validateHousehold(household).Error(); err != nil {
		return nil, err
	}
	plan, err := s.repo.LoadWeeklyMenu(ctx, household)
	if err != nil {
		return nil, err
	}
	items, err := planner.BuildShoppingList(plan)
	if err != nil {
		s.logger.Warn("household.shopping.empty", "household", household, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrNotFound, err)
	}
	if err := s.repo.SaveShoppingList(ctx, household, items); err != nil {
		return nil, err
	}
	s.logger.Info("household.shopping.saved", "household", household, "items", len(items))
	return items, nil
}

// UpdateShoppingItem marks an item as purchased or not.
func (s *Service) UpdateShoppingItem(ctx context.Context, household, itemID string, purchased bool) (entity.ShoppingItem, error) {
	v := validateHousehold(household)
	v.Field("item_id", itemID, common.UUID)
	if err := v.Error(); err != nil {
		return entity.ShoppingItem{}, err
	}
	var updated *entity.ShoppingItem
	err := s.repo.UpdateShoppingList(ctx, household, func(items []entity.ShoppingItem) ([]entity.ShoppingItem, error) {
		for i := range items {
			if strings.EqualFold(items[i].ID, itemID) {
				items[i].Purchased = purchased
				item := items[i]
				updated = &item
				return items, nil
			}
		}
		return nil, fmt.Errorf("%w: shopping item %s", common.ErrNotFound, itemID)
	})
	if err != nil {
		return entity.ShoppingItem{}, err
	}
	return *updated, nil
}

// Snapshot is everything stored for a household, used by exports.
type Snapshot struct {
	Household       entity.Household
	Menu            entity.WeeklyMenuPlan
	ShoppingList    []entity.ShoppingItem
	Metrics         *repository.MetricsRecord
	Recommendations []string
}

func (s *Service) Snapshot(ctx context.Context, household string) (Snapshot, error) {
	if err := validateHousehold(household).Error(); err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	var err error
	if snap.Household, err = s.repo.LoadHousehold(ctx, household); err != nil {
		return snap, err
	}
	if snap.Menu, err = s.repo.LoadWeeklyMenu(ctx, household); err != nil {
		return snap, err
	}
	if snap.ShoppingList, err = s.repo.LoadShoppingList(ctx, household); err != nil {
		return snap, err
	}
	if snap.Metrics, err = s.repo.LoadMetrics(ctx, household); err != nil {
		return snap, err
	}
	if snap.Recommendations, err = s.repo.LoadRecommendations(ctx, household); err != nil {
		return snap, err
	}
	return snap, nil
}
