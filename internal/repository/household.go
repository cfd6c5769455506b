package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
)

// MetricsRecord is a stored metrics report with the ISO week it covers.
type MetricsRecord struct {
	Report     entity.MetricsReport `json:"report"`
	WeekNumber int                  `json:"weekNumber"`
	CreatedAt  time.Time            `json:"createdAt"`
}

type RecommendationRecord struct {
	Text string `json:"text"`
}

// HouseholdRepository stores household data as typed collections on a Store.
type HouseholdRepository struct {
	store  Store
	logger *slog.Logger
}

func NewHouseholdRepository(store Store, logger *slog.Logger) *HouseholdRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &HouseholdRepository{store: store, logger: logger}
}

func encodeAll[T any](items []T) ([]json.RawMessage, error) {
	docs := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
		docs = append(docs, b)
	}
	return docs, nil
}

func replaceAll[T any](ctx context.Context, s Store, household, collection string, items []T) error {
	docs, err := encodeAll(items)
	if err != nil {
		return err
	}
	return s.Replace(ctx, household, collection, docs)
}

func appendAll[T any](ctx context.Context, s Store, household, collection string, items []T) error {
	docs, err := encodeAll(items)
	if err != nil {
		return err
	}
	return s.Append(ctx, household, collection, docs)
}

func decodeAll[T any](collection string, docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func updateAll[T any](ctx context.Context, s Store, household, collection string, fn func([]T) ([]T, error)) error {
	return s.Update(ctx, household, collection, func(docs []json.RawMessage) ([]json.RawMessage, error) {
		items, err := decodeAll[T](collection, docs)
		if err != nil {
			return nil, err
		}
		items, err = fn(items)
		if err != nil {
			return nil, err
		}
		return encodeAll(items)
	})
}

func listAll[T any](ctx context.Context, s Store, household, collection string) ([]T, error) {
	docs, err := s.List(ctx, household, collection)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, docs)
}

// SaveFamily replaces members, restrictions and prohibited dishes.
func (r *HouseholdRepository) SaveFamily(ctx context.Context, household string, members []entity.FamilyMember, restrictions []entity.DietaryRestriction, prohibited []entity.ProhibitedDish) error {
	if err := replaceAll(ctx, r.store, household, constants.CollectionFamilyMembers, members); err != nil {
		return err
	}
	if err := replaceAll(ctx, r.store, household, constants.CollectionDietaryRestrictions, restrictions); err != nil {
		return err
	}
	if err := replaceAll(ctx, r.store, household, constants.CollectionProhibitedDishes, prohibited); err != nil {
		return err
	}
	r.logger.Info("household.family.saved", "household", household, "members", len(members), "restrictions", len(restrictions), "prohibited", len(prohibited))
	return nil
}

// LoadHousehold reads every planner input collection.
func (r *HouseholdRepository) LoadHousehold(ctx context.Context, household string) (entity.Household, error) {
	var h entity.Household
	var err error
	if h.Members, err = listAll[entity.FamilyMember](ctx, r.store, household, constants.CollectionFamilyMembers); err != nil {
		return h, err
	}
	if h.Restrictions, err = listAll[entity.DietaryRestriction](ctx, r.store, household, constants.CollectionDietaryRestrictions); err != nil {
		return h, err
	}
	if h.Prohibited, err = listAll[entity.ProhibitedDish](ctx, r.store, household, constants.CollectionProhibitedDishes); err != nil {
		return h, err
	}
	if h.Products, err = listAll[entity.Product](ctx, r.store, household, constants.CollectionProducts); err != nil {
		return h, err
	}
	if h.Leftovers, err = listAll[entity.Leftover](ctx, r.store, household, constants.CollectionLeftovers); err != nil {
		return h, err
	}
	return h, nil
}

func (r *HouseholdRepository) AppendProducts(ctx context.Context, household string, products []entity.Product) error {
	return appendAll(ctx, r.store, household, constants.CollectionProducts, products)
}

func (r *HouseholdRepository) AppendLeftovers(ctx context.Context, household string, leftovers []entity.Leftover) error {
	return appendAll(ctx, r.store, household, constants.CollectionLeftovers, leftovers)
}

func (r *HouseholdRepository) SaveWeeklyMenu(ctx context.Context, household string, plan entity.WeeklyMenuPlan) error {
	return replaceAll(ctx, r.store, household, constants.CollectionWeeklyMenu, plan.WeeklyMenu)
}

func (r *HouseholdRepository) LoadWeeklyMenu(ctx context.Context, household string) (entity.WeeklyMenuPlan, error) {
	days, err := listAll[entity.DayPlan](ctx, r.store, household, constants.CollectionWeeklyMenu)
	if err != nil {
		return entity.WeeklyMenuPlan{}, err
	}
	return entity.WeeklyMenuPlan{WeeklyMenu: days}, nil
}

func (r *HouseholdRepository) SaveMetrics(ctx context.Context, household string, rec MetricsRecord) error {
	return replaceAll(ctx, r.store, household, constants.CollectionMetrics, []MetricsRecord{rec})
}

// LoadMetrics returns the latest metrics, or nil when none were saved.
func (r *HouseholdRepository) LoadMetrics(ctx context.Context, household string) (*MetricsRecord, error) {
	recs, err := listAll[MetricsRecord](ctx, r.store, household, constants.CollectionMetrics)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[len(recs)-1], nil
}

func (r *HouseholdRepository) SaveRecommendations(ctx context.Context, household string, recs []string) error {
	records := make([]RecommendationRecord, len(recs))
	for i, t := range recs {
		records[i] = RecommendationRecord{Text: t}
	}
	return replaceAll(ctx, r.store, household, constants.CollectionRecommendations, records)
}

func (r *HouseholdRepository) LoadRecommendations(ctx context.Context, household string) ([]string, error) {
	records, err := listAll[RecommendationRecord](ctx, r.store, household, constants.CollectionRecommendations)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Text
	}
	return out, nil
}

func (r *HouseholdRepository) SaveShoppingList(ctx context.Context, household string, items []entity.ShoppingItem) error {
	return replaceAll(ctx, r.store, household, constants.CollectionShoppingList, items)
}

// UpdateShoppingList applies fn to the stored list and saves the result
// without losing concurrent updates.
func (r *HouseholdRepository) UpdateShoppingList(ctx context.Context, household string, fn func([]entity.ShoppingItem) ([]entity.ShoppingItem, error)) error {
	return updateAll(ctx, r.store, household, constants.CollectionShoppingList, fn)
}

func (r *HouseholdRepository) LoadShoppingList(ctx context.Context, household string) ([]entity.ShoppingItem, error) {
	return listAll[entity.ShoppingItem](ctx, r.store, household, constants.CollectionShoppingList)
}
