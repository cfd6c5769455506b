package planner

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
)

var (
	ErrNoMenu        = errors.New("no weekly menu available")
	ErrNoIngredients = errors.New("weekly menu has no ingredients")
)

// BuildShoppingList collects every ingredient of the plan into a list,
// categorised by keyword. Items with the same name (case-insensitive) and
// category appear once; the first occurrence wins.
func BuildShoppingList(plan entity.WeeklyMenuPlan) ([]entity.ShoppingItem, error) {
	if len(plan.WeeklyMenu) == 0 {
		return nil, ErrNoMenu
	}

	seen := make(map[string]bool)
	var items []entity.ShoppingItem
	for _, day := range plan.WeeklyMenu {
		for _, ing := range day.Recipe.Ingredients {
			name := strings.TrimSpace(ing.Name)
			if name == "" {
				continue
			}
			category := constants.CategorizeIngredient(name)
			key := strings.ToLower(name) + "|" + string(category)
			if seen[key] {
				continue
			}
			seen[key] = true
			qty := strings.TrimSpace(ing.Quantity)
			if qty == "" {
				qty = "1"
			}
			items = append(items, entity.ShoppingItem{
				ID:       uuid.NewString(),
				Name:     name,
				Quantity: qty,
				Unit:     strings.TrimSpace(ing.Unit),
				Category: string(category),
			})
		}
	}
	if len(items) == 0 {
		return nil, ErrNoIngredients
	}
	return items, nil
}

// CategoryGroup is a run of shopping items sharing a category.
type CategoryGroup struct {
	Category string
	Items    []entity.ShoppingItem
}

// GroupByCategory orders items by the category taxonomy, keeping item order
// within each group. Unknown categories go last.
func GroupByCategory(items []entity.ShoppingItem) []CategoryGroup {
	byCat := make(map[string][]entity.ShoppingItem)
	for _, it := range items {
		byCat[it.Category] = append(byCat[it.Category], it)
	}

	var groups []CategoryGroup
	for _, c := range constants.AsStringSlice() {
		if its, ok := byCat[c]; ok {
			groups = append(groups, CategoryGroup{Category: c, Items: its})
			delete(byCat, c)
		}
	}
	for _, it := range items {
		if its, ok := byCat[it.Category]; ok {
			groups = append(groups, CategoryGroup{Category: it.Category, Items: its})
			delete(byCat, it.Category)
		}
	}
	return groups
}

// ProductsFromReceipt maps receipt line items to pantry products.
func ProductsFromReceipt(r entity.ReceiptExtraction) []entity.Product {
	products := make([]entity.Product, 0, len(r.LineItems))
	for _, li := range r.LineItems {
		name := strings.TrimSpace(li.Name)
		if name == "" {
			continue
		}
		products = append(products, entity.Product{
			Name:          name,
			QuantityUnits: li.Qty,
			UnitPrice:     li.UnitPrice,
			TotalPrice:    li.Total,
			Category:      string(constants.CategorizeIngredient(name)),
		})
	}
	return products
}
