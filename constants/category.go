package constants

import (
	"strings"
)

// Category groups shopping list items.
type Category string

const (
	Protein    Category = "Protein"
	Vegetables Category = "Vegetables"
	Dairy      Category = "Dairy"
	Eggs       Category = "Eggs"
	Grains     Category = "Grains"
	Fruits     Category = "Fruits"
	Other      Category = "Other"
)

var allCategories = []Category{
	Protein,
	Vegetables,
	Dairy,
	Eggs,
	Grains,
	Fruits,
	Other,
}

// keyword rules are checked in order; the first word starting with a keyword wins.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{Protein, []string{"pollo", "pechuga", "carne", "res", "cerdo", "pescado", "salmón", "atún", "camarón",
		"chicken", "breast", "beef", "pork", "fish", "salmon", "tuna", "shrimp", "turkey"}},
	{Vegetables, []string{"tomate", "lechuga", "cebolla", "zanahoria", "papa", "brócoli", "espinaca", "calabaza",
		"pimiento", "aguacate", "pepino", "berenjena", "eggplant", "tomato", "lettuce", "onion", "carrot", "potato", "broccoli", "spinach",
		"squash", "pepper", "avocado", "cucumber"}},
	{Dairy, []string{"leche", "queso", "yogurt", "crema", "mantequilla", "milk", "cheese", "cream", "butter"}},
	{Eggs, []string{"huevo", "egg"}},
	{Grains, []string{"arroz", "pasta", "pan", "harina", "avena", "cereal", "rice", "bread", "flour", "oat"}},
	{Fruits, []string{"manzana", "plátano", "naranja", "fresa", "uva", "limón", "apple", "banana", "orange",
		"strawberr", "grape", "lemon", "lime"}},
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// CategorizeIngredient maps a free-text ingredient name to a Category by keyword.
func CategorizeIngredient(name string) Category {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return Other
	}
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == ',' || r == '-' || r == '/' || r == '(' || r == ')'
	})
	for _, rule := range categoryKeywords {
		for _, kw := range rule.keywords {
			for _, w := range words {
				if strings.HasPrefix(w, kw) {
					return rule.category
				}
			}
		}
	}
	return Other
}

// Canonicalize resolves a category label (any case) to a known Category.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]Category{
		"proteína": Protein,
		"proteina": Protein,
		"meat":     Protein,
		"verduras": Vegetables,
		"veggies":  Vegetables,
		"lácteos":  Dairy,
		"lacteos":  Dairy,
		"huevos":   Eggs,
		"granos":   Grains,
		"cereals":  Grains,
		"frutas":   Fruits,
		"otros":    Other,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}

	return Other, false
}
