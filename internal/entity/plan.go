package entity

import "github.com/joseph-ayodele/zerowaste/constants"

// RecommendationSet is shared by the family and leftover recommendation tasks.
type RecommendationSet struct {
	Recommendations []string `json:"recommendations"`
}

// WeeklyMenuPlan holds one DayPlan per day. Plans with fewer than seven
// days are valid; use IsComplete to check coverage.
type WeeklyMenuPlan struct {
	WeeklyMenu []DayPlan `json:"weeklyMenu"`
}

type DayPlan struct {
	Day     string `json:"day"`
	Recipe  Recipe `json:"recipe"`
	Protein string `json:"protein"`
	Side    string `json:"side"`
}

type Recipe struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Ingredients     []Ingredient    `json:"ingredients"`
	Instructions    []string        `json:"instructions"`
	CookingTime     string          `json:"cookingTime"`
	Servings        string          `json:"servings"`
	Difficulty      string          `json:"difficulty"`
	NutritionalInfo NutritionalInfo `json:"nutritionalInfo"`
}

type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

// NutritionalInfo values are free-text quantities such as "450 kcal".
type NutritionalInfo struct {
	Calories string `json:"calories"`
	Protein  string `json:"protein"`
	Carbs    string `json:"carbs"`
	Fat      string `json:"fat"`
}

// IsComplete reports whether the plan has exactly one entry for each day
// of the week.
func (p WeeklyMenuPlan) IsComplete() bool {
	if len(p.WeeklyMenu) != len(constants.Days) {
		return false
	}
	seen := make(map[string]bool, len(constants.Days))
	for _, d := range p.WeeklyMenu {
		seen[d.Day] = true
	}
	for _, d := range constants.Days {
		if !seen[d] {
			return false
		}
	}
	return true
}

// MetricsReport is the waste summary for the current week.
type MetricsReport struct {
	Metrics         Metrics  `json:"metrics"`
	Recommendations []string `json:"recommendations"`
}

type Metrics struct {
	WastePercentage  float64   `json:"wastePercentage"`
	EstimatedSavings float64   `json:"estimatedSavings"`
	WeeklyWaste      []float64 `json:"weeklyWaste"`
}
