package entity

// FamilyMember counts household members of one kind (e.g. "adult", "child").
type FamilyMember struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type DietaryRestriction struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type ProhibitedDish struct {
	Name string `json:"name"`
}

// Product is a pantry item, usually created from a receipt line item.
type Product struct {
	Name             string   `json:"name"`
	QuantityPortions *float64 `json:"quantityPortions,omitempty"`
	QuantityUnits    *float64 `json:"quantityUnits,omitempty"`
	QuantityKg       *float64 `json:"quantityKg,omitempty"`
	UnitPrice        *float64 `json:"unitPrice,omitempty"`
	TotalPrice       *float64 `json:"totalPrice,omitempty"`
	Category         string   `json:"category,omitempty"`
}

type Leftover struct {
	Meal     string `json:"meal"`
	Product  string `json:"product"`
	Quantity string `json:"quantity"`
}

type ShoppingItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	Unit      string `json:"unit,omitempty"`
	Category  string `json:"category"`
	Purchased bool   `json:"purchased"`
}

// Household is the full set of inputs the planner draws on.
type Household struct {
	Members      []FamilyMember       `json:"members"`
	Restrictions []DietaryRestriction `json:"restrictions"`
	Prohibited   []ProhibitedDish     `json:"prohibited"`
	Products     []Product            `json:"products"`
	Leftovers    []Leftover           `json:"leftovers"`
}

// ActiveRestrictions returns the names of enabled restrictions.
func (h Household) ActiveRestrictions() []string {
	var out []string
	for _, r := range h.Restrictions {
		if r.Active {
			out = append(out, r.Name)
		}
	}
	return out
}
