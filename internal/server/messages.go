package server

import (
	"github.com/joseph-ayodele/zerowaste/internal/entity"
)

type HouseholdRequest struct {
	Household string `json:"household"`
}

type FamilyRequest struct {
	Household    string                      `json:"household"`
	Members      []entity.FamilyMember       `json:"members"`
	Restrictions []entity.DietaryRestriction `json:"restrictions"`
	Prohibited   []string                    `json:"prohibitedDishes"`
}

type LeftoversRequest struct {
	Household string            `json:"household"`
	Leftovers []entity.Leftover `json:"leftovers"`
}

type ProductsRequest struct {
	Household string           `json:"household"`
	Products  []entity.Product `json:"products"`
}

type ReceiptRequest struct {
	Household string `json:"household"`
	Image     string `json:"image"`
}

type JobRequest struct {
	JobID string `json:"jobId"`
}

type UpdateItemRequest struct {
	Household string `json:"household"`
	ItemID    string `json:"itemId"`
	Purchased bool   `json:"purchased"`
}

type AskRequest struct {
	Question string `json:"question"`
}

// Degradation is embedded in every planner-backed response.
type Degradation struct {
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

type RecommendationsResponse struct {
	Recommendations []string `json:"recommendations"`
	Degradation
}

type ReceiptResponse struct {
	Receipt  entity.ReceiptExtraction `json:"receipt"`
	Products []entity.Product         `json:"products"`
	Degradation
}

type SubmitReceiptResponse struct {
	JobID string `json:"jobId"`
}

type JobResponse struct {
	JobID  string           `json:"jobId"`
	State  string           `json:"state"`
	Error  string           `json:"error,omitempty"`
	Result *ReceiptResponse `json:"result,omitempty"`
}

type MenuResponse struct {
	WeeklyMenu []entity.DayPlan `json:"weeklyMenu"`
	Complete   bool             `json:"complete"`
	Degradation
}

type MetricsResponse struct {
	Metrics         entity.Metrics `json:"metrics"`
	Recommendations []string       `json:"recommendations"`
	Degradation
}

type ShoppingResponse struct {
	Items []entity.ShoppingItem `json:"items"`
}

type ItemResponse struct {
	Item entity.ShoppingItem `json:"item"`
}

type ExportResponse struct {
	Filename string `json:"filename"`
	Workbook []byte `json:"workbook"`
}

type AskResponse struct {
	Response string `json:"response"`
	Degradation
}

type Empty struct{}
