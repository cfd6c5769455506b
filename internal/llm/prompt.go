package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
)

// Prompt is the instruction pair sent to the model.
type Prompt struct {
	System string
	User   string
}

// Combined joins system and user text into one message, for requests where
// the instructions travel in the same multi-part message as an image.
func (p Prompt) Combined() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

// rules shared by every task
var contractRules = []string{
	"Respond ONLY with valid JSON.",
	"Do not wrap the JSON in markdown code fences and do not add any prose before or after it.",
	fmt.Sprintf("Keep every short text field at most %d characters.", maxText),
	"If a value is unknown or not visible, use null. Do NOT invent data.",
}

const receiptExample = `{
  "merchant": "Store name or null",
  "date": "YYYY-MM-DD or null",
  "currency": "Currency code (USD, MXN, EUR, ...) or null",
  "lineItems": [{ "name": "Product", "qty": 1, "unitPrice": 10.50, "total": 10.50 }],
  "subtotal": 100.00,
  "tax": 16.00,
  "total": 116.00,
  "confidence": 0.95
}`

const recommendationsExample = `{ "recommendations": ["Recommendation 1", "Recommendation 2", "Recommendation 3"] }`

const weeklyMenuExample = `{
  "weeklyMenu": [
    {
      "day": "Mon",
      "recipe": {
        "name": "Name (max 100 chars)",
        "description": "Description (max 100 chars)",
        "ingredients": [{ "name": "Ingredient", "quantity": "1", "unit": "unit" }],
        "instructions": ["Step 1", "Step 2"],
        "cookingTime": "30",
        "servings": "4",
        "difficulty": "Easy",
        "nutritionalInfo": { "calories": "400", "protein": "25", "carbs": "40", "fat": "15" }
      },
      "protein": "Main protein",
      "side": "Side dish"
    }
  ]
}`

const metricsExample = `{
  "metrics": {
    "wastePercentage": 15,
    "estimatedSavings": 250,
    "weeklyWaste": [20, 18, 15, 12, 10]
  },
  "recommendations": ["Recommendation 1", "Recommendation 2", "Recommendation 3", "Recommendation 4"]
}`

// BuildReceiptPrompt returns the instructions that accompany a receipt image.
func BuildReceiptPrompt() Prompt {
	system := strings.Join(append([]string{
		"You are an assistant specialised in extracting information from supermarket receipts.",
		"Analyse the receipt image and extract structured information.",
		"Prices must be numbers without currency symbols. Quantities must be numbers.",
		"The date must use ISO 8601 (YYYY-MM-DD) when it can be read.",
		"The \"confidence\" field must be a number between 0 and 1.",
	}, contractRules...), "\n")

	var b strings.Builder
	b.WriteString("Analyse this receipt image and extract the information in this exact JSON format:\n")
	b.WriteString(receiptExample)
	b.WriteString("\n\nmerchant, date, currency, subtotal, tax, total and each item's qty, unitPrice and total may be null.\n")
	b.WriteString("Extract ALL visible products. If a field is not visible or legible, use null.\n")
	return Prompt{System: system, User: b.String()}
}

// BuildFamilyPrompt asks for household recommendations.
func BuildFamilyPrompt(members []entity.FamilyMember, restrictions []entity.DietaryRestriction, prohibited []entity.ProhibitedDish) (Prompt, error) {
	sections, err := jsonSections(
		"Family members", members,
		"Dietary restrictions", restrictions,
		"Prohibited dishes", dishNames(prohibited),
	)
	if err != nil {
		return Prompt{}, err
	}
	system := strings.Join(append([]string{
		"You are a nutritionist specialised in family meal planning. Give personalised recommendations.",
	}, contractRules...), " ")

	user := "Analyse this family's data and provide recommendations:\n\n" + sections +
		"\nRespond in JSON format:\n" + recommendationsExample +
		"\n\nEach recommendation is a plain string. Use an empty array if you have none.\n"
	return Prompt{System: system, User: user}, nil
}

// BuildLeftoverPrompt asks for ways to reuse leftovers.
func BuildLeftoverPrompt(leftovers []entity.Leftover) (Prompt, error) {
	sections, err := jsonSections("Leftovers", leftovers)
	if err != nil {
		return Prompt{}, err
	}
	system := strings.Join(append([]string{
		"You are a chef specialised in reducing food waste. Give creative recommendations to make use of leftovers.",
	}, contractRules...), " ")

	user := "Analyse these food leftovers and recommend ways to use them:\n\n" + sections +
		"\nRespond in JSON format:\n" + recommendationsExample +
		"\n\nEach recommendation is a plain string. Use an empty array if you have none.\n"
	return Prompt{System: system, User: user}, nil
}

// BuildWeeklyMenuPrompt asks for a seven day plan.
func BuildWeeklyMenuPrompt(members []entity.FamilyMember, restrictions []entity.DietaryRestriction, prohibited []entity.ProhibitedDish, products []entity.Product) (Prompt, error) {
	sections, err := jsonSections(
		"Family members", members,
		"Dietary restrictions", restrictions,
		"Prohibited dishes", dishNames(prohibited),
		"Available products", products,
	)
	if err != nil {
		return Prompt{}, err
	}
	system := strings.Join(append([]string{
		"You are a chef specialised in family meal planning. Generate personalised weekly menus with detailed recipes.",
	}, contractRules...), " ")

	var b strings.Builder
	b.WriteString("Generate a weekly menu for this family:\n\n")
	b.WriteString(sections)
	b.WriteString("\nRespond in JSON format:\n")
	b.WriteString(weeklyMenuExample)
	b.WriteString("\n\nIMPORTANT: Generate recipes for all 7 days (")
	b.WriteString(strings.Join(constants.Days, ", "))
	b.WriteString(") using exactly those day tokens.\n")
	b.WriteString("difficulty must be one of: ")
	b.WriteString(strings.Join(constants.Difficulties, ", "))
	b.WriteString(". cookingTime, servings and nutritionalInfo values are strings.\n")
	b.WriteString("Prefer the available products and never use a prohibited dish.\n")
	return Prompt{System: system, User: b.String()}, nil
}

// BuildMetricsPrompt asks for waste metrics and savings advice.
func BuildMetricsPrompt(members []entity.FamilyMember, products []entity.Product, leftovers []entity.Leftover) (Prompt, error) {
	sections, err := jsonSections(
		"Family members", members,
		"Purchased products", products,
		"Recorded leftovers", leftovers,
	)
	if err != nil {
		return Prompt{}, err
	}
	system := strings.Join(append([]string{
		"You are an analyst specialised in reducing household food waste and saving money.",
	}, contractRules...), " ")

	user := "Generate metrics and recommendations based on:\n\n" + sections +
		"\nRespond in JSON format:\n" + metricsExample +
		"\n\nwastePercentage and estimatedSavings are numbers. weeklyWaste lists five numbers, oldest week first.\n"
	return Prompt{System: system, User: user}, nil
}

// BuildAskPrompt wraps a free-form cooking question.
func BuildAskPrompt(question string) Prompt {
	system := strings.Join(append([]string{
		"You are a culinary assistant specialised in family meal planning.",
		"Interpret the user's request and give a helpful answer about meal planning, recipes or cooking tips.",
		`Always respond in JSON with this structure: { "response": "your answer here" }.`,
	}, contractRules[:2]...), " ")
	return Prompt{System: system, User: strings.TrimSpace(question)}
}

// jsonSections renders label/value pairs as "Label: <json>" lines.
func jsonSections(pairs ...any) (string, error) {
	if len(pairs)%2 != 0 {
		return "", fmt.Errorf("jsonSections: odd number of arguments")
	}
	var b strings.Builder
	for i := 0; i < len(pairs); i += 2 {
		label, _ := pairs[i].(string)
		v := pairs[i+1]
		bs, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", strings.ToLower(label), err)
		}
		if string(bs) == "null" {
			bs = []byte("[]")
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.Write(bs)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func dishNames(dishes []entity.ProhibitedDish) []string {
	names := make([]string, 0, len(dishes))
	for _, d := range dishes {
		if n := strings.TrimSpace(d.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}
