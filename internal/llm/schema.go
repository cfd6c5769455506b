package llm

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/zerowaste/constants"
)

// Kind is the JSON type a Schema node accepts.
type Kind int

const (
	KindObject Kind = iota
	KindArray
	KindString
	KindNumber
)

// Schema describes the shape of a model response. It renders to JSON Schema
// for prompts and validation, and drives Coerce.
type Schema struct {
	Kind      Kind
	Nullable  bool
	MaxLength int
	Min, Max  *float64
	// Strict numbers do not accept numeric strings.
	Strict  bool
	Default any
	Enum    []string
	Items   *Schema
	Fields  []Field

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// Field is a named object property. Order is preserved in prompts.
type Field struct {
	Name   string
	Schema *Schema
}

func Object(fields ...Field) *Schema { return &Schema{Kind: KindObject, Fields: fields} }

func ArrayOf(items *Schema) *Schema { return &Schema{Kind: KindArray, Items: items} }

func Prop(name string, s *Schema) Field { return Field{Name: name, Schema: s} }

// String returns a non-null string node. maxLen <= 0 means unbounded.
func String(maxLen int) *Schema {
	return &Schema{Kind: KindString, MaxLength: maxLen, Default: ""}
}

func NullableString(maxLen int) *Schema {
	return &Schema{Kind: KindString, MaxLength: maxLen, Nullable: true}
}

// Number returns a non-null number node defaulting to 0.
func Number() *Schema { return &Schema{Kind: KindNumber, Default: 0.0} }

func NullableNumber() *Schema { return &Schema{Kind: KindNumber, Nullable: true} }

// Bounded restricts a number node to [min, max], with def used for anything else.
func (s *Schema) Bounded(min, max, def float64) *Schema {
	s.Min, s.Max, s.Default = &min, &max, def
	return s
}

func (s *Schema) StrictNumber() *Schema {
	s.Strict = true
	return s
}

func (s *Schema) OneOf(values ...string) *Schema {
	s.Enum = values
	return s
}

// FieldSchema looks up a property by name.
func (s *Schema) FieldSchema(name string) *Schema {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Schema
		}
	}
	return nil
}

// maximum string length for any short text the model produces
const maxText = 100

// ReceiptSchema describes a receipt extraction.
func ReceiptSchema() *Schema {
	return Object(
		Prop("merchant", NullableString(maxText)),
		Prop("date", NullableString(maxText)),
		Prop("currency", NullableString(maxText)),
		Prop("lineItems", ArrayOf(Object(
			Prop("name", String(maxText)),
			Prop("qty", NullableNumber()),
			Prop("unitPrice", NullableNumber()),
			Prop("total", NullableNumber()),
		))),
		Prop("subtotal", NullableNumber()),
		Prop("tax", NullableNumber()),
		Prop("total", NullableNumber()),
		Prop("confidence", Number().Bounded(0, 1, 0.5).StrictNumber()),
	)
}

// RecommendationsSchema is shared by both recommendation tasks.
func RecommendationsSchema() *Schema {
	return Object(
		Prop("recommendations", ArrayOf(String(0))),
	)
}

func WeeklyMenuSchema() *Schema {
	recipe := Object(
		Prop("name", String(maxText)),
		Prop("description", String(maxText)),
		Prop("ingredients", ArrayOf(Object(
			Prop("name", String(maxText)),
			Prop("quantity", String(maxText)),
			Prop("unit", String(maxText)),
		))),
		Prop("instructions", ArrayOf(String(0))),
		Prop("cookingTime", String(maxText)),
		Prop("servings", String(maxText)),
		Prop("difficulty", String(maxText).OneOf(constants.Difficulties...)),
		Prop("nutritionalInfo", Object(
			Prop("calories", String(maxText)),
			Prop("protein", String(maxText)),
			Prop("carbs", String(maxText)),
			Prop("fat", String(maxText)),
		)),
	)
	return Object(
		Prop("weeklyMenu", ArrayOf(Object(
			Prop("day", String(maxText).OneOf(constants.Days...)),
			Prop("recipe", recipe),
			Prop("protein", String(maxText)),
			Prop("side", String(maxText)),
		))),
	)
}

func MetricsSchema() *Schema {
	return Object(
		Prop("metrics", Object(
			Prop("wastePercentage", Number()),
			Prop("estimatedSavings", Number()),
			Prop("weeklyWaste", ArrayOf(Number())),
		)),
		Prop("recommendations", ArrayOf(String(0))),
	)
}

// AskSchema wraps a free-form answer.
func AskSchema() *Schema {
	return Object(Prop("response", String(0)))
}

var registry = map[constants.Task]func() *Schema{
	constants.TaskReceipt:                 ReceiptSchema,
	constants.TaskFamilyRecommendations:   RecommendationsSchema,
	constants.TaskLeftoverRecommendations: RecommendationsSchema,
	constants.TaskWeeklyMenu:              WeeklyMenuSchema,
	constants.TaskMetrics:                 MetricsSchema,
	constants.TaskAsk:                     AskSchema,
}

var (
	schemasOnce sync.Once
	schemas     map[constants.Task]*Schema
)

// SchemaFor returns the response schema for a task, or nil for unknown tasks.
// Schemas are built once and shared; callers must not modify them.
func SchemaFor(task constants.Task) *Schema {
	schemasOnce.Do(func() {
		schemas = make(map[constants.Task]*Schema, len(registry))
		for t, build := range registry {
			schemas[t] = build()
		}
	})
	return schemas[task]
}

// JSONSchema renders the node as a JSON-Schema document. Every object
// property is listed as required; nullability is explicit.
func (s *Schema) JSONSchema() map[string]any {
	out := map[string]any{}
	typ := map[Kind]string{
		KindObject: "object",
		KindArray:  "array",
		KindString: "string",
		KindNumber: "number",
	}[s.Kind]
	if s.Nullable {
		out["type"] = []any{typ, "null"}
	} else {
		out["type"] = typ
	}

	switch s.Kind {
	case KindObject:
		props := make(map[string]any, len(s.Fields))
		required := make([]any, 0, len(s.Fields))
		for _, f := range s.Fields {
			props[f.Name] = f.Schema.JSONSchema()
			required = append(required, f.Name)
		}
		out["properties"] = props
		out["required"] = required
	case KindArray:
		if s.Items != nil {
			out["items"] = s.Items.JSONSchema()
		}
	case KindString:
		if s.MaxLength > 0 {
			out["maxLength"] = s.MaxLength
		}
		if len(s.Enum) > 0 {
			enum := make([]any, len(s.Enum))
			for i, v := range s.Enum {
				enum[i] = v
			}
			out["enum"] = enum
		}
	case KindNumber:
		if s.Min != nil {
			out["minimum"] = *s.Min
		}
		if s.Max != nil {
			out["maximum"] = *s.Max
		}
	}
	return out
}
