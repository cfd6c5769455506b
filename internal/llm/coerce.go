package llm

import (
	"math"
	"strconv"
	"strings"
)

// Coerce projects v onto the schema. It never fails: unknown keys are
// dropped, missing or wrong-typed values are replaced by defaults, and
// strings are truncated to MaxLength. The returned paths name every value
// that was changed. Coerce(Coerce(v)) equals Coerce(v).
func (s *Schema) Coerce(v any) (any, []string) {
	var changes []string
	out := s.coerce(v, "$", &changes)
	return out, changes
}

func (s *Schema) coerce(v any, path string, changes *[]string) any {
	note := func(reason string) { *changes = append(*changes, path+": "+reason) }

	switch s.Kind {
	case KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			if v != nil {
				note("not an object")
			}
			m = map[string]any{}
		}
		out := make(map[string]any, len(s.Fields))
		for _, f := range s.Fields {
			fv, present := m[f.Name]
			if !present && !f.Schema.Nullable {
				*changes = append(*changes, path+"."+f.Name+": missing")
			}
			out[f.Name] = f.Schema.coerce(fv, path+"."+f.Name, changes)
		}
		for k := range m {
			if s.FieldSchema(k) == nil {
				*changes = append(*changes, path+"."+k+": unknown key dropped")
			}
		}
		return out

	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			if v != nil {
				note("not an array")
			}
			return []any{}
		}
		out := make([]any, 0, len(arr))
		for i, item := range arr {
			itemPath := path + "[" + strconv.Itoa(i) + "]"
			if s.Items == nil {
				out = append(out, item)
				continue
			}
			if !s.Items.accepts(item) {
				*changes = append(*changes, itemPath+": dropped")
				continue
			}
			out = append(out, s.Items.coerce(item, itemPath, changes))
		}
		return out

	case KindString:
		var str string
		switch t := v.(type) {
		case string:
			str = t
		case float64:
			str = strconv.FormatFloat(t, 'f', -1, 64)
			note("number converted to string")
		case bool:
			str = strconv.FormatBool(t)
			note("bool converted to string")
		case nil:
			return s.fallback()
		default:
			note("unexpected type")
			return s.fallback()
		}
		if s.MaxLength > 0 {
			if r := []rune(str); len(r) > s.MaxLength {
				str = string(r[:s.MaxLength])
				note("truncated")
			}
		}
		return str

	case KindNumber:
		var n float64
		switch t := v.(type) {
		case float64:
			n = t
		case string:
			parsed, ok := parseNumber(t)
			if s.Strict || !ok {
				note("non-numeric value")
				return s.fallback()
			}
			n = parsed
		case nil:
			return s.fallback()
		default:
			note("non-numeric value")
			return s.fallback()
		}
		if (s.Min != nil && n < *s.Min) || (s.Max != nil && n > *s.Max) {
			note("out of range")
			return s.fallback()
		}
		return n
	}
	return v
}

// accepts reports whether an array element is worth keeping for this item
// schema. Elements of the wrong shape are dropped rather than defaulted so
// arrays never gain placeholder entries.
func (s *Schema) accepts(v any) bool {
	switch s.Kind {
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	case KindString:
		switch v.(type) {
		case string, float64, bool:
			return true
		}
		return false
	case KindNumber:
		switch t := v.(type) {
		case float64:
			return true
		case string:
			_, ok := parseNumber(t)
			return ok && !s.Strict
		}
		return false
	}
	return false
}

func (s *Schema) fallback() any {
	if s.Nullable {
		return nil
	}
	switch s.Kind {
	case KindArray:
		return []any{}
	case KindObject:
		return s.coerce(nil, "", new([]string))
	}
	return s.Default
}

// parseNumber accepts plain decimals with optional currency symbols and
// thousands separators, e.g. "$1,234.50".
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
