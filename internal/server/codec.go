package server

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/zerowaste/internal/common"
)

// decodeStruct converts a google.protobuf.Struct into a typed request.
func decodeStruct[T any](in *structpb.Struct) (T, error) {
	var out T
	if in == nil {
		return out, nil
	}
	b, err := json.Marshal(in.AsMap())
	if err != nil {
		return out, fmt.Errorf("%w: encode request: %v", common.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("%w: decode request: %v", common.ErrInvalidInput, err)
	}
	return out, nil
}

// encodeStruct converts a typed response into a google.protobuf.Struct
// using its JSON field names.
func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(m)
}
