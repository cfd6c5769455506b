package llm

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/joseph-ayodele/zerowaste/internal/common"
)

// DecodeImagePayload accepts raw base64 or a data URL and returns the image
// bytes with a sniffed media type.
func DecodeImagePayload(payload string) (*Image, error) {
	payload = strings.TrimSpace(payload)
	declared := ""
	if strings.HasPrefix(payload, "data:") {
		comma := strings.Index(payload, ",")
		if comma < 0 {
			return nil, fmt.Errorf("%w: malformed data URL", common.ErrInvalidInput)
		}
		meta := payload[len("data:"):comma]
		declared, _, _ = strings.Cut(meta, ";")
		payload = payload[comma+1:]
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty image payload", common.ErrInvalidInput)
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64: %v", common.ErrInvalidInput, err)
	}

	mt := mimetype.Detect(data)
	mediaType := mt.String()
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	if !strings.HasPrefix(mediaType, "image/") {
		if !strings.HasPrefix(declared, "image/") {
			return nil, fmt.Errorf("%w: payload is %s, not an image", common.ErrInvalidInput, mediaType)
		}
		mediaType = declared
	}
	return &Image{Data: data, MediaType: mediaType}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// DataURL encodes the image the way vision endpoints expect it inline.
func (i Image) DataURL() string {
	mt := i.MediaType
	if mt == "" {
		mt = "image/jpeg"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}
