package llm

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/zerowaste/internal/common"
)

// minimal PNG signature plus the start of an IHDR chunk
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestDecodeImagePayloadRawBase64(t *testing.T) {
	img, err := DecodeImagePayload(base64.StdEncoding.EncodeToString(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MediaType)
	assert.Equal(t, pngBytes, img.Data)
}

func TestDecodeImagePayloadDataURL(t *testing.T) {
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	img, err := DecodeImagePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MediaType)
	assert.True(t, strings.HasPrefix(img.DataURL(), "data:image/png;base64,"))
}

func TestDecodeImagePayloadWrappedAndUnpadded(t *testing.T) {
	enc := base64.RawStdEncoding.EncodeToString(pngBytes)
	wrapped := enc[:10] + "\n" + enc[10:]
	img, err := DecodeImagePayload(wrapped)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Data)
}

func TestDecodeImagePayloadTrustsDeclaredImageType(t *testing.T) {
	payload := "data:image/heic;base64," + base64.StdEncoding.EncodeToString([]byte("opaque bytes"))
	img, err := DecodeImagePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "image/heic", img.MediaType)
}

func TestDecodeImagePayloadRejects(t *testing.T) {
	for name, payload := range map[string]string{
		"empty":        "",
		"not base64":   "!!!***",
		"not an image": base64.StdEncoding.EncodeToString([]byte("hello world, this is text")),
		"bad data url": "data:image/png;base64",
	} {
		_, err := DecodeImagePayload(payload)
		assert.ErrorIs(t, err, common.ErrInvalidInput, name)
	}
}

func TestDataURLDefaultsToJPEG(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,AQI=", Image{Data: []byte{1, 2}}.DataURL())
}
