package service

import (
	"encoding/base64"
	"fmt"
	"strings"

	"claim-service/internal/fingerprint"
)

var errNotInline = fmt.Errorf("%w: proof is not an inline image", fingerprint.ErrDecode)

// decodeProof extracts image bytes from a data URL of the form
// data:<mime>;base64,<payload>. Other references carry no image.
func decodeProof(ref string) ([]byte, error) {
	if !strings.HasPrefix(ref, "data:") {
		return nil, errNotInline
	}

	meta, payload, ok := strings.Cut(ref[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URL", fingerprint.ErrDecode)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data URL is not base64 encoded", fingerprint.ErrDecode)
	}
	if mime := strings.TrimSuffix(meta, ";base64"); mime != "" && !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: unsupported media type %q", fingerprint.ErrDecode, mime)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some clients strip padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fingerprint.ErrDecode, err)
	}
	return data, nil
}
