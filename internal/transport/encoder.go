// Package transport moves PCM frames from the capture path to an active
// speech session. Frames are base64-encoded for the boundary crossing and
// forwarded under a single-in-flight rate limit; the recording buffer is
// tapped on every frame regardless of whether the frame is forwarded.
package transport

import (
	"encoding/base64"
	"strings"
)

// encodePageBytes is the page size for incremental base64 building. It is
// the largest multiple of 3 that fits in 8 KB, so each page encodes without
// padding and concatenated pages form one valid base64 string. Building
// page-wise keeps encode cost linear; a single large concatenation is
// quadratic on runtimes with rope-free string representations.
const encodePageBytes = 8190

// EncodeFrame encodes a PCM frame as base64 for the session boundary.
func EncodeFrame(frame []byte) string {
	if len(frame) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(frame)))
	for off := 0; off < len(frame); off += encodePageBytes {
		end := off + encodePageBytes
		if end > len(frame) {
			end = len(frame)
		}
		b.WriteString(base64.StdEncoding.EncodeToString(frame[off:end]))
	}
	return b.String()
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}
