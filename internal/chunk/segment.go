// Package chunk moves payloads that do not fit in one URL-encoded GET request
// through the relay as an ordered session of bounded text fragments.
package chunk

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// MinChunkLength is the smallest usable fragment: one base64 quantum.
const MinChunkLength = 4

// DefaultMaxChunkLength keeps a fragment plus its URL escaping and the other
// parameters well under the ~8KB URL limits common on script hosts.
const DefaultMaxChunkLength = 1500

// Encode turns a binary payload into the text form carried in query parameters
func Encode(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// Decode reverses Encode
func Decode(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// Split partitions encoded text into contiguous segments of at most maxLen
// characters. Joining the result in order yields the input.
func Split(encoded string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLength
	}
	if encoded == "" {
		return nil
	}
	segments := make([]string, 0, (len(encoded)+maxLen-1)/maxLen)
	for start := 0; start < len(encoded); start += maxLen {
		end := start + maxLen
		if end > len(encoded) {
			end = len(encoded)
		}
		segments = append(segments, encoded[start:end])
	}
	return segments
}

// Join concatenates segments in index order
func Join(segments []string) string {
	return strings.Join(segments, "")
}

// Plan is a payload prepared for delivery
type Plan struct {
	// ID correlates the calls of one upload in logs before the backend issues a token
	ID       string
	MimeType string
	FileName string
	Segments []string
	// EncodedLength is the total length of the text form
	EncodedLength int
	// Digest is the xxhash64 of the text form
	Digest string
}

// TotalChunks returns the number of segments
func (p *Plan) TotalChunks() int {
	return len(p.Segments)
}

// NewPlan encodes and segments payload
func NewPlan(payload []byte, mimeType, fileName string, maxLen int) (*Plan, error) {
	return NewPlanFromEncoded(Encode(payload), mimeType, fileName, maxLen)
}

// NewPlanFromEncoded segments a payload that is already in text form
func NewPlanFromEncoded(encoded, mimeType, fileName string, maxLen int) (*Plan, error) {
	if encoded == "" {
		return nil, fmt.Errorf("payload is empty")
	}
	if maxLen != 0 && maxLen < MinChunkLength {
		return nil, fmt.Errorf("max chunk length %d is below minimum %d", maxLen, MinChunkLength)
	}
	return &Plan{
		ID:            uuid.NewString(),
		MimeType:      mimeType,
		FileName:      fileName,
		Segments:      Split(encoded, maxLen),
		EncodedLength: len(encoded),
		Digest:        fmt.Sprintf("%016x", xxhash.Sum64String(encoded)),
	}, nil
}
