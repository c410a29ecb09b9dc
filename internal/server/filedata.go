package server

import (
	"encoding/base64"
	"strings"

	"classrelay/internal/core"
)

const (
	defaultFileName = "upload"
	defaultMimeType = "application/octet-stream"
)

// parseFileData decodes fileData, which is either raw base64 or a
// data:<mime>;base64,<data> URL. A mime type from the data URL is used only
// when the request did not name one.
func parseFileData(fileData, mimeType string) ([]byte, string, error) {
	fileData = strings.TrimSpace(fileData)
	if fileData == "" {
		return nil, "", core.NewInvalidRequestError("fileData is required", nil)
	}

	if rest, ok := strings.CutPrefix(fileData, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", core.NewInvalidRequestError("fileData data URL must be base64 encoded", nil)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		fileData = data
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	payload, err := base64.StdEncoding.DecodeString(fileData)
	if err != nil {
		return nil, "", core.NewInvalidRequestError("fileData is not valid base64", err)
	}
	if len(payload) == 0 {
		return nil, "", core.NewInvalidRequestError("fileData is empty", nil)
	}
	return payload, mimeType, nil
}
