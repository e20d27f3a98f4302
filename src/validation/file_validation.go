package validation

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
)

// FileKind selects the validation profile for an upload endpoint.
type FileKind string

const (
	KindCSV FileKind = "csv"
	KindPDF FileKind = "pdf"
)

// allowedClientContentTypes maps client-declared MIME types per upload kind.
var allowedClientContentTypes = map[FileKind]map[string]bool{
	KindCSV: {
		"text/csv":                 true,
		"application/csv":          true,
		"application/vnd.ms-excel": true, // older Excel exports CSV under this type
		"text/plain":               true,
		"application/octet-stream": true,
	},
	KindPDF: {
		"application/pdf":          true,
		"application/octet-stream": true,
	},
}

// ValidateClientContentType checks the Content-Type header provided by the client.
func ValidateClientContentType(contentType string, kind FileKind) error {
	normalized := strings.ToLower(strings.Split(contentType, ";")[0])
	if normalized == "" {
		return nil // clients often omit the part header; magic bytes decide
	}
	if !allowedClientContentTypes[kind][normalized] {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType, "kind", kind)
		return fmt.Errorf("client-declared file type '%s' is not allowed for %s upload", contentType, kind)
	}
	return nil
}

// allowedDetectedTypes are the content types http.DetectContentType may
// legitimately report per upload kind. octet-stream is tolerated for CSV;
// strict parsing catches impostors later.
var allowedDetectedTypes = map[FileKind]map[string]bool{
	KindCSV: {
		"text/plain":               true,
		"text/csv":                 true,
		"application/csv":          true,
		"application/octet-stream": true,
	},
	KindPDF: {
		"application/pdf": true,
	},
}

// ValidateFileContentByMagicBytes checks the actual file content signature.
// It returns the detected content type and resets the read pointer so the
// parser can read the full file.
func ValidateFileContentByMagicBytes(file io.ReadSeeker, kind FileKind) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", err)
	}

	detected := strings.ToLower(strings.Split(http.DetectContentType(buffer[:n]), ";")[0])
	if !allowedDetectedTypes[kind][detected] {
		logger.L.Warn("Disallowed detected file content type", "detectedContentType", detected, "kind", kind)
		return detected, fmt.Errorf("detected file content type '%s' is not consistent with a %s file", detected, kind)
	}
	return detected, nil
}
