package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Report content types accepted for upload.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var allowedContentTypes = map[string]bool{
	ContentTypeCSV:  true,
	ContentTypeXLSX: true,
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	normalized := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	if !allowedContentTypes[normalized] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ObjectKey builds folder/base_<8 hex>.ext so reruns never overwrite an
// earlier upload.
func ObjectKey(folder, fileName string) string {
	ext := path.Ext(fileName)
	baseName := strings.TrimSuffix(path.Base(fileName), ext)
	unique := fmt.Sprintf("%s_%s%s", baseName, uuid.NewString()[:8], ext)
	return path.Join(strings.Trim(folder, "/"), unique)
}
