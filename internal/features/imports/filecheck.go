package imports

import (
	"fmt"
	"path/filepath"
	"strings"

	"go-dataport/internal/config"
)

// CheckFile is the pre-upload gate: extension/MIME whitelist and size limit.
// Called client-side by the workflow before any network traffic and again by
// the upload handler, since the server cannot trust the client ran it.
func CheckFile(filename, mimeType string, size, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(filename))

	okType := false
	for _, e := range config.AcceptedExtensions {
		if ext == e {
			okType = true
			break
		}
	}
	if !okType && mimeType != "" {
		base := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
		for _, m := range config.AcceptedMimeTypes {
			if base == m {
				okType = true
				break
			}
		}
	}
	if !okType {
		return fmt.Errorf("unsupported file type %q: accepted formats are CSV, XLSX, XLS", filename)
	}

	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("file is %d bytes, exceeding the %d byte limit", size, maxBytes)
	}

	return nil
}
