package session

import (
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// DetectMIME sniffs the MIME type from the content. When the content says
// nothing more specific than plain text or raw bytes, the file extension
// decides.
func DetectMIME(name string, data []byte) string {
	m := mimetype.Detect(data)
	if !m.Is("application/octet-stream") && !m.Is("text/plain") {
		return m.String()
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return m.String()
}
