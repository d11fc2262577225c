package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/1ureka/beam/internal/crypto"
	"github.com/1ureka/beam/internal/protocol"
)

// Sink is a streaming destination for one incoming file. Chunks of
// ciphertext are written to it as they arrive; Finalize decrypts the result
// once the file is complete and returns where the plaintext ended up.
type Sink interface {
	io.WriteCloser
	Finalize(key []byte) (string, error)
}

// FileSink spools ciphertext to a fresh <dir>/<name>.*.part file and writes
// the decrypted file next to it on Finalize. The spool is removed either way;
// existing files are never touched.
type FileSink struct {
	dir   string
	name  string
	spool *os.File
}

// NewFileSink creates the spool file for meta in dir.
func NewFileSink(dir string, meta protocol.Metadata) (*FileSink, error) {
	name := safeName(meta.Name)
	spool, err := os.CreateTemp(dir, strings.ReplaceAll(name, "*", "_")+".*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	return &FileSink{dir: dir, name: name, spool: spool}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.spool.Write(p)
}

// Close flushes the spool. The ciphertext stays until Finalize.
func (s *FileSink) Close() error {
	return s.spool.Close()
}

// Abort discards the spool.
func (s *FileSink) Abort() error {
	s.spool.Close()
	return os.Remove(s.spool.Name())
}

// Finalize decrypts the spool into its final location.
func (s *FileSink) Finalize(key []byte) (string, error) {
	defer os.Remove(s.spool.Name())

	ciphertext, err := os.ReadFile(s.spool.Name())
	if err != nil {
		return "", fmt.Errorf("failed to read spool file: %w", err)
	}
	plain, err := crypto.Decrypt(ciphertext, key)
	if err != nil {
		return "", err
	}
	return writeUnique(s.dir, s.name, plain)
}

// SaveFile writes an in-memory file into dir without overwriting anything
// and returns the path used.
func SaveFile(dir string, f File) (string, error) {
	return writeUnique(dir, safeName(f.Name), f.Data)
}

// writeUnique writes data to dir/name, or "name (n).ext" if that exists.
func writeUnique(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for n := 0; ; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		path := filepath.Join(dir, candidate)

		out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}
		if _, err := out.Write(data); err != nil {
			out.Close()
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		return path, out.Close()
	}
}

// safeName strips any directory part a peer may have put in a file name.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "download"
	}
	return name
}
