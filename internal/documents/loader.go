package documents

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads documents from YAML or JSON files.
type Loader struct {
	maxSize int64
}

// NewLoader creates a Loader that rejects files larger than maxSize bytes.
// A non-positive maxSize disables the check.
func NewLoader(maxSize int64) *Loader {
	return &Loader{maxSize: maxSize}
}

// Load reads and parses the document at path. The file name seeds the ID
// and label when the file omits them.
func (l *Loader) Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat document: %w", err)
	}

	if l.maxSize > 0 && info.Size() > l.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	return Parse(filepath.Base(path), data)
}

// Parse decodes a document. JSON input is accepted since it is valid YAML.
func Parse(name string, data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	if doc.ID == "" {
		doc.ID = generateID(base, data)
	}
	if doc.Label == "" {
		doc.Label = base
	}

	if err := doc.validate(); err != nil {
		return nil, err
	}

	return &doc, nil
}

func (d *Document) validate() error {
	if len(d.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidFile)
	}

	seen := make(map[string]struct{}, len(d.Fields))
	for i, f := range d.Fields {
		if f.Key == "" {
			return fmt.Errorf("%w: field %d has no key", ErrInvalidFile, i)
		}
		if _, ok := seen[f.Key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, f.Key)
		}
		seen[f.Key] = struct{}{}
	}

	return nil
}

// generateID derives a stable ID from the file name and content hash.
func generateID(base string, content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%s-%s", sanitizeID(base), hex.EncodeToString(sum[:])[:12])
}

func sanitizeID(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('-')
		}
	}
	if sb.Len() == 0 {
		return "document"
	}
	return sb.String()
}
