package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stored: сохранённый загруженный файл.
type Stored struct {
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// BlobStore хранит исходные файлы загрузок (_upload), чтобы их можно было скачать повторно.
type BlobStore interface {
	Put(name string, r io.Reader) (Stored, error)
	Path(key string) (string, error)
}

// LocalBlobStore: файлы на диске: <Root>/<yyyy>/<mm>/<uuid>-<name>.
type LocalBlobStore struct {
	Root string
}

func (s *LocalBlobStore) Put(name string, r io.Reader) (Stored, error) {
	now := time.Now().UTC()
	key := filepath.ToSlash(filepath.Join(
		fmt.Sprintf("%04d/%02d", now.Year(), int(now.Month())),
		uuid.NewString()+"-"+safeFileName(name),
	))
	full := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Stored{}, err
	}
	f, err := os.Create(full)
	if err != nil {
		return Stored{}, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		return Stored{}, err
	}
	return Stored{Key: key, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// Path: полный путь ключа; ключи с выходом за Root отклоняются.
func (s *LocalBlobStore) Path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.Root, clean), nil
}

func safeFileName(name string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "upload.csv"
	}
	return strings.ReplaceAll(name, " ", "_")
}
