// Package blob stores certificate evidence files on the local filesystem,
// one directory per certificate, and fingerprints content with SHA-256.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/certificate"
)

type fsStore struct {
	root    string
	maxSize int64
}

var _ certificate.EvidenceStore = (*fsStore)(nil) // interface compliance check

func NewEvidenceStore(conf *core.Config) (*fsStore, error) {
	root := conf.Evidence.Root
	if !filepath.IsAbs(root) {
		root = filepath.Join(conf.WorkDir, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating evidence root")
	}
	return &fsStore{root: root, maxSize: conf.Evidence.MaxFileSize}, nil
}

// Save writes the blob under <root>/<certID>/<filename> and returns the
// relative key and the SHA-256 hex digest of the content. An existing blob
// for the certificate is replaced. The size ceiling is enforced on the
// actual stream, not on client-declared metadata.
func (s *fsStore) Save(ctx context.Context, certID, filename string, r io.Reader) (string, string, error) {
	dir := filepath.Join(s.root, certID)
	if err := os.RemoveAll(dir); err != nil {
		return "", "", errors.Wrap(err, "clearing evidence dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "creating evidence dir")
	}

	filename = filepath.Base(filename)
	f, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", "", errors.Wrap(err, "creating evidence file")
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", "", errors.Wrap(err, "writing evidence file")
	}
	if n > s.maxSize {
		_ = os.RemoveAll(dir)
		return "", "", core.NewValidationError(nil, core.FieldError{Field: "file", Error: "evidence file exceeds the size limit"})
	}
	key := filepath.ToSlash(filepath.Join(certID, filename))
	return key, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *fsStore) Delete(ctx context.Context, certID string) error {
	if err := os.RemoveAll(filepath.Join(s.root, certID)); err != nil {
		return errors.Wrap(err, "deleting evidence dir")
	}
	return nil
}

// Open returns the stored blob for download.
func (s *fsStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		return nil, errors.Wrap(err, "opening evidence file")
	}
	return f, nil
}
