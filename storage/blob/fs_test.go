package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-edu/meridian/core"
)

func newTestStore(t *testing.T, maxSize int64) *fsStore {
	t.Helper()
	conf := &core.Config{
		WorkDir:  t.TempDir(),
		Evidence: core.EvidenceConfig{Root: "evidence", MaxFileSize: maxSize},
	}
	s, err := NewEvidenceStore(conf)
	require.NoError(t, err)
	return s
}

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1024)

	key, hash, err := s.Save(ctx, "cert-1", "scan.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "cert-1/scan.pdf", key)
	assert.Len(t, hash, 64)

	r, err := s.Open(ctx, key)
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	_ = r.Close()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(content))

	require.NoError(t, s.Delete(ctx, "cert-1"))
	_, err = s.Open(ctx, key)
	assert.Error(t, err)
}

func TestFSStoreSaveSizeLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 16)

	// the actual stream is what counts, not any declared size
	_, _, err := s.Save(ctx, "cert-2", "big.pdf", strings.NewReader(strings.Repeat("a", 17)))
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = s.Open(ctx, "cert-2/big.pdf")
	assert.Error(t, err, "oversized blob must not be kept")

	_, _, err = s.Save(ctx, "cert-3", "ok.pdf", strings.NewReader(strings.Repeat("a", 16)))
	require.NoError(t, err)
}
