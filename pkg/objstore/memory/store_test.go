package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValerySidorin/sopsync/pkg/objstore/objerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "constants/countries.json")
	assert.ErrorIs(t, err, objerr.ErrNotFound)

	require.NoError(t, s.Put(ctx, "constants/countries.json", strings.NewReader(`{"c-se":"Sweden"}`), "application/json"))
	b, err := s.Get(ctx, "constants/countries.json")
	require.NoError(t, err)
	assert.Equal(t, `{"c-se":"Sweden"}`, string(b))

	src := filepath.Join(t.TempDir(), "42.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF"), 0o644))
	require.NoError(t, s.PutFile(ctx, "kb_documents/a/sop/42.pdf", src))

	keys, err := s.List(ctx, "kb_documents/")
	require.NoError(t, err)
	assert.Equal(t, []string{"kb_documents/a/sop/42.pdf"}, keys)

	dst := filepath.Join(t.TempDir(), "copy.pdf")
	require.NoError(t, s.DownloadToLocal(ctx, "kb_documents/a/sop/42.pdf", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(got))

	require.NoError(t, s.Delete(ctx, "kb_documents/a/sop/42.pdf"))
	require.NoError(t, s.Delete(ctx, "kb_documents/a/sop/missing.pdf"))

	assert.Equal(t, []Op{
		{Kind: "put", Key: "constants/countries.json"},
		{Kind: "put", Key: "kb_documents/a/sop/42.pdf"},
		{Kind: "delete", Key: "kb_documents/a/sop/42.pdf"},
		{Kind: "delete", Key: "kb_documents/a/sop/missing.pdf"},
	}, s.Ops())
}
