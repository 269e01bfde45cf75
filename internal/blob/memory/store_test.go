package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/shellsale/internal/blob"
)

func TestPutGet(t *testing.T) {
	store := New()
	ctx := context.Background()

	meta := map[string]string{"sale-number": "VAV-000001"}
	_, err := store.Put(ctx, "documents/b.json", strings.NewReader("b"), blob.PutOptions{ContentType: "application/json", Metadata: meta})
	require.NoError(t, err)
	_, err = store.Put(ctx, "documents/a.json", strings.NewReader("a"), blob.PutOptions{})
	require.NoError(t, err)
	meta["sale-number"] = "changed"

	info, rc, err := store.Get(ctx, "documents/b.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "b", string(body))
	assert.Equal(t, "VAV-000001", info.Metadata["sale-number"])
	assert.Equal(t, []string{"documents/a.json", "documents/b.json"}, store.Keys())

	_, _, err = store.Get(ctx, "documents/c.json")
	require.ErrorIs(t, err, blob.ErrNotFound)
}
