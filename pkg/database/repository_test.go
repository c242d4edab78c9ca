package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRecord_RoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	missing, err := client.FindIdempotencyRecord(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, client.SaveIdempotencyRecord(ctx, "key-1", "post.social", []byte(`{"platform_post_id":"p1"}`)))

	found, err := client.FindIdempotencyRecord(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "post.social", found.Activity)
	assert.JSONEq(t, `{"platform_post_id":"p1"}`, string(found.Output))
}

func TestIdempotencyRecord_SaveIsIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SaveIdempotencyRecord(ctx, "key-2", "post.social", []byte(`{}`)))
	// A retried activity attempt calling Save again with the same key must
	// not error even though the row already exists.
	require.NoError(t, client.SaveIdempotencyRecord(ctx, "key-2", "post.social", []byte(`{}`)))
}

func TestReport_Save(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SaveReport(ctx, "evaluation_run", []byte(`{"accuracy":0.9}`)))

	var found Report
	require.NoError(t, client.First(&found, "report_type = ?", "evaluation_run").Error)
	assert.JSONEq(t, `{"accuracy":0.9}`, string(found.Payload))
}
