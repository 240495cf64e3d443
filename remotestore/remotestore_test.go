package remotestore

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembleque/usersync"
	syncerrors "github.com/tembleque/usersync/errors"
)

func newTestServer(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	server := NewServer()
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	return New(httpServer.URL), httpServer
}

func TestReadResourceAbsentByDefault(t *testing.T) {
	client, _ := newTestServer(t)
	data, err := client.ReadResource(context.Background(), usersync.ResourceSettings)
	require.NoError(t, err)
	assert.Nil(t, data.SyncData)
	assert.Empty(t, data.Ref)
}

func TestWriteThenReadResourceRoundTrips(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	envelope := usersync.SyncData{Version: 1, Content: "hello"}
	raw, err := envelope.Serialize()
	require.NoError(t, err)

	ref, err := client.WriteResource(ctx, usersync.ResourceSettings, raw, "")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	data, err := client.ReadResource(ctx, usersync.ResourceSettings)
	require.NoError(t, err)
	require.NotNil(t, data.SyncData)
	assert.Equal(t, "hello", data.SyncData.Content)
	assert.Equal(t, ref, data.Ref)
}

func TestWriteResourceRejectsStaleRef(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	envelope := usersync.SyncData{Version: 1, Content: "v1"}
	raw, err := envelope.Serialize()
	require.NoError(t, err)
	_, err = client.WriteResource(ctx, usersync.ResourceSettings, raw, "")
	require.NoError(t, err)

	_, err = client.WriteResource(ctx, usersync.ResourceSettings, raw, "not-the-current-ref")
	require.Error(t, err)
	assert.True(t, syncerrors.IsPreconditionFailed(err))
}

func TestResolveContentReturnsHistoricalVersion(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	envelope := usersync.SyncData{Version: 1, Content: "archived"}
	raw, err := envelope.Serialize()
	require.NoError(t, err)
	ref, err := client.WriteResource(ctx, usersync.ResourceSettings, raw, "")
	require.NoError(t, err)

	resolved, err := client.ResolveContent(ctx, usersync.ResourceSettings, ref)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(resolved))
}

func TestResolveContentUnknownRefReturnsNotFound(t *testing.T) {
	client, _ := newTestServer(t)
	_, err := client.ResolveContent(context.Background(), usersync.ResourceSettings, "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerrors.ErrNotFound)
}

func TestGetAllRefsListsEveryVersionOldestFirst(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	var lastRef string
	for i := 0; i < 3; i++ {
		envelope := usersync.SyncData{Version: 1, Content: "v"}
		raw, err := envelope.Serialize()
		require.NoError(t, err)
		ref, err := client.WriteResource(ctx, usersync.ResourceSettings, raw, lastRef)
		require.NoError(t, err)
		lastRef = ref
	}

	handles, err := client.GetAllRefs(ctx, usersync.ResourceSettings)
	require.NoError(t, err)
	require.Len(t, handles, 3)

	for i := 1; i < len(handles); i++ {
		assert.False(t, handles[i].Created.Before(handles[i-1].Created))
	}
}

func TestWriteResourceGzipsLargePayloads(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	large := make([]byte, 0, 4096)
	for len(large) < 4096 {
		large = append(large, []byte(`"padding-value",`)...)
	}
	envelope := usersync.SyncData{Version: 1, Content: string(large)}
	raw, err := envelope.Serialize()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), DefaultLimits.GzipMinBytes)

	ref, err := client.WriteResource(ctx, usersync.ResourceSettings, raw, "")
	require.NoError(t, err)

	data, err := client.ReadResource(ctx, usersync.ResourceSettings)
	require.NoError(t, err)
	require.NotNil(t, data.SyncData)
	assert.Equal(t, string(large), data.SyncData.Content)
	assert.Equal(t, ref, data.Ref)
}
