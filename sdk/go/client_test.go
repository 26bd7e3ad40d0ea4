package maintlinesdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintline/internal/daterange"
	"maintline/internal/db"
	"maintline/internal/engine"
	"maintline/internal/migrate"
	"maintline/internal/server"
	maintlinesdk "maintline/sdk/go"
)

func newClient(t *testing.T) (*maintlinesdk.Client, engine.Engine) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	e := engine.New(conn, daterange.Calendar{Location: time.UTC, WeekStart: time.Sunday})
	handler, err := server.New(server.Config{Engine: e, Log: zerolog.Nop()})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := maintlinesdk.New(ts.URL)
	c.ActorID = "sdk"
	return c, e
}

func TestClientWorkOrderFlow(t *testing.T) {
	c, e := newClient(t)
	ctx := context.Background()
	m, err := e.CreateMachine(ctx, "Mill", "")
	require.NoError(t, err)

	urgent := "URGENT"
	w, err := c.CreateWorkOrder(ctx, maintlinesdk.CreateWorkOrderInput{MachineCode: m.Code, Priority: &urgent})
	require.NoError(t, err)
	assert.Equal(t, "PLANNED", w.State)
	assert.Equal(t, "URGENT", w.Priority)

	w, err = c.Advance(ctx, w.Code, "VALIDATED", nil)
	require.NoError(t, err)
	assert.Equal(t, "VALIDATED", w.State)

	_, err = c.Advance(ctx, w.Code, "DONE", nil)
	var apiErr *maintlinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusMethodNotAllowed, apiErr.StatusCode)
	assert.Equal(t, "policy", apiErr.Code)

	list, err := c.ListWorkOrders(ctx, "MONTHLY", "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	events, err := c.Events(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "sdk", events[0].ActorID)

	require.NoError(t, c.DeleteWorkOrder(ctx, w.Code))
	_, err = c.GetWorkOrder(ctx, w.Code)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not_found", apiErr.Code)
}
