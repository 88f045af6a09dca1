package reload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
)

type countingDev struct{ reloads int }

func (c *countingDev) Serve(context.Context, action.ServeOptions) (string, error) { return "", nil }

func (c *countingDev) Reload(context.Context) int {
	c.reloads++
	return 1
}

func TestOnRunReload(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	dev := &countingDev{}

	assert.NoError(t, OnRunReload(ctx, &action.Env{Dev: dev}, &Input{}))
	assert.Equal(t, 1, dev.reloads)

	assert.NoError(t, OnRunReload(ctx, &action.Env{}, &Input{}), "no dev server is a no-op")
}
