package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazyhaar/shotdiff/visreg/internal/explorer"
)

var _ explorer.Page = (*Tab)(nil)

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"fonts": true, "media": true, "ping": true}

	assert.True(t, shouldBlock(set, "Font"))
	assert.True(t, shouldBlock(set, "Media"))
	assert.True(t, shouldBlock(set, "Ping"))
	assert.False(t, shouldBlock(set, "Image"))
	assert.False(t, shouldBlock(set, "Stylesheet"))
	assert.False(t, shouldBlock(set, "Document"))
}

func TestOpenPage_NotStarted(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.OpenPage(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, m.Close(), "closing an unstarted manager is a no-op")
}
