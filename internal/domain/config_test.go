package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8090, config.Server.Port)
	assert.Equal(t, 3, config.Download.Workers)
	assert.Equal(t, 150*time.Second, config.Download.TrackTimeout)
	assert.Equal(t, 2*time.Second, config.Download.ItemDelay)
	assert.True(t, config.Download.DedupeAfterRun)
	assert.False(t, config.Download.AutoRun)
	assert.Equal(t, "hifi", config.Backend.Binary)
	assert.Empty(t, config.Backend.Variants)
	assert.True(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "console", config.Logging.Format)
}
