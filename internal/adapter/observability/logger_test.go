package observability_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/observability"
	"github.com/fairyhunter13/payload-sanitizer/internal/config"
)

func TestSetupLogger(t *testing.T) {
	t.Parallel()
	lg := observability.SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "payload-sanitizer"})
	require.NotNil(t, lg)
	assert.True(t, lg.Enabled(context.Background(), slog.LevelDebug))

	lg = observability.SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "payload-sanitizer"})
	require.NotNil(t, lg)
	assert.False(t, lg.Enabled(context.Background(), slog.LevelDebug))
}
