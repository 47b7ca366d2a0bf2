package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudWatchDisabledOutsideProduction(t *testing.T) {
	c, err := NewClient(context.Background(), "development")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.False(t, c.enabled)

	// Every recorder must be a safe no-op on a disabled client.
	c.RecordAPIRequest("/api/v1/analysis", 200, 50*time.Millisecond)
	c.RecordAnalysisDuration(time.Second, true)
	c.RecordEnhancementUsage("openai", false)
	c.RecordTokenUsage("gpt-5-mini", 1200, 800, 400)
}

func TestSentryMetricsRecordersSafeWithoutHub(t *testing.T) {
	m := NewSentryMetrics()
	require.NotNil(t, m)
	ctx := context.Background()

	// Sentry is not initialized in tests; spans degrade to no-ops.
	m.RecordAPIRequest(ctx, "/health", 200, time.Millisecond)
	m.RecordAnalysisDuration(ctx, time.Second, 5, true)
	m.RecordEnhancementUsage(ctx, "openai", true, 2*time.Second)
	m.RecordTokenUsage(ctx, "gpt-5-mini", 1200, 800, 400)
	m.RecordCustomMetric("enhancement_fallback", map[string]interface{}{
		"provider": "openai",
	})
}
