package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { MustRegister(reg) })

	MessagesTotal.WithLabelValues("ack").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(MessagesTotal.WithLabelValues("ack")))

	n, err := testutil.GatherAndCount(reg, "dbxnotify_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Serve(ctx, "127.0.0.1:0"))
}
