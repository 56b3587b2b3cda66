package structx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type innerConfig struct {
	Queue string `envDefault:"events"`
	Limit int    `envDefault:"5"`
}

type sampleConfig struct {
	URL      string        `envDefault:"amqp://localhost"`
	Brokers  []string      `envDefault:"a:1,b:2"`
	Timeout  time.Duration `envDefault:"30s"`
	Durable  bool          `envDefault:"true"`
	Inner    innerConfig
	NoTagged string
}

func TestMergeWithDefaults(t *testing.T) {
	got, err := MergeWithDefaults(sampleConfig{URL: "amqp://rabbit", Inner: innerConfig{Limit: 9}})
	require.NoError(t, err)
	assert.Equal(t, "amqp://rabbit", got.URL)
	assert.Equal(t, []string{"a:1", "b:2"}, got.Brokers)
	assert.Equal(t, 30*time.Second, got.Timeout)
	assert.True(t, got.Durable)
	assert.Equal(t, "events", got.Inner.Queue)
	assert.Equal(t, 9, got.Inner.Limit)
	assert.Empty(t, got.NoTagged)
}

func TestMergeStructs_NoValues(t *testing.T) {
	_, err := MergeStructs[sampleConfig]()
	assert.Error(t, err)
}

func TestSetEnvDefault_RejectsNonPointer(t *testing.T) {
	assert.Error(t, SetEnvDefault(sampleConfig{}))
}
