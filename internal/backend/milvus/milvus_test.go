package milvus

import (
	"context"
	"testing"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
)

func TestMetricType(t *testing.T) {
	assert.Equal(t, entity.L2, metricType(dataset.DistanceL2))
	assert.Equal(t, entity.IP, metricType(dataset.DistanceDot))
	assert.Equal(t, entity.COSINE, metricType(dataset.DistanceCosine))
	assert.Equal(t, entity.COSINE, metricType(""), "cosine is the fallback")
}

// New wires the capability set without touching the network; the connection
// is established lazily on first use.
func TestNew_SetShape(t *testing.T) {
	set, err := New(context.Background(), backend.Spec{
		Engine: Name,
		ConnectionParams: backend.Params{
			"address": "milvus.internal:19530",
		},
		CollectionParams: backend.Params{"m": 32},
		SearchParams: []backend.Params{
			{"top": 10},
			{"top": 100},
		},
	})
	require.NoError(t, err)

	require.Len(t, set.Searchers, 2)
	require.NotNil(t, set.Configurator)
	require.NotNil(t, set.Uploader)

	cfg, ok := set.Configurator.(*configurator)
	require.True(t, ok)
	assert.Equal(t, "milvus.internal:19530", cfg.conn.address)
	assert.Equal(t, 32, cfg.CollectionParams().GetInt("m", 16))

	// All capabilities share one connection.
	up, ok := set.Uploader.(*uploader)
	require.True(t, ok)
	assert.Same(t, cfg.conn, up.conn)
}

// The configured recovery poll interval must reach the probes that pace
// index-rebuild and compaction waits; zero keeps the package default.
func TestRecoveryPollInterval_Plumbing(t *testing.T) {
	set, err := New(context.Background(), backend.Spec{
		Engine:               Name,
		SearchParams:         []backend.Params{{"top": 10}},
		RecoveryPollInterval: 3 * time.Second,
	})
	require.NoError(t, err)
	up, ok := set.Uploader.(*uploader)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, up.interval())

	set, err = New(context.Background(), backend.Spec{
		Engine:       Name,
		SearchParams: []backend.Params{{"top": 10}},
	})
	require.NoError(t, err)
	up, ok = set.Uploader.(*uploader)
	require.True(t, ok)
	assert.Equal(t, defaultRecoveryPollInterval, up.interval())
}

func TestExecutionParams_NoClientSideNormalization(t *testing.T) {
	cfg := &configurator{}
	params := cfg.ExecutionParams(dataset.DistanceCosine, 128)
	normalize, ok := params["normalize"].(bool)
	require.True(t, ok)
	assert.False(t, normalize)
}

func TestConnClose_NeverConnected(t *testing.T) {
	c := &conn{address: "localhost:19530"}
	assert.NoError(t, c.close())
	assert.NoError(t, c.close())
}

func TestOptionalCapabilities(t *testing.T) {
	set, err := New(context.Background(), backend.Spec{
		Engine:       Name,
		SearchParams: []backend.Params{{"top": 10}},
	})
	require.NoError(t, err)

	_, ok := set.Uploader.(backend.LoadWaiter)
	assert.True(t, ok, "uploader waits for collection load")
	_, ok = set.Uploader.(backend.ClientIniter)
	assert.True(t, ok, "uploader can re-establish the connection")
	_, ok = set.Uploader.(backend.Recoverer)
	assert.True(t, ok, "uploader waits out post-restart recovery")
}
