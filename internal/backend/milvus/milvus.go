// Package milvus implements the engine capability set against a Milvus
// instance, including the optional load-wait and recovery capabilities the
// orchestrator leans on after a restart with reused volumes.
package milvus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
)

// Name is the engine identifier used in experiment configs.
const Name = "milvus"

// CollectionName matches the collection the benchmark uploads into.
const CollectionName = "benchmark"

const (
	defaultAddress = "localhost:19530"
	idField        = "id"
	vectorField    = "vector"

	// defaultRecoveryPollInterval is the fixed sleep between index-progress
	// and compaction probes when the spec carries no interval. The recovery
	// wait itself is unbounded by design.
	defaultRecoveryPollInterval = 10 * time.Second
	// loadWaitTimeout bounds EnsureLoaded, which unlike recovery has a
	// caller that can proceed optimistically.
	loadWaitTimeout = 10 * time.Minute
)

func init() {
	backend.Register(Name, New)
}

// conn is the shared connection all capabilities of one set use. Close is
// idempotent; re-connect goes through connect.
type conn struct {
	mu      sync.Mutex
	cli     *milvusclient.Client
	address string
	dim     int
}

func (c *conn) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli != nil {
		return nil
	}
	cli, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: c.address})
	if err != nil {
		return fmt.Errorf("milvus: connect %s: %w", c.address, err)
	}
	c.cli = cli
	return nil
}

func (c *conn) client(ctx context.Context) (*milvusclient.Client, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cli, nil
}

// close disconnects. Safe to call repeatedly and on a never-connected conn.
func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli == nil {
		return nil
	}
	err := c.cli.Close(context.Background())
	c.cli = nil
	return err
}

// New builds the Milvus capability set from experiment parameters.
func New(ctx context.Context, spec backend.Spec) (*backend.Set, error) {
	address := spec.ConnectionParams.GetString("address", defaultAddress)
	c := &conn{address: address}

	set := &backend.Set{
		Configurator: &configurator{conn: c, collection: spec.CollectionParams},
		Uploader: &uploader{
			conn:         c,
			params:       spec.UploadParams,
			pollInterval: spec.RecoveryPollInterval,
		},
	}
	for _, sp := range spec.SearchParams {
		set.Searchers = append(set.Searchers, &searcher{conn: c, params: sp})
	}
	return set, nil
}

type configurator struct {
	conn       *conn
	collection backend.Params
}

// Configure drops any previous benchmark collection and recreates it with
// an HNSW index sized from collection params. Cheap and re-runnable.
func (c *configurator) Configure(ctx context.Context, ds dataset.Config) error {
	cli, err := c.conn.client(ctx)
	if err != nil {
		return err
	}
	c.conn.dim = ds.VectorSize

	has, err := cli.HasCollection(ctx, milvusclient.NewHasCollectionOption(CollectionName))
	if err != nil {
		return fmt.Errorf("milvus: has collection: %w", err)
	}
	if has {
		if err := cli.DropCollection(ctx, milvusclient.NewDropCollectionOption(CollectionName)); err != nil {
			return fmt.Errorf("milvus: drop collection: %w", err)
		}
	}

	schema := entity.NewSchema().WithName(CollectionName).
		WithField(entity.NewField().WithName(idField).WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(vectorField).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(ds.VectorSize)))
	if err := cli.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(CollectionName, schema)); err != nil {
		return fmt.Errorf("milvus: create collection: %w", err)
	}

	idx := hnswIndex(ds.Distance, c.collection)
	task, err := cli.CreateIndex(ctx, milvusclient.NewCreateIndexOption(CollectionName, vectorField, idx))
	if err != nil {
		return fmt.Errorf("milvus: create index: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("milvus: await index: %w", err)
	}
	return nil
}

func (c *configurator) ExecutionParams(distance string, _ int) backend.Params {
	// Milvus computes cosine natively; no client-side normalization.
	return backend.Params{"normalize": false}
}

func (c *configurator) CollectionParams() backend.Params { return c.collection }
func (c *configurator) Close() error                     { return c.conn.close() }

func hnswIndex(distance string, params backend.Params) index.Index {
	return index.NewHNSWIndex(metricType(distance),
		params.GetInt("m", 16), params.GetInt("ef_construction", 128))
}

func metricType(distance string) entity.MetricType {
	switch distance {
	case dataset.DistanceL2:
		return entity.L2
	case dataset.DistanceDot:
		return entity.IP
	default:
		return entity.COSINE
	}
}
