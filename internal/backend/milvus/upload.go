package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
	"github.com/Jangseon-park/vector-db-benchmark/internal/poll"
)

type uploader struct {
	conn   *conn
	params backend.Params
	// pollInterval paces recovery and load-state probes; zero falls back
	// to the package default.
	pollInterval time.Duration
}

func (u *uploader) interval() time.Duration {
	if u.pollInterval > 0 {
		return u.pollInterval
	}
	return defaultRecoveryPollInterval
}

// Upload inserts records in batches, flushes, and loads the collection so
// searches see the data.
func (u *uploader) Upload(ctx context.Context, _ string, records dataset.RecordIterator) (backend.Stats, error) {
	cli, err := u.conn.client(ctx)
	if err != nil {
		return nil, err
	}

	batchSize := u.params.GetInt("batch_size", 64)
	start := time.Now()
	var latencies []float64
	count := 0

	ids := make([]int64, 0, batchSize)
	vectors := make([][]float32, 0, batchSize)
	flushBatch := func() error {
		if len(ids) == 0 {
			return nil
		}
		t0 := time.Now()
		_, err := cli.Insert(ctx, milvusclient.NewColumnBasedInsertOption(CollectionName,
			column.NewColumnInt64(idField, ids),
			column.NewColumnFloatVector(vectorField, u.conn.dim, vectors)))
		if err != nil {
			return fmt.Errorf("milvus: insert batch: %w", err)
		}
		latencies = append(latencies, time.Since(t0).Seconds())
		count += len(ids)
		ids = ids[:0]
		vectors = vectors[:0]
		return nil
	}

	for records.Next() {
		rec := records.Record()
		ids = append(ids, rec.ID)
		vectors = append(vectors, rec.Vector)
		if len(ids) >= batchSize {
			if err := flushBatch(); err != nil {
				return nil, err
			}
		}
	}
	if err := records.Err(); err != nil {
		return nil, err
	}
	if err := flushBatch(); err != nil {
		return nil, err
	}

	flushTask, err := cli.Flush(ctx, milvusclient.NewFlushOption(CollectionName))
	if err != nil {
		return nil, fmt.Errorf("milvus: flush: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("milvus: await flush: %w", err)
	}

	loadTask, err := cli.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(CollectionName))
	if err != nil {
		return nil, fmt.Errorf("milvus: load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("milvus: await load: %w", err)
	}

	return backend.Stats{
		"total_time":          time.Since(start).Seconds(),
		"count":               count,
		backend.StatLatencies: latencies,
	}, nil
}

func (u *uploader) UploadParams() backend.Params { return u.params }
func (u *uploader) Close() error                 { return u.conn.close() }

// InitClient re-establishes the connection. The runner calls it best-effort
// before EnsureLoaded after a server restart.
func (u *uploader) InitClient(ctx context.Context) error {
	_ = u.conn.close()
	return u.conn.connect(ctx)
}

// EnsureLoaded blocks until the benchmark collection is queryable again,
// issuing a load if necessary. Bounded, unlike the recovery wait, because
// the caller proceeds optimistically when it fails.
func (u *uploader) EnsureLoaded(ctx context.Context) error {
	cli, err := u.conn.client(ctx)
	if err != nil {
		return err
	}
	has, err := cli.HasCollection(ctx, milvusclient.NewHasCollectionOption(CollectionName))
	if err != nil {
		return fmt.Errorf("milvus: has collection: %w", err)
	}
	if !has {
		return fmt.Errorf("milvus: collection %s not found", CollectionName)
	}

	loadTask, err := cli.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(CollectionName))
	if err != nil {
		return fmt.Errorf("milvus: load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("milvus: await load: %w", err)
	}

	return poll.Until(ctx, u.interval(), loadWaitTimeout, func(ctx context.Context) (bool, error) {
		state, err := cli.GetLoadState(ctx, milvusclient.NewGetLoadStateOption(CollectionName))
		if err != nil {
			return false, fmt.Errorf("milvus: load state: %w", err)
		}
		return state.State == entity.LoadStateLoaded, nil
	})
}

// WaitForRecovery flushes pending writes, then waits out background index
// rebuild and compaction after a restart with reused volumes. The wait is
// unbounded: an operator-visible but deliberate parity with the engine's
// own recovery pacing.
func (u *uploader) WaitForRecovery(ctx context.Context) error {
	cli, err := u.conn.client(ctx)
	if err != nil {
		return err
	}

	has, err := cli.HasCollection(ctx, milvusclient.NewHasCollectionOption(CollectionName))
	if err != nil {
		return fmt.Errorf("milvus: has collection: %w", err)
	}
	if !has {
		// Nothing uploaded yet; nothing to recover.
		return nil
	}

	flushTask, err := cli.Flush(ctx, milvusclient.NewFlushOption(CollectionName))
	if err != nil {
		return fmt.Errorf("milvus: flush: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("milvus: await flush: %w", err)
	}

	// Index rebuild: poll until every row is indexed.
	err = poll.Until(ctx, u.interval(), 0, func(ctx context.Context) (bool, error) {
		desc, err := cli.DescribeIndex(ctx, milvusclient.NewDescribeIndexOption(CollectionName, vectorField))
		if err != nil {
			return false, fmt.Errorf("milvus: describe index: %w", err)
		}
		return desc.TotalRows == desc.IndexedRows, nil
	})
	if err != nil {
		return err
	}

	// Compaction: trigger one and poll its state to completion.
	compactionID, err := cli.Compact(ctx, milvusclient.NewCompactOption(CollectionName))
	if err != nil {
		return fmt.Errorf("milvus: compact: %w", err)
	}
	return poll.Until(ctx, u.interval(), 0, func(ctx context.Context) (bool, error) {
		state, err := cli.GetCompactionState(ctx, milvusclient.NewGetCompactionStateOption(compactionID))
		if err != nil {
			return false, fmt.Errorf("milvus: compaction state: %w", err)
		}
		return state == entity.CompactionStateCompleted, nil
	})
}
