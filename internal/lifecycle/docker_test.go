package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
)

// fakeLister scripts successive ContainerList responses; the last response
// repeats once the script runs out.
type fakeLister struct {
	responses []int
	calls     int
	err       error
}

func (f *fakeLister) ContainerList(context.Context, container.ListOptions) ([]types.Container, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return make([]types.Container, f.responses[idx]), nil
}

type execCall struct {
	dir  string
	args string
}

func testManager(t *testing.T, lister *fakeLister) (*Manager, *[]execCall, string) {
	t.Helper()
	root := t.TempDir()
	m, err := NewManager(ManagerConfig{
		ServersRoot:   root,
		EngineDir:     "milvus-single-node",
		ContainerName: "milvus-standalone",
		Docker:        lister,
		StartTimeout:  50 * time.Millisecond,
		StopTimeout:   50 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		SettleDelay:   time.Millisecond,
		Out:           output.Discard(),
	})
	require.NoError(t, err)

	var calls []execCall
	m.SetRunCommand(func(_ context.Context, dir string, name string, args ...string) error {
		calls = append(calls, execCall{dir: dir, args: name + " " + strings.Join(args, " ")})
		return nil
	})
	return m, &calls, root
}

func TestStart_FreshVolumes(t *testing.T) {
	m, calls, _ := testManager(t, &fakeLister{responses: []int{1}})

	existed, err := m.Start(context.Background(), "4gb", false)
	require.NoError(t, err)
	assert.False(t, existed, "no volumes directory before the start")

	require.Len(t, *calls, 1)
	assert.Equal(t, "sudo docker compose up -d", (*calls)[0].args)
	assert.True(t, strings.HasSuffix((*calls)[0].dir, filepath.Join("milvus-single-node", "4gb")))
}

func TestStart_ReusedVolumes(t *testing.T) {
	m, _, root := testManager(t, &fakeLister{responses: []int{1}})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "milvus-single-node", "8gb", "volumes"), 0o755))

	existed, err := m.Start(context.Background(), "8gb", false)
	require.NoError(t, err)
	assert.True(t, existed)
}

func TestStart_CleanWipesVolumes(t *testing.T) {
	m, calls, root := testManager(t, &fakeLister{responses: []int{1}})
	volumes := filepath.Join(root, "milvus-single-node", "4gb", "volumes")
	require.NoError(t, os.MkdirAll(volumes, 0o755))

	existed, err := m.Start(context.Background(), "4gb", true)
	require.NoError(t, err)
	assert.False(t, existed, "wiped volumes are not reused")

	require.Len(t, *calls, 2)
	assert.Equal(t, fmt.Sprintf("sudo rm -rf %s", volumes), (*calls)[0].args)
	assert.Equal(t, "sudo docker compose up -d", (*calls)[1].args)
}

func TestStart_NeverRunning(t *testing.T) {
	m, _, _ := testManager(t, &fakeLister{responses: []int{0}})

	_, err := m.Start(context.Background(), "4gb", false)
	assert.ErrorIs(t, err, ErrContainerNotRunning)
}

func TestStart_RunningAfterRetries(t *testing.T) {
	lister := &fakeLister{responses: []int{0, 0, 1}}
	m, _, _ := testManager(t, lister)

	_, err := m.Start(context.Background(), "4gb", false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lister.calls, 3)
}

func TestStart_ComposeFailure(t *testing.T) {
	m, _, _ := testManager(t, &fakeLister{responses: []int{1}})
	m.SetRunCommand(func(context.Context, string, string, ...string) error {
		return errors.New("compose exploded")
	})

	_, err := m.Start(context.Background(), "4gb", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start containers")
}

func TestStop_Clean(t *testing.T) {
	m, calls, _ := testManager(t, &fakeLister{responses: []int{0}})

	require.NoError(t, m.Stop(context.Background(), "4gb"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "sudo docker compose down -v", (*calls)[0].args)
}

func TestStop_LingeringContainerIsWarning(t *testing.T) {
	m, _, _ := testManager(t, &fakeLister{responses: []int{1}})

	err := m.Stop(context.Background(), "4gb")
	assert.NoError(t, err, "a lingering container must not fail the stop")
}

func TestRemoveVolumes(t *testing.T) {
	m, calls, root := testManager(t, &fakeLister{responses: []int{0}})
	volumes := filepath.Join(root, "milvus-single-node", "4gb", "volumes")
	require.NoError(t, os.MkdirAll(volumes, 0o755))

	require.NoError(t, m.RemoveVolumes(context.Background(), "4gb"))
	require.Len(t, *calls, 1)
	assert.Equal(t, fmt.Sprintf("sudo rm -rf %s", volumes), (*calls)[0].args)
}

func TestRemoveVolumes_AbsentIsNoop(t *testing.T) {
	m, calls, _ := testManager(t, &fakeLister{responses: []int{0}})

	require.NoError(t, m.RemoveVolumes(context.Background(), "4gb"))
	assert.Empty(t, *calls)
}

func TestRemoveVolumes_FailureIsFatal(t *testing.T) {
	m, _, root := testManager(t, &fakeLister{responses: []int{0}})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "milvus-single-node", "4gb", "volumes"), 0o755))
	m.SetRunCommand(func(context.Context, string, string, ...string) error {
		return errors.New("rm failed")
	})

	err := m.RemoveVolumes(context.Background(), "4gb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remove volumes")
}

// recoveringUploader implements the optional recovery capability.
type recoveringUploader struct {
	waits int
	err   error
}

func (u *recoveringUploader) Upload(context.Context, string, dataset.RecordIterator) (backend.Stats, error) {
	return nil, nil
}
func (u *recoveringUploader) UploadParams() backend.Params { return nil }
func (u *recoveringUploader) Close() error                 { return nil }
func (u *recoveringUploader) WaitForRecovery(ctx context.Context) error {
	u.waits++
	return u.err
}

type plainUploader struct{}

func (plainUploader) Upload(context.Context, string, dataset.RecordIterator) (backend.Stats, error) {
	return nil, nil
}
func (plainUploader) UploadParams() backend.Params { return nil }
func (plainUploader) Close() error                 { return nil }

func TestWaitForRecovery(t *testing.T) {
	m, _, _ := testManager(t, &fakeLister{responses: []int{0}})

	up := &recoveringUploader{}
	m.WaitForRecovery(context.Background(), up)
	assert.Equal(t, 1, up.waits)

	// Failures never propagate.
	up = &recoveringUploader{err: errors.New("connect refused")}
	m.WaitForRecovery(context.Background(), up)
	assert.Equal(t, 1, up.waits)

	// Backends without the capability are already queryable.
	m.WaitForRecovery(context.Background(), plainUploader{})
}
