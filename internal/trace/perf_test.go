package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const perfScriptSample = `
         milvus  736818 [017] 12241.973464:          1 major-faults:  ffff9aa7c0 filemap_fault
         milvus  736818 [017] 12241.984210:          1 major-faults:  ffff9aa7c0 filemap_fault
  kworker/17:1H     521 [017] 12242.001009: block:block_rq_issue: 259,0 R 0 () 7043088 + 8 bytes=4096 [kworker/17:1H]
        swapper       0 [003] 12242.010000:   cpu-clock: irrelevant sampler line
garbage line that matches nothing
`

func TestParsePerfScript(t *testing.T) {
	events, err := ParsePerfScript(strings.NewReader(perfScriptSample))
	require.NoError(t, err)
	require.Len(t, events, 3, "unrelated events and garbage are dropped")

	assert.Equal(t, Event{Time: 12241.973464, Comm: "milvus", PID: 736818, Kind: EventMajorFault}, events[0])
	assert.Equal(t, EventMajorFault, events[1].Kind)

	io := events[2]
	assert.Equal(t, EventDiskIO, io.Kind)
	assert.Equal(t, "kworker/17:1H", io.Comm)
	assert.Equal(t, 521, io.PID)
	assert.Equal(t, int64(4096), io.Bytes)
}

func TestParsePerfScript_MissingBytes(t *testing.T) {
	line := "  dd  99 [000] 1.500000: block:block_rq_issue: 259,0 W 0 () 100 + 8 [dd]\n"
	events, err := ParsePerfScript(strings.NewReader(line))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(0), events[0].Bytes, "size detail is optional")
}

func TestParsePerfScript_Empty(t *testing.T) {
	events, err := ParsePerfScript(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPerfTracer_ConvertMissingData(t *testing.T) {
	err := convertPerfData("/no/such/file.data", "/tmp/out.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perf data file not found")
}
