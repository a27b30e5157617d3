package preflight

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	assert.True(t, CheckResult{Required: true, Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Required: false, Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Required: true, Status: StatusWarn}.IsCritical())
	assert.False(t, CheckResult{Required: true, Status: StatusPass}.IsCritical())
}

// stubbedChecker returns a Checker whose tool and file probes all succeed.
func stubbedChecker(opts ...Option) *Checker {
	c := New(opts...)
	c.lookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }
	c.runCommand = func(context.Context, string, ...string) error { return nil }
	c.statPath = func(string) error { return nil }
	c.readFile = func(string) ([]byte, error) {
		return []byte("MemTotal:       32000000 kB\nMemAvailable:   16000000 kB\n"), nil
	}
	return c
}

func TestCheckDocker(t *testing.T) {
	c := stubbedChecker()
	result := c.CheckDocker(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "/usr/bin/docker", result.Message)
	assert.True(t, result.Required)

	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	result = c.CheckDocker(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestCheckCompose(t *testing.T) {
	c := stubbedChecker()

	var gotName string
	var gotArgs []string
	c.runCommand = func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	}
	result := c.CheckCompose(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "docker", gotName)
	assert.Equal(t, []string{"compose", "version"}, gotArgs)

	c.runCommand = func(context.Context, string, ...string) error {
		return errors.New("unknown command")
	}
	result = c.CheckCompose(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "compose plugin not available")
}

func TestCheckPerf_MissingIsWarning(t *testing.T) {
	c := stubbedChecker()
	c.lookPath = func(file string) (string, error) {
		if file == "perf" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + file, nil
	}
	result := c.CheckPerf()
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.IsCritical(), "perf is optional")
}

func TestCheckDropCaches(t *testing.T) {
	c := stubbedChecker()

	var probed string
	c.statPath = func(name string) error {
		probed = name
		return nil
	}
	result := c.CheckDropCaches()
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "/proc/sys/vm/drop_caches", probed)

	c.statPath = func(string) error { return errors.New("no such file") }
	result = c.CheckDropCaches()
	assert.Equal(t, StatusWarn, result.Status)
}

func TestCheckMemory(t *testing.T) {
	c := stubbedChecker()
	result := c.CheckMemory()
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "available")

	c.readFile = func(string) ([]byte, error) {
		return []byte("MemAvailable:   500000 kB\n"), nil
	}
	result = c.CheckMemory()
	assert.Equal(t, StatusFail, result.Status)

	c.readFile = func(string) ([]byte, error) { return nil, errors.New("denied") }
	result = c.CheckMemory()
	assert.Equal(t, StatusFail, result.Status)
}

func TestParseMemAvailable(t *testing.T) {
	got, err := parseMemAvailable([]byte("MemTotal: 1 kB\nMemAvailable:  2048 kB\n"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2048*1024), got)

	_, err = parseMemAvailable([]byte("MemTotal: 1 kB\n"))
	assert.Error(t, err)

	_, err = parseMemAvailable([]byte("MemAvailable: lots kB\n"))
	assert.Error(t, err)
}

func TestCheckDiskSpace(t *testing.T) {
	c := stubbedChecker()
	result := c.CheckDiskSpace("/nonexistent/path/for/sure")
	assert.Equal(t, StatusFail, result.Status)

	result = c.CheckDiskSpace(t.TempDir())
	assert.Contains(t, result.Message, "free")
}

func TestCheckFileDescriptors(t *testing.T) {
	c := stubbedChecker()
	result := c.CheckFileDescriptors()
	assert.NotEqual(t, "", result.Message)
	assert.True(t, result.Required)
}

func TestRunAll(t *testing.T) {
	c := stubbedChecker()
	results := c.RunAll(context.Background(), t.TempDir())
	require.Len(t, results, 8)

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Contains(t, names, "docker")
	assert.Contains(t, names, "docker_compose")
	assert.Contains(t, names, "sudo")
	assert.Contains(t, names, "perf")
	assert.Contains(t, names, "drop_caches")
}

func TestSummaryStatus(t *testing.T) {
	c := New()
	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{"all pass", []CheckResult{{Status: StatusPass, Required: true}}, "ready"},
		{"warning", []CheckResult{{Status: StatusWarn}}, "ready_with_warnings"},
		{"optional failure", []CheckResult{{Status: StatusFail, Required: false}}, "ready_with_warnings"},
		{"critical failure", []CheckResult{{Status: StatusFail, Required: true}}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.SummaryStatus(tt.results))
		})
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	c := New(WithOutput(&buf), WithVerbose(true))

	c.PrintResults([]CheckResult{
		{Name: "docker", Status: StatusPass, Message: "/usr/bin/docker", Required: true},
		{Name: "perf", Status: StatusWarn, Message: "not found", Details: "install linux-tools"},
		{Name: "memory", Status: StatusFail, Message: "too small", Required: true},
	})

	out := buf.String()
	assert.Contains(t, out, "[PASS] docker")
	assert.Contains(t, out, "[WARN] perf")
	assert.Contains(t, out, "install linux-tools")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s):")
	assert.Contains(t, out, "1 warning(s):")
}

func TestHasCriticalFailures(t *testing.T) {
	c := New()
	assert.False(t, c.HasCriticalFailures([]CheckResult{{Status: StatusWarn, Required: true}}))
	assert.True(t, c.HasCriticalFailures([]CheckResult{{Status: StatusFail, Required: true}}))
}
