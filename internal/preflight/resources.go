package preflight

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
)

// Resource floors. Vector datasets and trace files are large; a host below
// these would fail mid-sweep rather than up front.
const (
	MinDiskSpaceBytes  = 10 * 1024 * 1024 * 1024
	MinMemoryBytes     = 2 * 1024 * 1024 * 1024
	MinFileDescriptors = 1024
)

// CheckDiskSpace checks free space at the given path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	available := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)",
		humanize.IBytes(available), humanize.IBytes(MinDiskSpaceBytes))
	if available < MinDiskSpaceBytes {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckMemory reads MemAvailable from /proc/meminfo.
func (c *Checker) CheckMemory() CheckResult {
	result := CheckResult{Name: "memory", Required: true}

	body, err := c.readFile("/proc/meminfo")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to read /proc/meminfo: %v", err)
		return result
	}
	available, err := parseMemAvailable(body)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Message = fmt.Sprintf("%s available (minimum: %s)",
		humanize.IBytes(available), humanize.IBytes(MinMemoryBytes))
	if available < MinMemoryBytes {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// parseMemAvailable extracts the MemAvailable value in bytes from
// /proc/meminfo content. The kernel reports it in kB.
func parseMemAvailable(meminfo []byte) (uint64, error) {
	sc := bufio.NewScanner(bytes.NewReader(meminfo))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed MemAvailable line: %q", line)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found in /proc/meminfo")
}

// CheckFileDescriptors checks the file descriptor soft limit. The server
// container, trace output and dataset files are all open at once during a
// measurement.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors", Required: true}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
		return result
	}
	result.Status = StatusPass
	return result
}
