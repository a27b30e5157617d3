package preflight

import (
	"context"
	"fmt"
)

// dropCachesPath is the kernel interface the cold-cache protocol writes to.
const dropCachesPath = "/proc/sys/vm/drop_caches"

// CheckDocker verifies the docker client binary is installed.
func (c *Checker) CheckDocker(_ context.Context) CheckResult {
	result := CheckResult{Name: "docker", Required: true}

	path, err := c.lookPath("docker")
	if err != nil {
		result.Status = StatusFail
		result.Message = "docker binary not found in PATH"
		result.Details = "Install Docker Engine; the server lifecycle runs through docker compose"
		return result
	}
	result.Status = StatusPass
	result.Message = path
	return result
}

// CheckCompose verifies the compose plugin responds. Compose v1 standalone
// binaries are not supported; the lifecycle manager invokes "docker compose".
func (c *Checker) CheckCompose(ctx context.Context) CheckResult {
	result := CheckResult{Name: "docker_compose", Required: true}

	if _, err := c.lookPath("docker"); err != nil {
		result.Status = StatusFail
		result.Message = "docker binary not found in PATH"
		return result
	}
	if err := c.runCommand(ctx, "docker", "compose", "version"); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("docker compose plugin not available: %v", err)
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckSudo verifies sudo exists. Container management, cache drops and perf
// all run under it.
func (c *Checker) CheckSudo() CheckResult {
	result := CheckResult{Name: "sudo", Required: true}

	path, err := c.lookPath("sudo")
	if err != nil {
		result.Status = StatusFail
		result.Message = "sudo not found in PATH"
		return result
	}
	result.Status = StatusPass
	result.Message = path
	return result
}

// CheckPerf verifies perf is installed. Non-critical: runs using the probe
// tracer or no tracer at all do not need it.
func (c *Checker) CheckPerf() CheckResult {
	result := CheckResult{Name: "perf", Required: false}

	path, err := c.lookPath("perf")
	if err != nil {
		result.Status = StatusWarn
		result.Message = "perf not found in PATH"
		result.Details = "Install linux-tools for kernel event tracing; only the probe tracer works without it"
		return result
	}
	result.Status = StatusPass
	result.Message = path
	return result
}

// CheckDropCaches verifies the page cache drop interface exists. Without it
// every measurement runs warm.
func (c *Checker) CheckDropCaches() CheckResult {
	result := CheckResult{Name: "drop_caches", Required: false}

	if err := c.statPath(dropCachesPath); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not accessible: %v", dropCachesPath, err)
		result.Details = "Cold-cache measurements need a Linux kernel with /proc/sys/vm/drop_caches"
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}
