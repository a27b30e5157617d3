package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

const dropCachesPath = "/proc/sys/vm/drop_caches"

// DropPageCache flushes dirty pages and evicts the kernel page cache so the
// next search configuration measures cold-cache behavior. Running as root it
// writes the sysctl file directly; otherwise it escalates through sudo.
// Callers treat failure as non-fatal and log it.
func DropPageCache(ctx context.Context) error {
	if err := exec.CommandContext(ctx, "sync").Run(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if os.Geteuid() == 0 {
		if err := os.WriteFile(dropCachesPath, []byte("3\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dropCachesPath, err)
		}
		return nil
	}
	cmd := exec.CommandContext(ctx, "sudo", "sh", "-c", "echo 3 > "+dropCachesPath)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("drop caches via sudo: %w", err)
	}
	return nil
}
