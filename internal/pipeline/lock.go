package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	runLockDirName   = ".run.lock"
	runLockOwnerFile = "owner.json"
)

// ErrLocked is returned when another batch holds the destination root.
var ErrLocked = errors.New("destination is locked by another run")

// RunLock keeps two batches from writing into the same destination root.
type RunLock struct {
	lockDir string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireRunLock creates the lock directory under root. The lock is a
// directory because Mkdir is atomic on every filesystem we write to.
func AcquireRunLock(root string) (RunLock, error) {
	target := strings.TrimSpace(root)
	if target == "" {
		return RunLock{}, errors.New("lock root is required")
	}

	lockDir := filepath.Join(target, runLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			var owner runLockOwner
			if readErr := readOwner(filepath.Join(lockDir, runLockOwnerFile), &owner); readErr == nil && owner.PID > 0 {
				return RunLock{}, fmt.Errorf("%w: %s (pid=%d created_at=%s host=%s); remove %s if that run is gone",
					ErrLocked, target, owner.PID, owner.CreatedAt, owner.Hostname, lockDir)
			}
			return RunLock{}, fmt.Errorf("%w: %s", ErrLocked, target)
		}
		return RunLock{}, fmt.Errorf("acquire run lock for %s: %w", target, err)
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := writeOwner(filepath.Join(lockDir, runLockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(lockDir)
		return RunLock{}, fmt.Errorf("write run lock owner for %s: %w", target, err)
	}
	return RunLock{lockDir: lockDir}, nil
}

// Release removes the lock. Releasing the zero RunLock is a no-op.
func (l RunLock) Release() error {
	if l.lockDir == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, runLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock %s: %w", l.lockDir, err)
	}
	return nil
}

func readOwner(path string, owner *runLockOwner) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, owner)
}

func writeOwner(path string, owner runLockOwner) error {
	data, err := json.MarshalIndent(owner, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
