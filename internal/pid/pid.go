// Package pid guards against concurrent daemon instances with a PID
// file. One vitalsd per host is enough: sampling loops already
// deduplicate per metric, a second daemon would only double the probe
// load.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/tyrven/vitalsd/internal/errors"
)

const fileName = "vitalsd.pid"

func path() string {
	return filepath.Join(os.TempDir(), fileName)
}

// Write claims the PID file for the current process. A file left behind
// by a dead process is overwritten; a live owner makes Write fail with
// ErrAlreadyRunning carrying the owner's PID.
func Write() error {
	errFactory := errors.New()

	if owner, err := livingOwner(); err != nil {
		return err
	} else if owner != 0 {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			PID int
		}{PID: owner})
	}

	if err := os.WriteFile(path(), []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove releases the PID file. Missing files are fine; the daemon may
// never have claimed one.
func Remove() error {
	if err := os.Remove(path()); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

// livingOwner returns the PID recorded in the file if that process is
// still alive, and 0 for a missing, unreadable-as-number or stale file.
func livingOwner() (int, error) {
	data, err := os.ReadFile(path())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, errors.New().Wrap(errors.ErrInternal, err)
	}

	owner, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || owner <= 0 {
		// Garbage in the file means no live owner
		return 0, nil
	}

	process, err := os.FindProcess(owner)
	if err != nil {
		return 0, nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, nil
	}

	return owner, nil
}
