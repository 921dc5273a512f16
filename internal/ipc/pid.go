// Package ipc coordinates the long-running watcher with offline admin
// commands through a PID file kept next to the job file.
package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const PIDFileName = ".shuttlewatch.pid"

// AlreadyRunningError reports a live watcher holding the PID file.
type AlreadyRunningError struct {
	PID  int
	Path string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("shuttlewatch is already running (pid %d, %s)", e.PID, e.Path)
}

// WritePID writes pid to the PID file in dir.
func WritePID(dir string, pid int) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(GetPIDPath(dir), []byte(fmt.Sprintf("%d\n", pid)), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// ReadPID reads the PID file in dir.
func ReadPID(dir string) (int, error) {
	data, err := os.ReadFile(GetPIDPath(dir))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed PID file: %w", err)
	}
	return pid, nil
}

// IsRunning reports whether a process with pid exists.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 only checks existence.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Running returns the PID of a live watcher using dir, or 0.
func Running(dir string) int {
	pid, err := ReadPID(dir)
	if err != nil || pid == os.Getpid() || !IsRunning(pid) {
		return 0
	}
	return pid
}

// Acquire writes the current PID unless another live process holds dir. A
// stale PID file is overwritten.
func Acquire(dir string) error {
	if pid := Running(dir); pid != 0 {
		return &AlreadyRunningError{PID: pid, Path: GetPIDPath(dir)}
	}
	return WritePID(dir, os.Getpid())
}

// GetPIDPath returns the PID file path in dir.
func GetPIDPath(dir string) string {
	return filepath.Join(dir, PIDFileName)
}

// Cleanup removes the PID file if it still names this process.
func Cleanup(dir string) error {
	if pid, err := ReadPID(dir); err == nil && pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(GetPIDPath(dir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
