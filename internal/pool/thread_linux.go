//go:build linux

package pool

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxThreadName is the kernel's TASK_COMM_LEN minus the terminating NUL.
const maxThreadName = 15

// pinThread binds the calling OS thread to cpu modulo the CPU count. The
// caller must hold runtime.LockOSThread.
func pinThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu % runtime.NumCPU())
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}

// nameThread sets the calling OS thread's name as shown by ps and top.
func nameThread(name string) error {
	if len(name) > maxThreadName {
		name = name[:maxThreadName]
	}
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0)
}
