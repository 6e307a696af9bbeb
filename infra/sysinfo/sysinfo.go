// Package sysinfo reports host resources for status messages.
package sysinfo

import (
	"github.com/shirou/gopsutil/v4/mem"
)

var virtualMemory = mem.VirtualMemory

// FreeMemory returns the memory available to new allocations in bytes, or 0
// when the platform cannot report it.
func FreeMemory() uint64 {
	vm, err := virtualMemory()
	if err != nil || vm == nil {
		return 0
	}
	return vm.Available
}
