package sysinfo

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/stretchr/testify/assert"
)

func TestFreeMemory(t *testing.T) {
	prev := virtualMemory
	defer func() { virtualMemory = prev }()

	virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 1024, Available: 256}, nil
	}
	assert.Equal(t, uint64(256), FreeMemory())

	virtualMemory = func() (*mem.VirtualMemoryStat, error) { return nil, errors.New("unsupported") }
	assert.Zero(t, FreeMemory())
}
