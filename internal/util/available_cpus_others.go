// Count available CPUs based on affinity

//go:build !linux

package sihd_util

import (
	"runtime"
)

func GetAvailableCPUCount() int {
	return runtime.NumCPU()
}
