// Package sysinfo derives initial tuning numbers from the machine the
// scraper runs on. Proxy bandwidth, not CPU, is the real bottleneck, so
// the numbers here are starting points the operator can override.
package sysinfo

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// Hard bounds on auto-detected worker counts.
const (
	MinWorkers = 2
	MaxWorkers = 20
)

// Tuning is the set of auto-derived run parameters.
type Tuning struct {
	// Workers is the recommended worker pool size
	Workers int
	// MinTaskDelay is the lower bound of the inter-task delay range
	MinTaskDelay time.Duration
	// MaxTaskDelay is the upper bound of the inter-task delay range
	MaxTaskDelay time.Duration
	// LogicalCPUs and AvailableRAMGB record what was probed
	LogicalCPUs    int
	AvailableRAMGB float64
}

// Detect probes CPU and memory and derives a Tuning. Probe failures fall
// back to conservative defaults instead of failing the run.
func Detect(logger *logrus.Logger) Tuning {
	if logger == nil {
		logger = logrus.New()
	}

	cpus, err := cpu.Counts(true)
	if err != nil || cpus < 1 {
		logger.WithError(err).Warn("Could not detect CPU count, assuming 4")
		cpus = 4
	}

	ramGB := 4.0
	if vm, err := mem.VirtualMemory(); err == nil {
		ramGB = float64(vm.Available) / (1 << 30)
	} else {
		logger.WithError(err).Warn("Could not detect available memory, assuming 4 GB")
	}

	workers := 2 * cpus
	if byRAM := int(ramGB * 2); byRAM < workers {
		workers = byRAM
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if workers < MinWorkers {
		workers = MinWorkers
	}

	t := Tuning{
		Workers:        workers,
		LogicalCPUs:    cpus,
		AvailableRAMGB: ramGB,
	}

	// More workers already spread the request cadence, so the per-worker
	// delay range tightens as the pool grows.
	switch {
	case workers >= 12:
		t.MinTaskDelay, t.MaxTaskDelay = 1*time.Second, 2*time.Second
	case workers >= 6:
		t.MinTaskDelay, t.MaxTaskDelay = 1500*time.Millisecond, 3*time.Second
	default:
		t.MinTaskDelay, t.MaxTaskDelay = 2*time.Second, 4*time.Second
	}

	logger.WithFields(logrus.Fields{
		"cpus":    cpus,
		"ram_gb":  ramGB,
		"workers": workers,
	}).Info("System resources detected")

	return t
}
