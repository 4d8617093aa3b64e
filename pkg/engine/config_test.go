package engine_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hvborda/lineas/pkg/engine"
)

var _ = Describe("Config", func() {
	valid := func() *engine.Config {
		return &engine.Config{
			WorkerCount:     4,
			Retry:           engine.DefaultRetryPolicy(),
			MinTaskDelay:    time.Second,
			MaxTaskDelay:    2 * time.Second,
			CheckpointEvery: 25,
			ShutdownGrace:   15 * time.Second,
		}
	}

	It("accepts a sane configuration", func() {
		Expect(valid().Validate()).To(Succeed())
	})

	It("rejects a non-positive worker count", func() {
		cfg := valid()
		cfg.WorkerCount = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects an empty attempt budget", func() {
		cfg := valid()
		cfg.Retry.MaxAttempts = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects a max delay below the base delay", func() {
		cfg := valid()
		cfg.Retry.MaxDelay = cfg.Retry.BaseDelay - time.Second
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects an inverted task delay range", func() {
		cfg := valid()
		cfg.MinTaskDelay = 3 * time.Second
		cfg.MaxTaskDelay = time.Second
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects a non-positive checkpoint cadence", func() {
		cfg := valid()
		cfg.CheckpointEvery = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})
