package engine_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hvborda/lineas/pkg/engine"
	"github.com/hvborda/lineas/pkg/extract"
	"github.com/hvborda/lineas/pkg/output"
	"github.com/hvborda/lineas/pkg/progress"
)

var _ = Describe("Orchestrator", func() {
	var (
		dir    string
		config *engine.Config
		ids    []string
	)

	const stubborn = "20100000007"

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		config = &engine.Config{
			WorkerCount:     3,
			Retry:           fastRetry(2),
			MinTaskDelay:    0,
			MaxTaskDelay:    time.Millisecond,
			CheckpointEvery: 3,
			ShutdownGrace:   time.Second,
			Logger:          quietLogger(),
		}

		ids = nil
		for i := 0; i < 10; i++ {
			ids = append(ids, fmt.Sprintf("2010000000%d", i))
		}
	})

	newOrchestrator := func(ext extract.Extractor) (*engine.Orchestrator, *progress.Store, *output.Writer) {
		store := progress.NewStore(filepath.Join(dir, "progress.json"), config.Logger)
		writer, err := output.NewWriter(dir, "empresas", 4, config.Logger)
		Expect(err).NotTo(HaveOccurred())

		orch, err := engine.NewOrchestrator(config, newLeaseManager(), ext, store, writer)
		Expect(err).NotTo(HaveOccurred())
		return orch, store, writer
	}

	// oneStubborn succeeds for every id except the stubborn one, which
	// times out on every attempt.
	oneStubborn := func() *fakeExtractor {
		return newFakeExtractor(func(ruc string, call int) ([]extract.Record, error) {
			if ruc == stubborn {
				return nil, extract.NewError(extract.KindTimeout, "grid wait expired", nil)
			}
			return []extract.Record{
				{Modality: "POSPAGO", Number: "987654321", Operator: "ENTEL PERU S.A."},
				{Modality: "PREPAGO", Number: "912345678", Operator: "BITEL"},
			}, nil
		})
	}

	It("drives every id to exactly one terminal outcome", func() {
		ext := oneStubborn()
		orch, store, _ := newOrchestrator(ext)

		stats, err := orch.Run(context.Background(), ids)
		Expect(err).NotTo(HaveOccurred())

		Expect(stats.TotalRUCs).To(Equal(10))
		Expect(stats.Processed).To(Equal(10))
		Expect(stats.Successful).To(Equal(9))
		Expect(stats.Failed).To(Equal(1))
		Expect(stats.TotalLines).To(Equal(18))
		Expect(stats.TotalRetries).To(Equal(1))
		Expect(stats.ErrorsByKind).To(HaveKeyWithValue("timeout", 1))
		Expect(stats.StartTime).NotTo(BeNil())
		Expect(stats.EndTime).NotTo(BeNil())

		for _, id := range ids {
			want := 1
			if id == stubborn {
				want = 2
			}
			Expect(ext.callCount(id)).To(Equal(want), "id %s", id)
		}

		failed := store.Failed()
		Expect(failed).To(HaveLen(1))
		Expect(failed[stubborn].ErrorKind).To(Equal("timeout"))
		Expect(failed[stubborn].Attempts).To(Equal(2))
	})

	It("writes every durable artifact on the way out", func() {
		orch, _, _ := newOrchestrator(oneStubborn())

		_, err := orch.Run(context.Background(), ids)
		Expect(err).NotTo(HaveOccurred())

		Expect(filepath.Join(dir, "progress.json")).To(BeAnExistingFile())
		Expect(filepath.Join(dir, "statistics.json")).To(BeAnExistingFile())
		Expect(filepath.Join(dir, "failed_rucs.csv")).To(BeAnExistingFile())
		Expect(filepath.Join(dir, "save", "empresas_4_parte1.csv")).To(BeAnExistingFile())
		Expect(filepath.Join(dir, "save", "empresas_timing_report.json")).To(BeAnExistingFile())

		f, err := os.Open(filepath.Join(dir, "resultados.csv"))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(10), "header plus one row per success")
	})

	It("does nothing on a rerun once every id is processed", func() {
		orch, _, _ := newOrchestrator(oneStubborn())
		_, err := orch.Run(context.Background(), ids)
		Expect(err).NotTo(HaveOccurred())

		second := oneStubborn()
		rerun, _, _ := newOrchestrator(second)
		stats, err := rerun.Run(context.Background(), ids)
		Expect(err).NotTo(HaveOccurred())

		Expect(stats.Processed).To(Equal(10))
		for _, id := range ids {
			Expect(second.callCount(id)).To(BeZero(), "id %s reprocessed", id)
		}
	})

	It("processes only the remainder when resuming a partial run", func() {
		store := progress.NewStore(filepath.Join(dir, "progress.json"), config.Logger)
		for _, id := range ids[:6] {
			store.Record(progress.Outcome{RUC: id, Success: true, LineCount: 2, Attempts: 1})
		}
		Expect(store.Save()).To(Succeed())

		ext := oneStubborn()
		orch, _, _ := newOrchestrator(ext)
		stats, err := orch.Run(context.Background(), ids)
		Expect(err).NotTo(HaveOccurred())

		Expect(stats.Processed).To(Equal(10))
		for _, id := range ids[:6] {
			Expect(ext.callCount(id)).To(BeZero(), "id %s reprocessed", id)
		}
		for _, id := range ids[6:] {
			Expect(ext.callCount(id)).NotTo(BeZero(), "id %s skipped", id)
		}
	})

	It("rejects an empty id list", func() {
		orch, _, _ := newOrchestrator(oneStubborn())
		_, err := orch.Run(context.Background(), nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects incomplete wiring", func() {
		store := progress.NewStore(filepath.Join(dir, "progress.json"), config.Logger)
		writer, err := output.NewWriter(dir, "empresas", 4, config.Logger)
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.NewOrchestrator(config, nil, oneStubborn(), store, writer)
		Expect(err).To(HaveOccurred())
		_, err = engine.NewOrchestrator(config, newLeaseManager(), nil, store, writer)
		Expect(err).To(HaveOccurred())
	})
})
