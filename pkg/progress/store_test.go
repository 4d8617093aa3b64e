package progress_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/hvborda/lineas/pkg/progress"
)

var _ = Describe("Store", func() {
	var (
		path   string
		logger *logrus.Logger
		store  *progress.Store
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "progress.json")
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		store = progress.NewStore(path, logger)
	})

	success := func(ruc string, lines int) progress.Outcome {
		return progress.Outcome{RUC: ruc, Success: true, LineCount: lines, Attempts: 1}
	}

	Describe("Record", func() {
		It("updates the counters for successes and failures", func() {
			store.Record(success("20100047218", 5))
			store.Record(success("20600055519", 0))
			store.Record(progress.Outcome{
				RUC:          "10234567891",
				ErrorKind:    "timeout",
				ErrorMessage: "grid wait expired",
				Attempts:     3,
			})

			stats := store.Statistics()
			Expect(stats.Processed).To(Equal(3))
			Expect(stats.Successful).To(Equal(2))
			Expect(stats.Failed).To(Equal(1))
			Expect(stats.TotalLines).To(Equal(5))
			Expect(stats.TotalRetries).To(Equal(2))
			Expect(stats.ErrorsByKind).To(HaveKeyWithValue("timeout", 1))
		})

		It("keeps the failure ledger", func() {
			store.Record(progress.Outcome{
				RUC:          "10234567891",
				ErrorKind:    "proxy_error",
				ErrorMessage: "connection refused",
				Attempts:     3,
			})

			failed := store.Failed()
			Expect(failed).To(HaveKey("10234567891"))
			Expect(failed["10234567891"].ErrorKind).To(Equal("proxy_error"))
			Expect(failed["10234567891"].Attempts).To(Equal(3))
		})

		It("defaults a missing error kind to unknown", func() {
			store.Record(progress.Outcome{RUC: "10234567891", Attempts: 3})
			Expect(store.Statistics().ErrorsByKind).To(HaveKeyWithValue("unknown", 1))
		})
	})

	Describe("Save and Load", func() {
		It("round-trips the full state", func() {
			store.Record(success("20100047218", 2))
			store.Record(progress.Outcome{
				RUC:       "10234567891",
				ErrorKind: "timeout",
				Attempts:  3,
			})
			Expect(store.Save()).To(Succeed())

			restored := progress.NewStore(path, logger)
			loaded, err := restored.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeTrue())

			stats := restored.Statistics()
			Expect(stats.Processed).To(Equal(2))
			Expect(stats.Successful).To(Equal(1))
			Expect(stats.Failed).To(Equal(1))
			Expect(restored.Failed()).To(HaveKey("10234567891"))
		})

		It("leaves no temp file behind", func() {
			store.Record(success("20100047218", 1))
			Expect(store.Save()).To(Succeed())

			_, err := os.Stat(path + ".tmp")
			Expect(os.IsNotExist(err)).To(BeTrue())
			_, err = os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports no prior state when the file is absent", func() {
			loaded, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeFalse())
		})

		It("starts fresh on a corrupt snapshot", func() {
			Expect(os.WriteFile(path, []byte("{truncated"), 0o644)).To(Succeed())

			loaded, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeFalse())
			Expect(store.Statistics().Processed).To(BeZero())
		})
	})

	Describe("Pending", func() {
		It("returns unprocessed ids in input order", func() {
			all := []string{"20100047218", "20600055519", "10234567891", "20512345678"}
			store.Record(success("20600055519", 1))
			store.Record(progress.Outcome{RUC: "20512345678", ErrorKind: "timeout", Attempts: 3})

			Expect(store.Pending(all)).To(Equal([]string{"20100047218", "10234567891"}))
		})

		It("survives a save and load cycle", func() {
			all := []string{"20100047218", "20600055519", "10234567891"}
			store.Record(success("20100047218", 1))
			Expect(store.Save()).To(Succeed())

			restored := progress.NewStore(path, logger)
			_, err := restored.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(restored.Pending(all)).To(Equal([]string{"20600055519", "10234567891"}))
		})
	})
})
