package output_test

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/hvborda/lineas/pkg/extract"
	"github.com/hvborda/lineas/pkg/output"
	"github.com/hvborda/lineas/pkg/progress"
)

func readCSV(path string) [][]string {
	f, err := os.Open(path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	Expect(err).NotTo(HaveOccurred())
	return rows
}

func entry(ruc string, lines int) output.Entry {
	e := output.Entry{RUC: ruc}
	for i := 0; i < lines; i++ {
		e.Lines = append(e.Lines, extract.Record{
			Modality: "POSPAGO",
			Number:   fmt.Sprintf("98765%04d", i),
			Operator: "ENTEL PERU S.A.",
		})
	}
	return e
}

var _ = Describe("Writer", func() {
	var (
		dir    string
		logger *logrus.Logger
		writer *output.Writer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)

		var err error
		writer, err = output.NewWriter(dir, "empresas", 3, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("batching", func() {
		It("partitions seven results into batches of 3, 3 and 1", func() {
			for i := 0; i < 7; i++ {
				Expect(writer.Append(entry(fmt.Sprintf("2010000000%d", i), 2))).To(Succeed())
			}
			Expect(writer.BatchesWritten()).To(Equal(2))
			Expect(writer.Finalize()).To(Succeed())
			Expect(writer.BatchesWritten()).To(Equal(3))

			saveDir := filepath.Join(dir, "save")
			for i, want := range []int{3, 3, 1} {
				path := filepath.Join(saveDir, fmt.Sprintf("empresas_3_parte%d.csv", i+1))
				rows := readCSV(path)
				Expect(rows).To(HaveLen(want+1), "batch %d", i+1)
			}
		})

		It("does not write an empty final batch", func() {
			for i := 0; i < 3; i++ {
				Expect(writer.Append(entry(fmt.Sprintf("2010000000%d", i), 1))).To(Succeed())
			}
			Expect(writer.Finalize()).To(Succeed())
			Expect(writer.BatchesWritten()).To(Equal(1))
		})

		It("continues numbering above batches left by a previous run", func() {
			for i := 0; i < 3; i++ {
				Expect(writer.Append(entry(fmt.Sprintf("2010000000%d", i), 1))).To(Succeed())
			}
			Expect(writer.Finalize()).To(Succeed())

			resumed, err := output.NewWriter(dir, "empresas", 3, logger)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 3; i++ {
				Expect(resumed.Append(entry(fmt.Sprintf("2060000000%d", i), 1))).To(Succeed())
			}

			path := filepath.Join(dir, "save", "empresas_3_parte2.csv")
			Expect(path).To(BeAnExistingFile())
		})
	})

	Describe("wide row layout", func() {
		It("writes the header once with the full column budget", func() {
			Expect(writer.Append(entry("20100047218", 2))).To(Succeed())
			Expect(writer.Append(entry("20600055519", 1))).To(Succeed())

			rows := readCSV(filepath.Join(dir, "resultados.csv"))
			Expect(rows).To(HaveLen(3))
			Expect(rows[0]).To(HaveLen(1 + output.MaxLineColumns*3))
			Expect(rows[0][0]).To(Equal("RUC"))
			Expect(rows[0][1]).To(Equal("Modalidad_1"))
			Expect(rows[0][2]).To(Equal("Numero_Telefonico_1"))
			Expect(rows[0][3]).To(Equal("Empresa_Operadora_1"))
			Expect(rows[0][298]).To(Equal("Modalidad_100"))
		})

		It("fills record triples in order and leaves the rest empty", func() {
			Expect(writer.Append(entry("20100047218", 2))).To(Succeed())

			rows := readCSV(filepath.Join(dir, "resultados.csv"))
			row := rows[1]
			Expect(row[0]).To(Equal("20100047218"))
			Expect(row[1]).To(Equal("POSPAGO"))
			Expect(row[2]).To(Equal("987650000"))
			Expect(row[3]).To(Equal("ENTEL PERU S.A."))
			Expect(row[5]).To(Equal("987650001"))
			Expect(row[7]).To(BeEmpty())
		})

		It("truncates entries past the column budget", func() {
			Expect(writer.Append(entry("20100047218", 120))).To(Succeed())

			rows := readCSV(filepath.Join(dir, "resultados.csv"))
			row := rows[1]
			Expect(row).To(HaveLen(1 + output.MaxLineColumns*3))
			Expect(row[1+99*3+1]).To(Equal("987650099"))
		})

		It("appends below the existing header on resume", func() {
			Expect(writer.Append(entry("20100047218", 1))).To(Succeed())

			resumed, err := output.NewWriter(dir, "empresas", 3, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(resumed.Append(entry("20600055519", 1))).To(Succeed())

			rows := readCSV(filepath.Join(dir, "resultados.csv"))
			Expect(rows).To(HaveLen(3))
			Expect(rows[2][0]).To(Equal("20600055519"))
		})
	})

	Describe("timing report", func() {
		It("summarizes every flushed batch", func() {
			for i := 0; i < 7; i++ {
				Expect(writer.Append(entry(fmt.Sprintf("2010000000%d", i), 2))).To(Succeed())
			}
			Expect(writer.Finalize()).To(Succeed())

			data, err := os.ReadFile(filepath.Join(dir, "save", "empresas_timing_report.json"))
			Expect(err).NotTo(HaveOccurred())

			var report struct {
				Summary struct {
					TotalBatches       int     `json:"total_batches"`
					TotalRUCsProcessed int     `json:"total_rucs_processed"`
					TotalPhoneLines    int     `json:"total_phone_lines"`
					SuccessRate        float64 `json:"success_rate"`
				} `json:"summary"`
				Batches []output.BatchTiming `json:"batches"`
			}
			Expect(json.Unmarshal(data, &report)).To(Succeed())
			Expect(report.Summary.TotalBatches).To(Equal(3))
			Expect(report.Summary.TotalRUCsProcessed).To(Equal(7))
			Expect(report.Summary.TotalPhoneLines).To(Equal(14))
			Expect(report.Summary.SuccessRate).To(Equal(100.0))
			Expect(report.Batches).To(HaveLen(3))
			Expect(report.Batches[0].Filename).To(Equal("empresas_3_parte1.csv"))
		})
	})

	Describe("WriteFailed", func() {
		It("exports the ledger sorted by id", func() {
			ledger := map[string]progress.FailureInfo{
				"20600055519": {ErrorKind: "timeout", ErrorMessage: "grid wait expired", Attempts: 3},
				"20100047218": {ErrorKind: "proxy_error", ErrorMessage: "connection refused", Attempts: 3},
			}
			Expect(writer.WriteFailed(ledger)).To(Succeed())

			rows := readCSV(filepath.Join(dir, "failed_rucs.csv"))
			Expect(rows).To(HaveLen(3))
			Expect(rows[0]).To(Equal([]string{"RUC", "Error_Type", "Error_Message", "Attempts"}))
			Expect(rows[1][0]).To(Equal("20100047218"))
			Expect(rows[2][0]).To(Equal("20600055519"))
			Expect(rows[2][1]).To(Equal("timeout"))
			Expect(rows[2][3]).To(Equal("3"))
		})

		It("writes nothing for an empty ledger", func() {
			Expect(writer.WriteFailed(nil)).To(Succeed())
			Expect(filepath.Join(dir, "failed_rucs.csv")).NotTo(BeAnExistingFile())
		})
	})

	Describe("WriteStatistics", func() {
		It("exports the counters with derived rates", func() {
			stats := progress.NewStatistics()
			stats.TotalRUCs = 10
			stats.Processed = 10
			stats.Successful = 8
			stats.Failed = 2
			Expect(writer.WriteStatistics(stats)).To(Succeed())

			data, err := os.ReadFile(filepath.Join(dir, "statistics.json"))
			Expect(err).NotTo(HaveOccurred())

			var doc map[string]any
			Expect(json.Unmarshal(data, &doc)).To(Succeed())
			Expect(doc).To(HaveKeyWithValue("processed", 10.0))
			Expect(doc).To(HaveKeyWithValue("success_rate", 80.0))
			Expect(doc).To(HaveKey("elapsed_seconds"))
		})
	})
})
