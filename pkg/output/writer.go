// Package output writes the run's deliverables: the running wide-format
// results CSV, immutable per-batch CSV files with a timing report, and the
// failure and statistics exports.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hvborda/lineas/pkg/extract"
	"github.com/hvborda/lineas/pkg/progress"
)

// MaxLineColumns is the fixed column budget: every row carries slots for
// 100 records and extra records beyond that are truncated at this layer.
const MaxLineColumns = 100

// DefaultBatchSize is how many successful results form one batch file.
const DefaultBatchSize = 1000

// Entry is one successful result as the writer needs to see it.
type Entry struct {
	// RUC is the queried id
	RUC string
	// Lines are the extracted records, order preserved
	Lines []extract.Record
}

// BatchTiming captures how long one batch took to accumulate and flush.
type BatchTiming struct {
	BatchNumber     int     `json:"batch_number"`
	Filename        string  `json:"filename"`
	RUCsCount       int     `json:"rucs_count"`
	SuccessfulCount int     `json:"successful_count"`
	TotalLines      int     `json:"total_lines"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	RUCsPerMinute   float64 `json:"rucs_per_minute"`
}

type timingSummary struct {
	TotalBatches         int     `json:"total_batches"`
	TotalRUCsProcessed   int     `json:"total_rucs_processed"`
	TotalSuccessful      int     `json:"total_successful"`
	TotalPhoneLines      int     `json:"total_phone_lines"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	AverageRUCsPerMinute float64 `json:"average_rucs_per_minute"`
	AverageBatchDuration float64 `json:"average_batch_duration"`
	SuccessRate          float64 `json:"success_rate"`
}

type timingReport struct {
	Summary timingSummary `json:"summary"`
	Batches []BatchTiming `json:"batches"`
}

// Writer buffers successful results and flushes fixed-size immutable
// batches alongside the incremental results file. It is driven by the
// single result consumer, so it needs no internal locking.
type Writer struct {
	outputDir   string
	saveDir     string
	resultsPath string
	inputName   string
	batchSize   int
	logger      *logrus.Logger

	headerWritten bool
	buffer        []Entry
	batchNumber   int
	batchStart    time.Time
	timings       []BatchTiming
}

// NewWriter creates a Writer rooted at outputDir. inputName (the input
// file's base name without extension) prefixes batch files and the timing
// report. Batch numbering continues above any parte file already on disk
// for the same input name, so a resumed run never reuses a number.
func NewWriter(outputDir, inputName string, batchSize int, logger *logrus.Logger) (*Writer, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logrus.New()
	}

	saveDir := filepath.Join(outputDir, "save")
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating batch dir: %w", err)
	}

	w := &Writer{
		outputDir:   outputDir,
		saveDir:     saveDir,
		resultsPath: filepath.Join(outputDir, "resultados.csv"),
		inputName:   inputName,
		batchSize:   batchSize,
		logger:      logger,
		batchStart:  time.Now(),
	}

	if info, err := os.Stat(w.resultsPath); err == nil && info.Size() > 0 {
		w.headerWritten = true
	}
	w.batchNumber = w.highestExistingBatch()

	return w, nil
}

// highestExistingBatch scans the save dir for parte files left by a prior
// run of the same input.
func (w *Writer) highestExistingBatch() int {
	pattern := regexp.MustCompile(fmt.Sprintf(`^%s_%d_parte(\d+)\.csv$`,
		regexp.QuoteMeta(w.inputName), w.batchSize))

	entries, err := os.ReadDir(w.saveDir)
	if err != nil {
		return 0
	}

	highest := 0
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// header builds the fixed wide header: RUC plus 100 record column triples.
func header() []string {
	h := make([]string, 0, 1+MaxLineColumns*3)
	h = append(h, "RUC")
	for i := 1; i <= MaxLineColumns; i++ {
		h = append(h,
			fmt.Sprintf("Modalidad_%d", i),
			fmt.Sprintf("Numero_Telefonico_%d", i),
			fmt.Sprintf("Empresa_Operadora_%d", i),
		)
	}
	return h
}

// row renders one entry into the wide layout, truncating past the column
// budget.
func row(e Entry) []string {
	r := make([]string, 1+MaxLineColumns*3)
	r[0] = e.RUC
	for i, line := range e.Lines {
		if i >= MaxLineColumns {
			break
		}
		base := 1 + i*3
		r[base] = line.Modality
		r[base+1] = line.Number
		r[base+2] = line.Operator
	}
	return r
}

// Append writes the entry to the running results file and buffers it for
// batching, flushing a batch once the buffer reaches the batch size.
func (w *Writer) Append(e Entry) error {
	f, err := os.OpenFile(w.resultsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening results file: %w", err)
	}

	cw := csv.NewWriter(f)
	if !w.headerWritten {
		if err := cw.Write(header()); err != nil {
			f.Close()
			return fmt.Errorf("writing results header: %w", err)
		}
		w.headerWritten = true
	}
	if err := cw.Write(row(e)); err != nil {
		f.Close()
		return fmt.Errorf("writing results row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing results file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing results file: %w", err)
	}

	w.buffer = append(w.buffer, e)
	if len(w.buffer) >= w.batchSize {
		return w.flushBatch()
	}
	return nil
}

// flushBatch writes the buffered entries as one immutable batch file and
// records its timing entry.
func (w *Writer) flushBatch() error {
	if len(w.buffer) == 0 {
		return nil
	}

	w.batchNumber++
	end := time.Now()
	duration := end.Sub(w.batchStart).Seconds()

	filename := fmt.Sprintf("%s_%d_parte%d.csv", w.inputName, w.batchSize, w.batchNumber)
	path := filepath.Join(w.saveDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating batch file: %w", err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header()); err != nil {
		f.Close()
		return fmt.Errorf("writing batch header: %w", err)
	}
	totalLines := 0
	for _, e := range w.buffer {
		if err := cw.Write(row(e)); err != nil {
			f.Close()
			return fmt.Errorf("writing batch row: %w", err)
		}
		totalLines += len(e.Lines)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing batch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing batch file: %w", err)
	}

	perMinute := 0.0
	if duration > 0 {
		perMinute = float64(len(w.buffer)) / (duration / 60)
	}

	w.timings = append(w.timings, BatchTiming{
		BatchNumber:     w.batchNumber,
		Filename:        filename,
		RUCsCount:       len(w.buffer),
		SuccessfulCount: len(w.buffer),
		TotalLines:      totalLines,
		StartTime:       w.batchStart.Format("2006-01-02 15:04:05"),
		EndTime:         end.Format("2006-01-02 15:04:05"),
		DurationSeconds: round2(duration),
		RUCsPerMinute:   round2(perMinute),
	})

	w.logger.WithFields(logrus.Fields{
		"batch":    w.batchNumber,
		"filename": filename,
		"rucs":     len(w.buffer),
		"lines":    totalLines,
		"duration": round2(duration),
	}).Info("Batch saved")

	w.buffer = w.buffer[:0]
	w.batchStart = time.Now()

	return w.saveTimingReport()
}

// saveTimingReport rewrites the timing report with a fresh summary.
func (w *Writer) saveTimingReport() error {
	var sum timingSummary
	for _, b := range w.timings {
		sum.TotalRUCsProcessed += b.RUCsCount
		sum.TotalSuccessful += b.SuccessfulCount
		sum.TotalPhoneLines += b.TotalLines
		sum.TotalDurationSeconds += b.DurationSeconds
	}
	sum.TotalBatches = len(w.timings)
	if sum.TotalDurationSeconds > 0 {
		sum.AverageRUCsPerMinute = round2(float64(sum.TotalRUCsProcessed) / (sum.TotalDurationSeconds / 60))
	}
	if len(w.timings) > 0 {
		sum.AverageBatchDuration = round2(sum.TotalDurationSeconds / float64(len(w.timings)))
	}
	if sum.TotalRUCsProcessed > 0 {
		sum.SuccessRate = round2(float64(sum.TotalSuccessful) / float64(sum.TotalRUCsProcessed) * 100)
	}
	sum.TotalDurationSeconds = round2(sum.TotalDurationSeconds)

	report := timingReport{Summary: sum, Batches: w.timings}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling timing report: %w", err)
	}

	path := filepath.Join(w.saveDir, fmt.Sprintf("%s_timing_report.json", w.inputName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing timing report: %w", err)
	}
	return nil
}

// Finalize flushes any remainder as a final, possibly smaller batch and
// writes the final timing report.
func (w *Writer) Finalize() error {
	if err := w.flushBatch(); err != nil {
		return err
	}
	if len(w.timings) > 0 {
		return w.saveTimingReport()
	}
	return nil
}

// BatchesWritten returns how many batch files this writer has flushed.
func (w *Writer) BatchesWritten() int {
	return len(w.timings)
}

// WriteFailed exports the failure ledger as a tabular CSV. Messages are
// truncated to keep the file skimmable.
func (w *Writer) WriteFailed(ledger map[string]progress.FailureInfo) error {
	if len(ledger) == 0 {
		return nil
	}

	path := filepath.Join(w.outputDir, "failed_rucs.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating failed export: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"RUC", "Error_Type", "Error_Message", "Attempts"}); err != nil {
		return fmt.Errorf("writing failed header: %w", err)
	}

	ids := make([]string, 0, len(ledger))
	for id := range ledger {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		info := ledger[id]
		if err := cw.Write([]string{
			id,
			info.ErrorKind,
			extract.Truncate(info.ErrorMessage, 200),
			strconv.Itoa(info.Attempts),
		}); err != nil {
			return fmt.Errorf("writing failed row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStatistics exports the final statistics document.
func (w *Writer) WriteStatistics(stats *progress.Statistics) error {
	doc := struct {
		*progress.Statistics
		SuccessRate    float64 `json:"success_rate"`
		ElapsedSeconds float64 `json:"elapsed_seconds"`
		RatePerHour    float64 `json:"rate_per_hour"`
	}{
		Statistics:     stats,
		SuccessRate:    round2(stats.SuccessRate()),
		ElapsedSeconds: round2(stats.ElapsedSeconds()),
		RatePerHour:    round2(stats.RatePerHour()),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling statistics: %w", err)
	}

	path := filepath.Join(w.outputDir, "statistics.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing statistics: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
