package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/hvborda/lineas/pkg/engine"
	"github.com/hvborda/lineas/pkg/extract/osiptel"
	"github.com/hvborda/lineas/pkg/logging"
	"github.com/hvborda/lineas/pkg/output"
	"github.com/hvborda/lineas/pkg/progress"
	"github.com/hvborda/lineas/pkg/proxy"
	"github.com/hvborda/lineas/pkg/rucfile"
	"github.com/hvborda/lineas/pkg/sysinfo"
)

func main() {
	workers := flag.Int("workers", 0, "worker count (0 = auto-detect from system resources)")
	outputDir := flag.String("output", "osiptel_output", "output directory")
	batchSize := flag.Int("batch", output.DefaultBatchSize, "results per batch file")
	noResume := flag.Bool("no-resume", false, "ignore previous progress and start fresh")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <rucs.csv>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}
	inputPath := flag.Arg(0)

	// Load .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Error loading .env file")
	}

	// Initialize logger
	log := logrus.New()
	log.SetFormatter(logging.NewColoredTextFormatter())

	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, inputPath, *outputDir, *workers, *batchSize, *noResume); err != nil {
		log.WithError(err).Fatal("Run failed")
	}
}

func run(ctx context.Context, log *logrus.Logger, inputPath, outputDir string, workers, batchSize int, noResume bool) error {
	// Configuration-level failures below are fatal and stop the run
	// before the worker pool starts.
	proxyConfig, err := proxy.NewConfig()
	if err != nil {
		return fmt.Errorf("proxy configuration: %w", err)
	}
	proxyConfig.Logger = log

	engineConfig, err := engine.NewConfig()
	if err != nil {
		return fmt.Errorf("engine configuration: %w", err)
	}
	engineConfig.Logger = log

	lookupConfig, err := osiptel.NewConfig()
	if err != nil {
		return fmt.Errorf("lookup configuration: %w", err)
	}
	lookupConfig.Logger = log

	log.WithField("file", inputPath).Info("Reading input file")
	ids, totalRows, err := rucfile.Read(inputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	log.WithFields(logrus.Fields{
		"rows":  totalRows,
		"valid": len(ids),
	}).Info("Input file read")
	if len(ids) == 0 {
		return fmt.Errorf("no valid %d-digit RUCs in %s", rucfile.RUCLength, inputPath)
	}

	// Auto-tune worker count and pacing unless the operator pinned them.
	if workers > 0 {
		engineConfig.WorkerCount = workers
	} else if os.Getenv("WORKERS") == "" {
		tuning := sysinfo.Detect(log)
		engineConfig.WorkerCount = tuning.Workers
		engineConfig.MinTaskDelay = tuning.MinTaskDelay
		engineConfig.MaxTaskDelay = tuning.MaxTaskDelay
	}
	if err := engineConfig.Validate(); err != nil {
		return fmt.Errorf("engine configuration: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	progressPath := filepath.Join(outputDir, "progress.json")
	if noResume {
		if err := os.Rename(progressPath, progressPath+".old"); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("setting aside previous progress: %w", err)
		}
	}
	store := progress.NewStore(progressPath, log)

	inputName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	writer, err := output.NewWriter(outputDir, inputName, batchSize, log)
	if err != nil {
		return fmt.Errorf("creating output writer: %w", err)
	}

	leases, err := proxy.NewManager(proxyConfig, log)
	if err != nil {
		return fmt.Errorf("creating lease manager: %w", err)
	}

	extractor, err := osiptel.NewClient(lookupConfig, proxyConfig)
	if err != nil {
		return fmt.Errorf("creating lookup client: %w", err)
	}

	orchestrator, err := engine.NewOrchestrator(engineConfig, leases, extractor, store, writer)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	stats, err := orchestrator.Run(ctx, ids)
	if stats != nil {
		printSummary(stats, outputDir)
	}
	return err
}

// printSummary writes the run totals to stdout once the engine is done.
func printSummary(stats *progress.Statistics, outputDir string) {
	line := strings.Repeat("=", 70)
	fmt.Println()
	fmt.Println(line)
	fmt.Println("                         RUN SUMMARY")
	fmt.Println(line)
	fmt.Printf("  Total RUCs:        %d\n", stats.TotalRUCs)
	fmt.Printf("  Processed:         %d\n", stats.Processed)
	fmt.Printf("  Successful:        %d\n", stats.Successful)
	fmt.Printf("  Failed:            %d\n", stats.Failed)
	fmt.Printf("  Success rate:      %.1f%%\n", stats.SuccessRate())
	fmt.Printf("  Phone lines found: %d\n", stats.TotalLines)
	fmt.Printf("  Total retries:     %d\n", stats.TotalRetries)
	fmt.Printf("  Elapsed:           %.1f min\n", stats.ElapsedSeconds()/60)
	fmt.Printf("  Rate:              %.0f RUCs/hour\n", stats.RatePerHour())

	if len(stats.ErrorsByKind) > 0 {
		fmt.Println(strings.Repeat("-", 70))
		fmt.Println("  Errors by kind:")
		kinds := make([]string, 0, len(stats.ErrorsByKind))
		for k := range stats.ErrorsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Printf("    - %s: %d\n", k, stats.ErrorsByKind[k])
		}
	}

	fmt.Println(line)
	fmt.Printf("  Output in %s/\n", outputDir)
	fmt.Println(line)
}
