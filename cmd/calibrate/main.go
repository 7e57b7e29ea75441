package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/chesslab/analysisd/internal/calibration"
	"github.com/chesslab/analysisd/internal/config"
	"github.com/chesslab/analysisd/internal/models"
	"github.com/chesslab/analysisd/internal/pool"
)

func main() {
	var (
		corpusDir  = flag.String("corpus", "", "Directory of *.json record files to calibrate against")
		outputPath = flag.String("output", "data/thresholds.json", "Output path for percentile thresholds")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *corpusDir == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -corpus <dir_of_json_records> [-output <path>] [-v]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Load()

	records, err := calibration.LoadCorpus(*corpusDir)
	if err != nil {
		logrus.Fatalf("failed to load corpus: %v", err)
	}
	logrus.Infof("loaded %d records from %s", len(records), *corpusDir)

	enginePool, err := pool.New(pool.Config{
		BinaryPath:        cfg.Engine.BinaryPath,
		MinEngines:        cfg.Pool.MinEngines,
		MaxEngines:        cfg.Pool.MaxEngines,
		ScaleUpThreshold:  cfg.Pool.ScaleUpThreshold,
		ScaleDownIdleTime: cfg.Pool.ScaleDownIdleTime,
		EngineOptions: models.EngineOptions{
			Threads: cfg.Engine.Threads,
			HashMB:  cfg.Engine.HashMB,
		},
	})
	if err != nil {
		logrus.Fatalf("failed to initialize engine pool: %v", err)
	}
	defer enginePool.Shutdown()

	cplByBucket, skipped := calibration.Run(context.Background(), enginePool, records)
	if skipped > 0 {
		logrus.Warnf("skipped %d unclassifiable records", skipped)
	}

	thresholds := calibration.ComputeThresholds(cplByBucket)
	if err := calibration.SaveThresholds(*outputPath, thresholds); err != nil {
		logrus.Fatalf("failed to save thresholds: %v", err)
	}

	fmt.Println("\n=== Calibration Results (Cpl percentiles) ===")
	for bucket, t := range thresholds {
		fmt.Printf("\nRating bucket: %s (n=%d)\n", bucket, len(cplByBucket[bucket]))
		fmt.Printf("  P1:  %.1f\n", t.P1)
		fmt.Printf("  P5:  %.1f\n", t.P5)
		fmt.Printf("  P10: %.1f\n", t.P10)
		fmt.Printf("  P25: %.1f\n", t.P25)
		fmt.Printf("  P50: %.1f\n", t.P50)
		fmt.Printf("  P75: %.1f\n", t.P75)
		fmt.Printf("  P90: %.1f\n", t.P90)
	}
	fmt.Printf("\nThresholds saved to: %s\n", *outputPath)
}
