// Command slmea reconstructs current sources from one multi-electrode
// recording, or from a synthetic one, and prints a summary.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/uranc/slmea"
	"github.com/uranc/slmea/config"
	"github.com/uranc/slmea/fsutil"
	"github.com/uranc/slmea/reconstruct"
	"github.com/uranc/slmea/report"
)

var (
	configPath    = flag.String("config", "", "Path to a JSON run configuration (defaults apply when empty)")
	recordingPath = flag.String("recording", "", "Path to a JSON recording")
	synthetic     = flag.Bool("synthetic", false, "Reconstruct a synthetic recording instead of -recording")
	strategyName  = flag.String("strategy", "", "Formulation strategy: slack_l1, posneg or thesis (overrides the configuration)")
	outDir        = flag.String("out", ".", "Directory for checkpoints and reports")
	plotTrace     = flag.Bool("plot", false, "Write trace.png and trace.html convergence reports to -out")
)

func main() {
	flag.Parse()
	if err := run(fsutil.OSFileSystem{}); err != nil {
		log.Fatal(err)
	}
}

// run executes one reconstruction. It returns instead of exiting so deferred
// cleanup, closing the checkpoint database in particular, always happens.
func run(fsys fsutil.FileSystem) error {
	cfg := config.Empty()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	}
	if *strategyName != "" {
		cfg.Strategy = strategyName
	}
	if cfg.Checkpoint == nil {
		cfg.Checkpoint = &config.CheckpointConfig{}
	}
	if cfg.Checkpoint.Dir == nil {
		dir := filepath.Join(*outDir, config.DefaultCheckpointDir)
		cfg.Checkpoint.Dir = &dir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var (
		session *slmea.Session
		err     error
	)
	switch {
	case *synthetic:
		session, err = syntheticSession(cfg)
	case *recordingPath != "":
		var rec *slmea.Recording
		if rec, err = slmea.LoadRecording(*recordingPath); err == nil {
			session, err = slmea.NewSession(rec, cfg)
		}
	default:
		return errors.New("one of -recording or -synthetic is required")
	}
	if err != nil {
		return fmt.Errorf("failed to set up session: %w", err)
	}

	closer, err := session.UseCheckpoints(fsys)
	if err != nil {
		return fmt.Errorf("failed to open checkpoints: %w", err)
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil {
			log.Printf("Failed to close checkpoints: %v", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := session.Reconstruct(ctx)
	if err != nil {
		return fmt.Errorf("reconstruction failed: %w", err)
	}
	printSummary(session, res)

	if *plotTrace {
		if err := writeReports(session, res, fsys, *outDir); err != nil {
			log.Printf("Failed to write reports: %v", err)
		}
	}
	return nil
}

func printSummary(s *slmea.Session, res *reconstruct.Result) {
	d := res.Problem.Describe()
	fmt.Printf("session:      %s\n", res.SessionID)
	fmt.Printf("strategy:     %s\n", res.Strategy)
	fmt.Printf("variables:    %d\n", d.Variables)
	fmt.Printf("constraints:  %d (%d equalities)\n", d.Constraints, d.Equalities)
	fmt.Printf("status:       %s\n", res.Status)
	fmt.Printf("objective:    %g\n", res.Objective)
	fmt.Printf("iterations:   %d\n", res.Iterations)
	fmt.Printf("violation:    %g\n", res.MaxViolation)

	nv, nt := res.Source.Dims()
	for t := 0; t < nt; t++ {
		peak, amp := 0, 0.0
		for v := 0; v < nv; v++ {
			if a := math.Abs(res.Source.At(v, t)); a > amp {
				peak, amp = v, a
			}
		}
		i, j, k := s.Grid.Coord(peak)
		fmt.Printf("sample %d:     peak %g at voxel (%d,%d,%d) %v\n", t, res.Source.At(peak, t), i, j, k, s.Grid.Position(peak))
	}
}

// writeReports renders the convergence trace of res into dir as trace.png
// and trace.html.
func writeReports(s *slmea.Session, res *reconstruct.Result, fsys fsutil.FileSystem, dir string) error {
	if s.Orchestrator.Sink == nil {
		return errors.New("checkpoints are disabled")
	}
	its, err := s.LoadCheckpoints(fsys, res.RunID)
	if err != nil {
		return err
	}
	tr, err := report.NewTrace(res.Strategy, &res.Problem.Problem, its)
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := report.SaveTracePNG(fsys, tr, filepath.Join(dir, "trace.png")); err != nil {
		return err
	}
	var html bytes.Buffer
	if err := report.RenderTraceHTML(&html, tr); err != nil {
		return err
	}
	return fsys.WriteFile(filepath.Join(dir, "trace.html"), html.Bytes(), 0o644)
}
