package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunResult is the ordered timing samples of one (benchmark, runner) pair.
// Empty samples mean the pair was attempted and every run failed.
type RunResult struct {
	RunTimes []time.Duration `json:"run_times"`
}

// Average is the arithmetic mean of the samples, absent when there are none.
func (r RunResult) Average() (time.Duration, bool) {
	if len(r.RunTimes) == 0 {
		return 0, false
	}
	var sum time.Duration
	for _, runTime := range r.RunTimes {
		sum += runTime
	}
	return sum / time.Duration(len(r.RunTimes)), true
}

// ResultMatrix maps runner name -> benchmark name -> timing samples. Absence
// of a pair means the runner was never attempted on that benchmark.
type ResultMatrix map[string]map[string]RunResult

func (m ResultMatrix) Record(runner, benchmark string, result RunResult) {
	row, ok := m[runner]
	if !ok {
		row = make(map[string]RunResult)
		m[runner] = row
	}
	row[benchmark] = result
}

// ByBenchmark returns the transposed traversal: benchmark name -> runner
// name -> timing samples.
func (m ResultMatrix) ByBenchmark() map[string]map[string]RunResult {
	transposed := make(map[string]map[string]RunResult)
	for runnerName, row := range m {
		for benchmarkName, result := range row {
			column, ok := transposed[benchmarkName]
			if !ok {
				column = make(map[string]RunResult)
				transposed[benchmarkName] = column
			}
			column[runnerName] = result
		}
	}
	return transposed
}

// ExecutionEngine drives the (benchmark x runner) batch. Pair failures are
// isolated: they are logged and recorded as empty results, never aborting the
// remaining pairs. There is no retry and no timeout; a hung runner blocks its
// branch of the batch.
type ExecutionEngine struct {
	// Parallel runs each runner's benchmark loop on its own goroutine.
	// Runners own disjoint matrix subtrees, so the final contents do not
	// depend on completion order.
	Parallel bool
}

func (e *ExecutionEngine) RunMatrix(ctx context.Context, built []BuiltBenchmark, runners []Runner) ResultMatrix {
	Logger.Infof("running %v benchmarks on %v runners", len(built), len(runners))
	matrix := make(ResultMatrix, len(runners))
	if !e.Parallel {
		for _, runner := range runners {
			matrix[runner.Name] = e.runBenchmarksOnRunner(ctx, runner, built)
		}
		return matrix
	}

	var mutex sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for _, runner := range runners {
		group.Go(func() error {
			results := e.runBenchmarksOnRunner(groupCtx, runner, built)
			mutex.Lock()
			matrix[runner.Name] = results
			mutex.Unlock()
			return nil
		})
	}
	// Workers never return errors: pair failures stay pair-local.
	_ = group.Wait()
	return matrix
}

func (e *ExecutionEngine) runBenchmarksOnRunner(ctx context.Context, runner Runner, built []BuiltBenchmark) map[string]RunResult {
	Logger.Infof("running benchmarks on %v", runner.Name)
	results := make(map[string]RunResult, len(built))
	for _, benchmark := range built {
		result, err := runBenchmarkOnRunner(ctx, benchmark, runner)
		if err != nil {
			Logger.Warnf("could not run benchmark %v on runner %v: %v", benchmark.Benchmark.Name, runner.Name, err)
			result = RunResult{}
		}
		results[benchmark.Benchmark.Name] = result
	}
	return results
}

func runBenchmarkOnRunner(ctx context.Context, built BuiltBenchmark, runner Runner) (RunResult, error) {
	benchmark := built.Benchmark
	Logger.Infof("running benchmark %v on %v (%v runs)", benchmark.Name, runner.Name, benchmark.NumRuns)

	cmd := exec.CommandContext(ctx, runner.Entry,
		"--contract-code-path", built.Artifact.ContractBinPath,
		"--calldata", benchmark.Calldata.Hex(),
		"--num-runs", strconv.Itoa(benchmark.NumRuns),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return RunResult{}, fmt.Errorf("err=%w, stderr=%v", err, stderr.String())
	}
	return parseRunOutput(stdout.String())
}

// parseRunOutput parses the runner protocol stdout: one millisecond float per
// line. A runner may report fewer lines than requested runs; any non-numeric,
// negative or non-finite line fails the whole pair.
func parseRunOutput(stdout string) (RunResult, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return RunResult{}, nil
	}
	runTimes := make([]time.Duration, 0, 16)
	for _, line := range strings.Split(trimmed, "\n") {
		millis, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return RunResult{}, fmt.Errorf("unexpected runner output line %q: %w", line, err)
		}
		if millis < 0 || math.IsNaN(millis) || math.IsInf(millis, 0) {
			return RunResult{}, fmt.Errorf("invalid run time %q in runner output", line)
		}
		runTimes = append(runTimes, time.Duration(millis*float64(time.Millisecond)))
	}
	return RunResult{RunTimes: runTimes}, nil
}
