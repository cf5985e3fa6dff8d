package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ResultsFormatted is the persisted result document: the benchmark and runner
// records of the batch plus the full run matrix, keyed outer-by-runner. Run
// times serialize as integer nanoseconds. Unknown extra fields on the
// benchmark/runner records are ignored on load.
type ResultsFormatted struct {
	Benchmarks map[string]Benchmark `json:"benchmarks"`
	Runners    map[string]Runner    `json:"runners"`
	Runs       ResultMatrix         `json:"runs"`
}

func NewResultsFormatted(benchmarks []Benchmark, runners []Runner, matrix ResultMatrix) ResultsFormatted {
	results := ResultsFormatted{
		Benchmarks: make(map[string]Benchmark, len(benchmarks)),
		Runners:    make(map[string]Runner, len(runners)),
		Runs:       matrix,
	}
	for _, benchmark := range benchmarks {
		results.Benchmarks[benchmark.Name] = benchmark
	}
	for _, runner := range runners {
		results.Runners[runner.Name] = runner
	}
	return results
}

// Save writes the document to path, refusing to overwrite an existing file.
func (r ResultsFormatted) Save(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("could not create results file %v: %w", path, err)
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("could not write results to %v: %w", path, err)
	}
	Logger.Infof("wrote out results to %v", path)
	return nil
}

func LoadResults(path string) (ResultsFormatted, error) {
	Logger.Infof("reading and parsing results from %v", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return ResultsFormatted{}, err
	}
	var results ResultsFormatted
	if err := json.Unmarshal(data, &results); err != nil {
		return ResultsFormatted{}, fmt.Errorf("could not parse results from %v: %w", path, err)
	}
	return results, nil
}

type runnerAggregate struct {
	name  string
	total time.Duration
}

// rankedRunners sums each runner's available per-benchmark averages (missing
// or empty pairs contribute zero) and sorts ascending, fastest first. Ties
// break by name so the ranking is deterministic.
func (r ResultsFormatted) rankedRunners() []runnerAggregate {
	aggregates := make([]runnerAggregate, 0, len(r.Runners))
	for name := range r.Runners {
		var total time.Duration
		for _, result := range r.Runs[name] {
			if average, ok := result.Average(); ok {
				total += average
			}
		}
		aggregates = append(aggregates, runnerAggregate{name: name, total: total})
	}
	slices.SortFunc(aggregates, func(a, b runnerAggregate) int {
		if a.total != b.total {
			return cmp.Compare(a.total, b.total)
		}
		return cmp.Compare(a.name, b.name)
	})
	return aggregates
}

// Table renders the markdown comparison table: ranked runner names in the
// header, a **sum** row of aggregate times, a **relative** row of multipliers
// against the fastest runner, then one row per benchmark sorted by name.
// Pairs without any recorded attempt render blank and are warned about.
func (r ResultsFormatted) Table() string {
	ranked := r.rankedRunners()

	writer := table.NewWriter()
	writer.Style().Format.Header = text.FormatDefault

	header := table.Row{""}
	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignCenter, AlignHeader: text.AlignCenter}}
	for i, runner := range ranked {
		header = append(header, runner.name)
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight, AlignHeader: text.AlignCenter})
	}
	writer.AppendHeader(header)
	writer.SetColumnConfigs(configs)

	sumRow := table.Row{"**sum**"}
	for _, runner := range ranked {
		sumRow = append(sumRow, formatDuration(runner.total))
	}
	writer.AppendRow(sumRow)

	// The smallest positive aggregate anchors the relative row at 1.000x;
	// runners without any timing data sort first with a zero aggregate and
	// must not steal the anchor. When no runner has data at all, every
	// aggregate ties at zero and the whole row renders 1.000x.
	anchor := 0.0
	for _, runner := range ranked {
		if runner.total > 0 {
			anchor = runner.total.Seconds()
			break
		}
	}
	relativeRow := table.Row{"**relative**"}
	for _, runner := range ranked {
		if anchor == 0 {
			relativeRow = append(relativeRow, "1.000x")
			continue
		}
		relativeRow = append(relativeRow, fmt.Sprintf("%.3fx", runner.total.Seconds()/anchor))
	}
	writer.AppendRow(relativeRow)

	for _, benchmarkName := range slices.Sorted(maps.Keys(r.Benchmarks)) {
		row := table.Row{benchmarkName}
		for _, runner := range ranked {
			result, ok := r.Runs[runner.name][benchmarkName]
			if !ok {
				Logger.Warnf("no recorded run of benchmark %v on runner %v", benchmarkName, runner.name)
				row = append(row, "")
				continue
			}
			if average, ok := result.Average(); ok {
				row = append(row, formatDuration(average))
			} else {
				row = append(row, "")
			}
		}
		writer.AppendRow(row)
	}

	return writer.RenderMarkdown()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fµs", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}

// RecordResults persists the document under resultsPath. An empty fileName
// picks a timestamp-derived one, so repeated batches never clobber each other.
func RecordResults(resultsPath string, fileName string, results ResultsFormatted) (string, error) {
	if fileName == "" {
		fileName = fmt.Sprintf("%v.evm-bench.results.json", time.Now().UTC().Format(time.RFC3339))
	}
	if err := os.MkdirAll(resultsPath, 0o755); err != nil {
		return "", err
	}
	resultFilePath := filepath.Join(resultsPath, fileName)
	if err := results.Save(resultFilePath); err != nil {
		return "", err
	}
	return resultFilePath, nil
}

// PrintResults reads a persisted document back and prints its table, so the
// reporting path always works from the stored artifact.
func PrintResults(resultFilePath string) error {
	results, err := LoadResults(resultFilePath)
	if err != nil {
		return err
	}
	fmt.Println(results.Table())
	return nil
}
