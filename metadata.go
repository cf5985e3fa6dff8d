package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Calldata is a contract call input serialized as a hex string,
// with or without the 0x prefix.
type Calldata []byte

func ParseCalldata(value string) (Calldata, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid calldata %q: %w", value, err)
	}
	return Calldata(decoded), nil
}

func (c Calldata) Hex() string { return hex.EncodeToString(c) }

func (c Calldata) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + c.Hex())
}

func (c *Calldata) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	decoded, err := ParseCalldata(value)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// Benchmark is a named contract workload. The name is the identity: all
// matrix and cache keys use it, never the full record.
type Benchmark struct {
	Name         string   `json:"name"`
	SolcVersion  string   `json:"solc-version"`
	NumRuns      int      `json:"num-runs"`
	Contract     string   `json:"contract"`
	BuildContext string   `json:"build-context"`
	Calldata     Calldata `json:"calldata"`
}

// Runner is a named external executable satisfying the runner CLI protocol.
type Runner struct {
	Name  string `json:"name"`
	Entry string `json:"entry"`
}

type BenchmarkDefaults struct {
	SolcVersion string
	NumRuns     int
	Calldata    Calldata
}

type partialBenchmark struct {
	Name         string    `json:"name"`
	SolcVersion  *string   `json:"solc-version"`
	NumRuns      *int      `json:"num-runs"`
	Contract     string    `json:"contract"`
	BuildContext *string   `json:"build-context"`
	Calldata     *Calldata `json:"calldata"`
}

// canonicalPath makes path absolute and resolves symlinks; it fails when the
// path does not exist, which doubles as the load-time existence check.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize %v: %w", path, err)
	}
	return resolved, nil
}

func loadSchema(schemaPath string) (*gojsonschema.Schema, error) {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %v: %w", schemaPath, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %v: %w", schemaPath, err)
	}
	return schema, nil
}

func validateMetadata(schema *gojsonschema.Schema, data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, validationError := range result.Errors() {
			details = append(details, validationError.String())
		}
		return fmt.Errorf("metadata does not abide by the schema: %v", strings.Join(details, "; "))
	}
	return nil
}

// findMetadataFiles walks searchPath recursively and collects every file with
// the given name, sorted for deterministic discovery order.
func findMetadataFiles(fileName, searchPath string) ([]string, error) {
	searchPath, err := canonicalPath(searchPath)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(searchPath)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%v is not a directory", searchPath)
	}
	found := make([]string, 0)
	err = filepath.WalkDir(searchPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			Logger.Warnf("error walking %v: %v", path, err)
			return nil
		}
		if !entry.IsDir() && entry.Name() == fileName {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(found)
	return found, nil
}

func parseBenchmarkMetadata(schema *gojsonschema.Schema, jsonPath string, defaults BenchmarkDefaults) (Benchmark, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Benchmark{}, err
	}
	if err := validateMetadata(schema, data); err != nil {
		return Benchmark{}, err
	}
	var partial partialBenchmark
	if err := json.Unmarshal(data, &partial); err != nil {
		return Benchmark{}, err
	}

	basePath := filepath.Dir(jsonPath)
	contract, err := canonicalPath(filepath.Join(basePath, partial.Contract))
	if err != nil {
		return Benchmark{}, err
	}
	buildContext := basePath
	if partial.BuildContext != nil {
		buildContext, err = canonicalPath(filepath.Join(basePath, *partial.BuildContext))
		if err != nil {
			return Benchmark{}, err
		}
	}

	benchmark := Benchmark{
		Name:         partial.Name,
		SolcVersion:  defaults.SolcVersion,
		NumRuns:      defaults.NumRuns,
		Contract:     contract,
		BuildContext: buildContext,
		Calldata:     defaults.Calldata,
	}
	if partial.SolcVersion != nil {
		benchmark.SolcVersion = *partial.SolcVersion
	}
	if partial.NumRuns != nil {
		benchmark.NumRuns = *partial.NumRuns
	}
	if partial.Calldata != nil {
		benchmark.Calldata = *partial.Calldata
	}
	if benchmark.NumRuns <= 0 {
		return Benchmark{}, fmt.Errorf("benchmark %v has non-positive num-runs %v", benchmark.Name, benchmark.NumRuns)
	}
	return benchmark, nil
}

func parseRunnerMetadata(schema *gojsonschema.Schema, jsonPath string) (Runner, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Runner{}, err
	}
	if err := validateMetadata(schema, data); err != nil {
		return Runner{}, err
	}
	var runner Runner
	if err := json.Unmarshal(data, &runner); err != nil {
		return Runner{}, err
	}
	entry, err := canonicalPath(filepath.Join(filepath.Dir(jsonPath), runner.Entry))
	if err != nil {
		return Runner{}, err
	}
	runner.Entry = entry
	return runner, nil
}

// FindBenchmarks discovers, validates and resolves benchmark metadata files
// under searchPath. Files that fail validation are skipped with a warning;
// an empty result set and duplicate names are fatal.
func FindBenchmarks(fileName, schemaPath, searchPath string, defaults BenchmarkDefaults) ([]Benchmark, error) {
	schema, err := loadSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	paths, err := findMetadataFiles(fileName, searchPath)
	if err != nil {
		return nil, err
	}
	benchmarks := make([]Benchmark, 0, len(paths))
	for _, path := range paths {
		benchmark, err := parseBenchmarkMetadata(schema, path, defaults)
		if err != nil {
			Logger.Warnf("error parsing benchmark metadata %v: %v", path, err)
			continue
		}
		benchmarks = append(benchmarks, benchmark)
	}
	if len(benchmarks) == 0 {
		return nil, fmt.Errorf("no benchmarks found in %v", searchPath)
	}
	if err := ensureUniqueNames("benchmark", benchmarkNames(benchmarks)); err != nil {
		return nil, err
	}
	Logger.Infof("found %v benchmarks: %v", len(benchmarks), strings.Join(benchmarkNames(benchmarks), ", "))
	return benchmarks, nil
}

// FindRunners discovers and validates runner metadata files under searchPath.
func FindRunners(fileName, schemaPath, searchPath string) ([]Runner, error) {
	schema, err := loadSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	paths, err := findMetadataFiles(fileName, searchPath)
	if err != nil {
		return nil, err
	}
	runners := make([]Runner, 0, len(paths))
	for _, path := range paths {
		runner, err := parseRunnerMetadata(schema, path)
		if err != nil {
			Logger.Warnf("error parsing runner metadata %v: %v", path, err)
			continue
		}
		runners = append(runners, runner)
	}
	if len(runners) == 0 {
		return nil, fmt.Errorf("no runners found in %v", searchPath)
	}
	if err := ensureUniqueNames("runner", runnerNames(runners)); err != nil {
		return nil, err
	}
	Logger.Infof("found %v runners: %v", len(runners), strings.Join(runnerNames(runners), ", "))
	return runners, nil
}

func benchmarkNames(benchmarks []Benchmark) []string {
	names := make([]string, 0, len(benchmarks))
	for _, benchmark := range benchmarks {
		names = append(names, benchmark.Name)
	}
	return names
}

func runnerNames(runners []Runner) []string {
	names := make([]string, 0, len(runners))
	for _, runner := range runners {
		names = append(names, runner.Name)
	}
	return names
}

func ensureUniqueNames(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return fmt.Errorf("found duplicate %v name: %v", kind, name)
		}
		seen[name] = true
	}
	return nil
}

// filterByNames keeps only the requested names; requesting an unknown name is
// fatal. An empty request keeps everything. The result is sorted by name.
func filterByNames(kind string, known []string, requested []string) ([]int, error) {
	indexes := make([]int, 0, len(known))
	if len(requested) == 0 {
		for i := range known {
			indexes = append(indexes, i)
		}
	} else {
		unknown := make([]string, 0)
		seen := make(map[string]bool, len(requested))
		for _, name := range requested {
			if seen[name] {
				continue
			}
			seen[name] = true
			index := slices.Index(known, name)
			if index < 0 {
				unknown = append(unknown, name)
			} else {
				indexes = append(indexes, index)
			}
		}
		if len(unknown) > 0 {
			return nil, fmt.Errorf("unknown %v(s): %v", kind, strings.Join(unknown, ", "))
		}
	}
	slices.SortFunc(indexes, func(a, b int) int { return strings.Compare(known[a], known[b]) })
	return indexes, nil
}

func FilterBenchmarks(benchmarks []Benchmark, requested []string) ([]Benchmark, error) {
	indexes, err := filterByNames("benchmark", benchmarkNames(benchmarks), requested)
	if err != nil {
		return nil, err
	}
	filtered := make([]Benchmark, 0, len(indexes))
	for _, index := range indexes {
		filtered = append(filtered, benchmarks[index])
	}
	return filtered, nil
}

func FilterRunners(runners []Runner, requested []string) ([]Runner, error) {
	indexes, err := filterByNames("runner", runnerNames(runners), requested)
	if err != nil {
		return nil, err
	}
	filtered := make([]Runner, 0, len(indexes))
	for _, index := range indexes {
		filtered = append(filtered, runners[index])
	}
	return filtered, nil
}
