package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const benchmarkSchema = `{
	"type": "object",
	"required": ["name", "contract"],
	"properties": {
		"name": {"type": "string"},
		"contract": {"type": "string"}
	}
}`

const runnerSchema = `{
	"type": "object",
	"required": ["name", "entry"],
	"properties": {
		"name": {"type": "string"},
		"entry": {"type": "string"}
	}
}`

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.Nil(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFindBenchmarks(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	writeFile(t, schemaPath, benchmarkSchema)
	writeFile(t, filepath.Join(dir, "erc20", "ERC20.sol"), "contract ERC20 {}")
	writeFile(t, filepath.Join(dir, "erc20", "benchmark.evm-bench.json"),
		`{"name": "erc20", "contract": "ERC20.sol", "num-runs": 5, "calldata": "0x30627b7c"}`)
	writeFile(t, filepath.Join(dir, "hashes", "Hashes.sol"), "contract Hashes {}")
	writeFile(t, filepath.Join(dir, "hashes", "benchmark.evm-bench.json"),
		`{"name": "hashes", "contract": "Hashes.sol"}`)

	defaults := BenchmarkDefaults{SolcVersion: "stable", NumRuns: 10}
	benchmarks, err := FindBenchmarks("benchmark.evm-bench.json", schemaPath, dir, defaults)
	require.Nil(t, err)
	require.Len(t, benchmarks, 2)

	byName := make(map[string]Benchmark)
	for _, benchmark := range benchmarks {
		byName[benchmark.Name] = benchmark
	}

	erc20 := byName["erc20"]
	require.Equal(t, 5, erc20.NumRuns)
	require.Equal(t, "stable", erc20.SolcVersion)
	require.Equal(t, Calldata{0x30, 0x62, 0x7b, 0x7c}, erc20.Calldata)
	expectedContract, err := canonicalPath(filepath.Join(dir, "erc20", "ERC20.sol"))
	require.Nil(t, err)
	require.Equal(t, expectedContract, erc20.Contract)
	require.Equal(t, filepath.Dir(expectedContract), erc20.BuildContext)

	hashes := byName["hashes"]
	require.Equal(t, 10, hashes.NumRuns)
	require.Empty(t, hashes.Calldata)
}

func TestFindBenchmarksSkipsInvalidMetadata(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	writeFile(t, schemaPath, benchmarkSchema)
	writeFile(t, filepath.Join(dir, "good", "Good.sol"), "contract Good {}")
	writeFile(t, filepath.Join(dir, "good", "benchmark.evm-bench.json"),
		`{"name": "good", "contract": "Good.sol"}`)
	writeFile(t, filepath.Join(dir, "bad", "benchmark.evm-bench.json"),
		`{"contract": 42}`)
	writeFile(t, filepath.Join(dir, "missing", "benchmark.evm-bench.json"),
		`{"name": "missing", "contract": "DoesNotExist.sol"}`)

	benchmarks, err := FindBenchmarks("benchmark.evm-bench.json", schemaPath, dir, BenchmarkDefaults{SolcVersion: "stable", NumRuns: 1})
	require.Nil(t, err)
	require.Len(t, benchmarks, 1)
	require.Equal(t, "good", benchmarks[0].Name)
}

func TestFindBenchmarksDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	writeFile(t, schemaPath, benchmarkSchema)
	for _, sub := range []string{"first", "second"} {
		writeFile(t, filepath.Join(dir, sub, "Contract.sol"), "contract C {}")
		writeFile(t, filepath.Join(dir, sub, "benchmark.evm-bench.json"),
			`{"name": "same", "contract": "Contract.sol"}`)
	}

	_, err := FindBenchmarks("benchmark.evm-bench.json", schemaPath, dir, BenchmarkDefaults{SolcVersion: "stable", NumRuns: 1})
	require.ErrorContains(t, err, "duplicate benchmark name")
}

func TestFindRunners(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	writeFile(t, schemaPath, runnerSchema)
	writeFile(t, filepath.Join(dir, "revm", "entry.sh"), "#!/bin/sh\n")
	writeFile(t, filepath.Join(dir, "revm", "runner.evm-bench.json"),
		`{"name": "revm", "entry": "entry.sh"}`)

	runners, err := FindRunners("runner.evm-bench.json", schemaPath, dir)
	require.Nil(t, err)
	require.Len(t, runners, 1)
	require.Equal(t, "revm", runners[0].Name)
	expectedEntry, err := canonicalPath(filepath.Join(dir, "revm", "entry.sh"))
	require.Nil(t, err)
	require.Equal(t, expectedEntry, runners[0].Entry)
}

func TestFindRunnersNoneFound(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	writeFile(t, schemaPath, runnerSchema)

	_, err := FindRunners("runner.evm-bench.json", schemaPath, dir)
	require.ErrorContains(t, err, "no runners found")
}

func TestFilterBenchmarks(t *testing.T) {
	benchmarks := []Benchmark{{Name: "c"}, {Name: "a"}, {Name: "b"}}

	filtered, err := FilterBenchmarks(benchmarks, nil)
	require.Nil(t, err)
	require.Equal(t, []string{"a", "b", "c"}, benchmarkNames(filtered))

	filtered, err = FilterBenchmarks(benchmarks, []string{"c", "a"})
	require.Nil(t, err)
	require.Equal(t, []string{"a", "c"}, benchmarkNames(filtered))

	// Repeating a name must not schedule the benchmark twice.
	filtered, err = FilterBenchmarks(benchmarks, []string{"a", "a", "b"})
	require.Nil(t, err)
	require.Equal(t, []string{"a", "b"}, benchmarkNames(filtered))

	_, err = FilterBenchmarks(benchmarks, []string{"a", "nope"})
	require.ErrorContains(t, err, "unknown benchmark(s): nope")
}

func TestFilterRunnersUnknown(t *testing.T) {
	runners := []Runner{{Name: "revm"}, {Name: "geth"}}
	_, err := FilterRunners(runners, []string{"evmone"})
	require.ErrorContains(t, err, "unknown runner(s): evmone")
}

func TestParseCalldata(t *testing.T) {
	calldata, err := ParseCalldata("0x30627b7c")
	require.Nil(t, err)
	require.Equal(t, Calldata{0x30, 0x62, 0x7b, 0x7c}, calldata)

	calldata, err = ParseCalldata("30627b7c")
	require.Nil(t, err)
	require.Equal(t, Calldata{0x30, 0x62, 0x7b, 0x7c}, calldata)

	calldata, err = ParseCalldata("")
	require.Nil(t, err)
	require.Empty(t, calldata)

	_, err = ParseCalldata("0xzz")
	require.NotNil(t, err)
}

func TestCalldataJSONRoundTrip(t *testing.T) {
	encoded, err := json.Marshal(Calldata{0x30, 0x62})
	require.Nil(t, err)
	require.Equal(t, `"0x3062"`, string(encoded))

	var decoded Calldata
	require.Nil(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, Calldata{0x30, 0x62}, decoded)

	require.Nil(t, json.Unmarshal([]byte(`"3062"`), &decoded))
	require.Equal(t, Calldata{0x30, 0x62}, decoded)
}
