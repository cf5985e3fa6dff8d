package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

// BuildArtifact is the compiled bytecode produced for a benchmark.
type BuildArtifact struct {
	ContractBinPath string
}

type BuiltBenchmark struct {
	Benchmark Benchmark
	Artifact  BuildArtifact
}

// BuildEngine compiles benchmark contracts through a dockerized solc. Output
// is cached per benchmark name: an existing artifact file short-circuits the
// compiler unless force is set. The cache is existence-based, not
// content-based, so a changed source under an unchanged name serves the stale
// artifact until a forced rebuild.
type BuildEngine struct {
	DockerExecutable string
	BuildsPath       string
}

func (e *BuildEngine) BuildAll(ctx context.Context, benchmarks []Benchmark, force bool) ([]BuiltBenchmark, error) {
	Logger.Infof("building %v benchmarks: %v", len(benchmarks), strings.Join(benchmarkNames(benchmarks), ", "))
	built := make([]BuiltBenchmark, 0, len(benchmarks))
	for _, benchmark := range benchmarks {
		artifact, err := e.Build(ctx, benchmark, force)
		if err != nil {
			return nil, fmt.Errorf("failed to build benchmark %v: %w", benchmark.Name, err)
		}
		built = append(built, BuiltBenchmark{Benchmark: benchmark, Artifact: artifact})
	}
	return built, nil
}

// ArtifactPath returns the deterministic output location for a benchmark's
// compiled bytecode: one subdirectory per benchmark name under BuildsPath.
func (e *BuildEngine) ArtifactPath(benchmark Benchmark) string {
	contractName := filepath.Base(benchmark.Contract)
	stem := strings.TrimSuffix(contractName, filepath.Ext(contractName))
	return filepath.Join(e.BuildsPath, benchmark.Name, stem+".bin")
}

func (e *BuildEngine) Build(ctx context.Context, benchmark Benchmark, force bool) (BuildArtifact, error) {
	outDir := filepath.Join(e.BuildsPath, benchmark.Name)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return BuildArtifact{}, err
	}

	binPath := e.ArtifactPath(benchmark)
	if !force {
		if _, err := os.Stat(binPath); err == nil {
			Logger.Infof("benchmark %v already built at %v", benchmark.Name, binPath)
			return BuildArtifact{ContractBinPath: binPath}, nil
		}
	}

	relContract, err := filepath.Rel(benchmark.BuildContext, benchmark.Contract)
	if err != nil || strings.HasPrefix(relContract, "..") {
		return BuildArtifact{}, fmt.Errorf("contract %v is outside of build context %v", benchmark.Contract, benchmark.BuildContext)
	}

	Logger.Infof("building benchmark %v (%v w/ solc@%v)", benchmark.Name, filepath.Base(benchmark.Contract), benchmark.SolcVersion)

	// The compiler sees only the build context and the output directory.
	args := []string{
		"run",
		"-u", fmt.Sprintf("%v:%v", os.Getuid(), os.Getgid()),
		"-v", fmt.Sprintf("%v:/benchmark", benchmark.BuildContext),
		"-v", fmt.Sprintf("%v:/build", outDir),
		fmt.Sprintf("ethereum/solc:%v", benchmark.SolcVersion),
		"-o", "/build",
		"--optimize", "--optimize-runs=1000000",
		"--abi", "--bin", "--bin-runtime", "--overwrite",
		path.Join("/benchmark", filepath.ToSlash(relContract)),
	}
	cmd := exec.CommandContext(ctx, e.DockerExecutable, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return BuildArtifact{}, fmt.Errorf("solc invocation failed: err=%w, out=%v", err, string(output))
	}
	Logger.Debugf("built benchmark %v", benchmark.Name)

	return BuildArtifact{ContractBinPath: binPath}, nil
}
