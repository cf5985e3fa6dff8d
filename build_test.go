package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.Nil(t, err)
	return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func TestBuildCacheShortCircuit(t *testing.T) {
	dir := t.TempDir()
	contract := filepath.Join(dir, "Contract.sol")
	writeFile(t, contract, "contract C {}")

	buildsPath := filepath.Join(dir, "build")
	binPath := filepath.Join(buildsPath, "test", "Contract.bin")
	callsPath := filepath.Join(dir, "calls")

	// Compiler stub that records each invocation and deposits the artifact.
	dockerStub := filepath.Join(dir, "docker")
	script := fmt.Sprintf("#!/bin/sh\necho run >> %v\ntouch %v\n", callsPath, binPath)
	require.Nil(t, os.WriteFile(dockerStub, []byte(script), 0o755))

	benchmark := Benchmark{Name: "test", SolcVersion: "stable", NumRuns: 1, Contract: contract, BuildContext: dir}
	engine := &BuildEngine{DockerExecutable: dockerStub, BuildsPath: buildsPath}

	artifact, err := engine.Build(context.Background(), benchmark, false)
	require.Nil(t, err)
	require.Equal(t, binPath, artifact.ContractBinPath)
	require.Equal(t, 1, countLines(t, callsPath))

	artifact, err = engine.Build(context.Background(), benchmark, false)
	require.Nil(t, err)
	require.Equal(t, binPath, artifact.ContractBinPath)
	require.Equal(t, 1, countLines(t, callsPath))

	_, err = engine.Build(context.Background(), benchmark, true)
	require.Nil(t, err)
	require.Equal(t, 2, countLines(t, callsPath))
}

func TestBuildFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	contract := filepath.Join(dir, "Contract.sol")
	writeFile(t, contract, "contract C {}")

	dockerStub := filepath.Join(dir, "docker")
	require.Nil(t, os.WriteFile(dockerStub, []byte("#!/bin/sh\necho 'compilation error' >&2\nexit 1\n"), 0o755))

	benchmark := Benchmark{Name: "broken", SolcVersion: "stable", NumRuns: 1, Contract: contract, BuildContext: dir}
	engine := &BuildEngine{DockerExecutable: dockerStub, BuildsPath: filepath.Join(dir, "build")}

	_, err := engine.BuildAll(context.Background(), []Benchmark{benchmark}, false)
	require.ErrorContains(t, err, "failed to build benchmark broken")
}

func TestBuildRejectsContractOutsideContext(t *testing.T) {
	dir := t.TempDir()
	contract := filepath.Join(dir, "outside", "Contract.sol")
	writeFile(t, contract, "contract C {}")

	benchmark := Benchmark{
		Name:         "escape",
		SolcVersion:  "stable",
		NumRuns:      1,
		Contract:     contract,
		BuildContext: filepath.Join(dir, "context"),
	}
	engine := &BuildEngine{DockerExecutable: "docker", BuildsPath: filepath.Join(dir, "build")}

	_, err := engine.Build(context.Background(), benchmark, false)
	require.ErrorContains(t, err, "outside of build context")
}
