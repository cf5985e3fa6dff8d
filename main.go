package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func StringEnv(key string, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func IntEnv(key string, def int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

type cliConfig struct {
	logLevel                string
	benchmarkSearchPath     string
	benchmarks              []string
	runnerSearchPath        string
	runners                 []string
	outputPath              string
	outputFileName          string
	dockerExecutable        string
	benchmarkMetadataSchema string
	benchmarkMetadataName   string
	runnerMetadataSchema    string
	runnerMetadataName      string
	defaultSolcVersion      string
	defaultNumRuns          int
	defaultCalldata         string
	forceBuild              bool
	parallel                bool
	upload                  bool
}

func newRootCmd() *cobra.Command {
	var config cliConfig
	cmd := &cobra.Command{
		Use:           "evm-bench",
		Short:         "EVM benchmark matrix orchestrator",
		Long:          "evm-bench builds every discovered benchmark contract once, executes it on every discovered EVM runner and renders a ranked comparison table of the timings.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), config)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&config.logLevel, "log-level", StringEnv("LOG_LEVEL", "INFO"), "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.StringVar(&config.benchmarkSearchPath, "benchmark-search-path", "./benchmarks", "Base path for benchmark metadata searching")
	flags.StringSliceVar(&config.benchmarks, "benchmarks", nil, "Names of benchmarks to run (default: all)")
	flags.StringVarP(&config.runnerSearchPath, "runner-search-path", "r", "./runners", "Base path for runner metadata searching")
	flags.StringSliceVar(&config.runners, "runners", nil, "Names of runners to use (default: all)")
	flags.StringVarP(&config.outputPath, "output-path", "o", "./outputs", "Output path for build artifacts and results")
	flags.StringVar(&config.outputFileName, "output-file-name", "", "Name of the results file, will not overwrite (default: timestamp-derived)")
	flags.StringVar(&config.dockerExecutable, "docker-executable", "", "Path to a Docker executable (used for solc)")
	flags.StringVar(&config.benchmarkMetadataSchema, "benchmark-metadata-schema", "./benchmarks/schema.json", "Path to benchmark metadata schema")
	flags.StringVar(&config.benchmarkMetadataName, "benchmark-metadata-name", "benchmark.evm-bench.json", "Name of benchmark metadata file to search for")
	flags.StringVar(&config.runnerMetadataSchema, "runner-metadata-schema", "./runners/schema.json", "Path to runner metadata schema")
	flags.StringVar(&config.runnerMetadataName, "runner-metadata-name", "runner.evm-bench.json", "Name of runner metadata file to search for")
	flags.StringVar(&config.defaultSolcVersion, "default-solc-version", StringEnv("DEFAULT_SOLC_VERSION", "stable"), "Default solc version if none specified in the benchmark metadata")
	flags.IntVar(&config.defaultNumRuns, "default-num-runs", IntEnv("DEFAULT_NUM_RUNS", 10), "Default number of runs if none specified in the benchmark metadata")
	flags.StringVar(&config.defaultCalldata, "default-calldata", StringEnv("DEFAULT_CALLDATA", ""), "Default calldata hex if none specified in the benchmark metadata")
	flags.BoolVar(&config.forceBuild, "force-build", false, "Always build benchmarks, even if they are already built")
	flags.BoolVar(&config.parallel, "parallel", false, "Run the benchmark loop of each runner concurrently")
	flags.BoolVar(&config.upload, "upload", false, "Upload results to a remote libsql database (needs TURSO_* env)")

	return cmd
}

func runBatch(ctx context.Context, config cliConfig) error {
	SetLogLevel(config.logLevel)

	info := HostStat()
	Logger.Infof("host stat: %+v", info)

	dockerExecutable, err := ValidateExecutable("docker", config.dockerExecutable)
	if err != nil {
		return err
	}

	defaultCalldata, err := ParseCalldata(config.defaultCalldata)
	if err != nil {
		return err
	}

	benchmarks, err := FindBenchmarks(
		config.benchmarkMetadataName,
		config.benchmarkMetadataSchema,
		config.benchmarkSearchPath,
		BenchmarkDefaults{
			SolcVersion: config.defaultSolcVersion,
			NumRuns:     config.defaultNumRuns,
			Calldata:    defaultCalldata,
		},
	)
	if err != nil {
		return err
	}
	benchmarks, err = FilterBenchmarks(benchmarks, config.benchmarks)
	if err != nil {
		return err
	}

	runners, err := FindRunners(config.runnerMetadataName, config.runnerMetadataSchema, config.runnerSearchPath)
	if err != nil {
		return err
	}
	runners, err = FilterRunners(runners, config.runners)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.outputPath, 0o755); err != nil {
		return err
	}
	outputsPath, err := canonicalPath(config.outputPath)
	if err != nil {
		return err
	}

	engine := &BuildEngine{
		DockerExecutable: dockerExecutable,
		BuildsPath:       filepath.Join(outputsPath, "build"),
	}
	built, err := engine.BuildAll(ctx, benchmarks, config.forceBuild)
	if err != nil {
		return err
	}

	executor := &ExecutionEngine{Parallel: config.parallel}
	matrix := executor.RunMatrix(ctx, built, runners)

	results := NewResultsFormatted(benchmarks, runners, matrix)
	resultFilePath, err := RecordResults(filepath.Join(outputsPath, "results"), config.outputFileName, results)
	if err != nil {
		return err
	}
	if err := PrintResults(resultFilePath); err != nil {
		return err
	}

	if config.upload {
		storage := &Storage{
			OrgName:   StringEnv("TURSO_ORG_NAME", ""),
			GroupName: StringEnv("TURSO_GROUP_NAME", "evm-bench"),
			ApiToken:  StringEnv("TURSO_API_TOKEN", ""),
			AuthToken: StringEnv("TURSO_AUTH_TOKEN", ""),
		}
		if !storage.Enabled() {
			return fmt.Errorf("upload requested but TURSO_ORG_NAME/TURSO_API_TOKEN/TURSO_AUTH_TOKEN are not configured")
		}
		if err := UploadMatrix(storage, info, results); err != nil {
			return fmt.Errorf("failed to upload results: %w", err)
		}
	}

	return nil
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		Logger.Fatalf("%v", err)
	}
}
