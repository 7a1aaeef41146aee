// Command cairofuzz is the coverage-guided fuzzer's CLI entrypoint. It
// follows the teacher project's cmd/fluxfuzzer/main.go shape: a root
// cobra.Command carrying the flag surface, dispatching into the
// coordinator rather than owning the run loop itself.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cairo-fuzz/cairofuzz/internal/config"
	"github.com/cairo-fuzz/cairofuzz/internal/coordinator"
	"github.com/cairo-fuzz/cairofuzz/internal/sink"
	"github.com/cairo-fuzz/cairofuzz/internal/ui"
	"github.com/cairo-fuzz/cairofuzz/internal/web"
	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

// flagCfg accumulates flag-bound values; run() decides, flag by flag,
// whether each one should override a --config file value (spec.md §6:
// CLI flags always win over the JSON file).
var (
	flagCfg    = config.Default()
	seedFlag   uint64
	configPath string
	tuiMode    bool
	webMode    bool
	webPort    string
)

func main() {
	root := &cobra.Command{
		Use:   "cairofuzz",
		Short: "Coverage-guided fuzzer for a finite-field virtual machine",
		RunE:  run,
	}

	flags := root.Flags()
	flags.IntVar(&flagCfg.Cores, "cores", flagCfg.Cores, "number of worker threads")
	flags.StringVar(&flagCfg.Contract, "contract", "", "path to the JSON artifact")
	flags.StringVar(&flagCfg.Function, "function", "", "name of the function to fuzz")
	flags.StringVar(&flagCfg.Workspace, "workspace", "", "directory for corpus/crash/log output")
	flags.StringVar(&flagCfg.InputFolder, "inputfolder", "", "folder of seed input files")
	flags.StringVar(&flagCfg.CrashFolder, "crashfolder", "", "folder of seed crash files")
	flags.StringVar(&flagCfg.InputFile, "inputfile", "", "single seed input file")
	flags.StringVar(&flagCfg.CrashFile, "crashfile", "", "single seed crash file")
	flags.StringVar(&flagCfg.Dict, "dict", "", "dictionary file of sample field values")
	flags.BoolVar(&flagCfg.Logs, "logs", false, "append each monitor snapshot as a whitespace-separated row to <workspace>/fuzzer.log")
	flags.Uint64Var(&seedFlag, "seed", 0, "PRNG seed (default: current time)")
	flags.Int64Var(&flagCfg.RunTime, "run_time", 0, "stop after this many seconds (0: unbounded)")
	flags.StringVar(&configPath, "config", "", "JSON config file; flags override its values")
	flags.BoolVar(&flagCfg.Replay, "replay", false, "replay mode: execute each input once, no mutation")
	flags.BoolVar(&flagCfg.Minimizer, "minimizer", false, "reserved, drives no code path")
	flags.BoolVar(&flagCfg.Proptesting, "proptesting", false, "reserved, drives no code path")
	flags.Int64Var(&flagCfg.Iter, "iter", -1, "stop after this many fuzz cases (-1: unbounded)")
	flags.BoolVar(&tuiMode, "tui", false, "show a live terminal dashboard (plain monitor lines are still printed to stdout)")
	flags.BoolVar(&webMode, "web", false, "serve a live status dashboard over HTTP")
	flags.StringVar(&webPort, "port", ":9090", "listen address for --web")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := flagCfg
	if configPath != "" {
		fileCfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = overrideWithChangedFlags(fileCfg, cmd)
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = &seedFlag
	}

	co, err := coordinator.New(cfg)
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}

	if tuiMode {
		go ui.RunDashboard(co.Subscribe())
	} else if webMode {
		srv := web.NewServer(co.Subscribe())
		go srv.Start(webPort)
	}

	var code int
	if cfg.Replay {
		inputs, err := loadReplayInputs(cfg)
		if err != nil {
			log.Println(err)
			os.Exit(1)
		}
		code = co.RunReplay(inputs)
	} else {
		code = co.Run()
	}
	os.Exit(code)
	return nil
}

// overrideWithChangedFlags starts from a --config-loaded Config and
// re-applies every flag the user actually passed on the command line, so
// an unset flag never clobbers a value the file supplied.
func overrideWithChangedFlags(fileCfg config.Config, cmd *cobra.Command) config.Config {
	cfg := fileCfg
	changed := cmd.Flags().Changed

	if changed("cores") {
		cfg.Cores = flagCfg.Cores
	}
	if changed("contract") {
		cfg.Contract = flagCfg.Contract
	}
	if changed("function") {
		cfg.Function = flagCfg.Function
	}
	if changed("workspace") {
		cfg.Workspace = flagCfg.Workspace
	}
	if changed("inputfolder") {
		cfg.InputFolder = flagCfg.InputFolder
	}
	if changed("crashfolder") {
		cfg.CrashFolder = flagCfg.CrashFolder
	}
	if changed("inputfile") {
		cfg.InputFile = flagCfg.InputFile
	}
	if changed("crashfile") {
		cfg.CrashFile = flagCfg.CrashFile
	}
	if changed("dict") {
		cfg.Dict = flagCfg.Dict
	}
	if changed("logs") {
		cfg.Logs = flagCfg.Logs
	}
	if changed("run_time") {
		cfg.RunTime = flagCfg.RunTime
	}
	if changed("replay") {
		cfg.Replay = flagCfg.Replay
	}
	if changed("minimizer") {
		cfg.Minimizer = flagCfg.Minimizer
	}
	if changed("proptesting") {
		cfg.Proptesting = flagCfg.Proptesting
	}
	if changed("iter") {
		cfg.Iter = flagCfg.Iter
	}
	return cfg
}

func loadReplayInputs(cfg config.Config) ([]felt.Input, error) {
	switch {
	case cfg.InputFolder != "":
		return sink.LoadFolder(cfg.InputFolder)
	case cfg.InputFile != "":
		return sink.LoadFile(cfg.InputFile)
	default:
		return nil, fmt.Errorf("replay mode requires --inputfolder or --inputfile")
	}
}
