package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lun/internal/cachestore"
	"lun/internal/config"
	"lun/internal/logging"
	"lun/internal/pipeline"
	"lun/internal/tool"
	"lun/internal/vcsgit"
)

var (
	configPath string
	checkFlag  bool
	formatFlag bool
	fixFlag    bool
	stagedFlag bool
	dryRunFlag bool
	noBatchFlag bool
	ninjaFlag  bool
	watchFlag  bool
	onlyFiles  []string
	skipFiles  []string
	onlyTools  []string
	skipTools  []string
	noCacheFlag bool
	noRefsFlag bool
	freshFlag  bool
	noMtimeFlag bool
	carefulFlag bool
	cacheSizeFlag int64
	colorFlag  string
	allowFlag  []string
	warnFlag   []string
	denyFlag   []string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "lun",
	Short: "Lūn - incremental linter and formatter dispatcher",
	Long: `Lūn runs a project's configured linters and formatters, skipping
files whose content or metadata haven't changed since the last
successful run, and batching the rest across available cores.`,
	RunE: runRun,
}

// runCmd is the explicit `lun run` form of the root command's action;
// it inherits every persistent flag bound in init.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the configured linters and formatters",
	RunE:  runRun,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to the project root (default: current directory)")
	flags.BoolVar(&checkFlag, "check", false, "run formatters in check mode instead of writing changes")
	flags.BoolVar(&formatFlag, "format", false, "restrict this run to formatters")
	flags.BoolVar(&fixFlag, "fix", false, "run linters in fix mode where supported")
	flags.BoolVar(&stagedFlag, "staged", false, "only consider files staged in the VCS index")
	flags.BoolVar(&dryRunFlag, "dry-run", false, "print the commands that would run without executing them")
	flags.BoolVar(&noBatchFlag, "no-batch", false, "invoke each file individually instead of LPT-packed batches")
	flags.BoolVar(&ninjaFlag, "ninja", false, "accepted but no Ninja build file is emitted; prints a notice and runs tools directly")
	flags.BoolVar(&watchFlag, "watch", false, "accepted and checked against --ninja; no watch loop is run")
	flags.StringArrayVar(&onlyFiles, "only-files", nil, "restrict matched files to this glob (repeatable)")
	flags.StringArrayVar(&skipFiles, "skip-files", nil, "exclude matched files matching this glob (repeatable)")
	flags.StringArrayVar(&onlyTools, "only-tool", nil, "restrict this run to this tool name (repeatable)")
	flags.StringArrayVar(&skipTools, "skip-tool", nil, "exclude this tool name from the run (repeatable)")
	flags.BoolVar(&noCacheFlag, "no-cache", false, "bypass the Skip Oracle entirely")
	flags.BoolVar(&noRefsFlag, "no-refs", false, "disable the VCS-ref tier of the Skip Oracle")
	flags.BoolVar(&freshFlag, "fresh", false, "treat every file as changed and skip all cache tiers")
	flags.BoolVar(&noMtimeFlag, "no-mtime", false, "disable the mtime tier of the Skip Oracle")
	flags.BoolVar(&carefulFlag, "careful", false, "fold each tool's --version output into its cache key")
	flags.Int64Var(&cacheSizeFlag, "cache-size", 0, "cache eviction budget in bytes (0: use configured default)")
	flags.StringVar(&colorFlag, "color", "auto", "color mode passed through the {{color}} command placeholder")
	flags.StringArrayVarP(&allowFlag, "allow", "A", nil, "demote a warning name to allow (repeatable)")
	flags.StringArrayVarP(&warnFlag, "warn", "W", nil, "set a warning name to warn (repeatable)")
	flags.StringArrayVarP(&denyFlag, "deny", "D", nil, "escalate a warning name to deny (repeatable)")
	flags.BoolVarP(&verboseFlag, "verbose", "v", false, "explain why files were trusted via VCS-ref identity")

	rootCmd.AddCommand(runCmd, cleanCmd, cacheCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := config.ValidateFlags(watchFlag, ninjaFlag); err != nil {
		return err
	}

	root := configPath
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		root = wd
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	cfg.Careful = cfg.Careful || carefulFlag
	if cacheSizeFlag > 0 {
		cfg.CacheSize = cacheSizeFlag
	}
	if cfg.Cores < 1 {
		cfg.Cores = 1
	}
	cfg.Allow = append(cfg.Allow, allowFlag...)
	cfg.Warn = append(cfg.Warn, warnFlag...)
	cfg.Deny = append(cfg.Deny, denyFlag...)

	logger := logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.InfoLevel})

	store, err := cachestore.Open(root+"/.lun/cache", logger)
	if err != nil {
		return err
	}

	vcs, err := vcsgit.New(root)
	if err != nil {
		logger.Warn("VCS adapter unavailable, ref tier disabled", map[string]interface{}{"error": err.Error()})
		vcs = nil
	}

	mode := tool.ModeNormal
	switch {
	case checkFlag:
		mode = tool.ModeCheck
	case fixFlag:
		mode = tool.ModeFix
	}

	if ninjaFlag {
		fmt.Fprintln(cmd.OutOrStdout(), "ninja emission is delegated to an external emitter; running directly instead")
	}

	specs := config.ToSpecs(cfg)
	var vcsAdapter vcsgit.Adapter
	if vcs != nil {
		vcsAdapter = vcs
	}
	pl := pipeline.New(root, cfg, store, vcsAdapter, logger)

	opts := pipeline.RunOptions{
		Mode:       mode,
		FormatOnly: formatFlag,
		Color:      colorFlag,
		DryRun:     dryRunFlag,
		NoBatch:    noBatchFlag,
		OnlyFiles:  onlyFiles,
		SkipFiles:  skipFiles,
		OnlyTools:  onlyTools,
		SkipTools:  skipTools,
		Staged:     stagedFlag,
		NoCache:    noCacheFlag,
		NoRefs:     noRefsFlag,
		Fresh:      freshFlag,
		NoMtime:    noMtimeFlag,
		Verbose:    verboseFlag,
	}

	exitCode, err := pl.Run(context.Background(), specs, opts, os.Stdout)
	if err != nil {
		return err
	}

	for _, ev := range pl.Warns.Events() {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", ev.Level, ev.Name, ev.Message)
	}

	if exitCode != pipeline.ExitSuccess {
		os.Exit(int(exitCode))
	}
	return nil
}
