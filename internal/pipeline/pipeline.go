// Package pipeline is the top-level orchestrator that ties every other
// component together for one run: discover files, fingerprint,
// consult the skip oracle, batch the misses, execute, commit, and
// aggregate an exit status. A struct wired once at startup with its
// collaborators, then a single Run method driving the whole request.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"lun/internal/batcher"
	"lun/internal/cachestore"
	"lun/internal/config"
	"lun/internal/executor"
	"lun/internal/fileset"
	"lun/internal/fingerprint"
	"lun/internal/logging"
	"lun/internal/matcher"
	"lun/internal/oracle"
	"lun/internal/tool"
	"lun/internal/vcsdiag"
	"lun/internal/vcsgit"
	"lun/internal/warn"
)

// ExitCode is the process exit status contract: 0 on success, 1 when a
// tool failed or a deny-level warning fired, 2 on config/usage error.
type ExitCode int

const (
	ExitSuccess    ExitCode = 0
	ExitToolFailed ExitCode = 1
	ExitUsageError ExitCode = 2
)

// RunOptions carries every CLI flag that varies a single `lun run`
// invocation, independent of the resolved configuration.
type RunOptions struct {
	Mode      tool.Mode
	FormatOnly bool // --format: restrict to formatters
	Color     string
	DryRun    bool
	NoBatch   bool
	OnlyFiles []string
	SkipFiles []string
	OnlyTools []string
	SkipTools []string
	Staged    bool
	NoCache   bool
	NoRefs    bool
	Fresh     bool
	NoMtime   bool
	Verbose   bool
}

// Pipeline wires the components a run needs.
type Pipeline struct {
	Root    string
	Config  *config.Config
	Store   *cachestore.Store
	VCS     vcsgit.Adapter
	Matcher *matcher.Matcher
	Exec    *executor.Executor
	Warns   *warn.Table
	Logger  *logging.Logger
}

// New builds a Pipeline from its resolved collaborators.
func New(root string, cfg *config.Config, store *cachestore.Store, vcs vcsgit.Adapter, logger *logging.Logger) *Pipeline {
	warns := warn.NewTable(cfg.Allow, cfg.Warn, cfg.Deny)
	return &Pipeline{
		Root:    root,
		Config:  cfg,
		Store:   store,
		VCS:     vcs,
		Matcher: matcher.New(root, vcs, logger),
		Exec:    executor.New(store, logger, warns),
		Warns:   warns,
		Logger:  logger,
	}
}

// Run executes every tool in specs that survives opts's mode and
// only/skip-tool filters, in declared order, and returns the process
// exit status.
func (p *Pipeline) Run(ctx context.Context, specs []*tool.Spec, opts RunOptions, stdout *os.File) (ExitCode, error) {
	selected, err := p.selectTools(specs, opts)
	if err != nil {
		return ExitUsageError, err
	}

	anyToolFailed := false
	now := time.Now()

	for _, t := range selected {
		failed, err := p.runTool(ctx, t, opts, stdout, now)
		if err != nil {
			return ExitUsageError, err
		}
		if failed {
			anyToolFailed = true
		}
	}

	if !opts.DryRun && !opts.NoCache {
		evicted, err := p.Store.GC(p.Config.CacheSize, cachestore.DefaultRetention, now)
		if err != nil {
			p.Logger.Warn("cache gc failed", map[string]interface{}{"error": err.Error()})
		} else if evicted > 0 {
			p.Warns.Emit(warn.CacheFull, fmt.Sprintf("cache exceeded its %d byte budget, evicted %d entries", p.Config.CacheSize, evicted))
		}
		if st := p.Store.Stats(); p.Config.CacheSize > 0 {
			p.Warns.Emit(warn.CacheUsage, fmt.Sprintf("cache using %d of %d bytes", st.TotalBytes, p.Config.CacheSize))
		}
		if err := p.Store.Flush(); err != nil {
			p.Logger.Warn("cache index flush failed", map[string]interface{}{"error": err.Error()})
		}
	}

	if anyToolFailed || p.Warns.HasDeny() {
		return ExitToolFailed, nil
	}
	return ExitSuccess, nil
}

// selectTools applies --format, --only-tool, and --skip-tool,
// rejecting any --only-tool/--skip-tool name matching no configured
// tool as a usage error.
func (p *Pipeline) selectTools(specs []*tool.Spec, opts RunOptions) ([]*tool.Spec, error) {
	byName := make(map[string]bool, len(specs))
	for _, t := range specs {
		byName[t.DisplayName()] = true
	}
	for _, name := range opts.OnlyTools {
		if !byName[name] {
			return nil, config.FormatUnknownToolError("--only-tool", name)
		}
	}
	for _, name := range opts.SkipTools {
		if !byName[name] {
			return nil, config.FormatUnknownToolError("--skip-tool", name)
		}
	}

	only := toSet(opts.OnlyTools)
	skip := toSet(opts.SkipTools)

	selected := make([]*tool.Spec, 0, len(specs))
	for _, t := range specs {
		if !t.IncludedInMode(opts.FormatOnly) {
			continue
		}
		if len(only) > 0 && !only[t.DisplayName()] {
			continue
		}
		if skip[t.DisplayName()] {
			continue
		}
		selected = append(selected, t)
	}
	return selected, nil
}

// runTool matches, fingerprints, filters through the Skip Oracle,
// batches, and executes one tool, returning whether it should count
// against the run's exit status.
func (p *Pipeline) runTool(ctx context.Context, t *tool.Spec, opts RunOptions, stdout *os.File, now time.Time) (bool, error) {
	files, err := p.Matcher.Match(ctx, t, matcher.Options{
		OnlyFiles:    opts.OnlyFiles,
		SkipFiles:    opts.SkipFiles,
		Staged:       opts.Staged,
		GlobalIgnore: p.Config.Ignore,
	})
	if err != nil {
		return false, err
	}
	if len(files) == 0 {
		p.Warns.Emit(warn.NoFiles, "no files matched for "+t.DisplayName())
		return false, nil
	}

	mtimeEnabled := p.Config.Mtime && !opts.NoMtime && !opts.Fresh
	refsEnabled := !opts.NoRefs && !opts.Fresh && len(p.Config.Refs) > 0 && p.VCS != nil
	useOracle := !opts.NoCache && !opts.Fresh

	var refs []string
	if refsEnabled {
		refs = p.Config.Refs
	}
	orc := oracle.New(p.Store, p.VCS, refs, mtimeEnabled, p.Warns, now, opts.DryRun)

	type keyPair struct {
		mkey, ckey fingerprint.Key
	}
	keys := make(map[string]keyPair, len(files))

	toolVersion, versionPresent := "", false
	if p.Config.Careful {
		toolVersion, versionPresent = probeVersion(ctx, t)
		if !versionPresent {
			p.Warns.Emit(warn.Careful, t.DisplayName()+": --version probe failed, proceeding without it")
		}
	}

	env := fingerprint.CollectEnv(t.EnvPrefix())
	configMetas := fingerprint.StatConfigFiles(joinDir(p.Root, t.Dir), t.Configs)
	p.emitConfigWarnings(t, configMetas)
	cmdStr := fingerprint.EffectiveCmd(t, opts.Mode, opts.Color)

	var miss []*fileset.File
	for _, f := range files {
		in := fingerprint.Inputs{
			Path:           f.Path,
			Stat:           f.Stat,
			Cmd:            cmdStr,
			Dir:            t.Dir,
			ConfigFiles:    configMetas,
			Env:            env,
			Careful:        p.Config.Careful,
			ToolVersion:    toolVersion,
			VersionPresent: versionPresent,
		}

		var mkey fingerprint.Key
		if mtimeEnabled {
			mtime, err := f.Mtime()
			if err != nil {
				p.Logger.Warn("stat failed, dropping file", map[string]interface{}{"path": f.Path, "error": err.Error()})
				continue
			}
			if mtime.After(now) {
				p.Warns.Emit(warn.Mtime, f.Path+": file mtime is in the future")
			}
			mkey = fingerprint.MKey(in, mtime)
		}

		hash, err := f.ContentHash()
		if err != nil {
			p.Logger.Warn("hash failed, dropping file", map[string]interface{}{"path": f.Path, "error": err.Error()})
			continue
		}
		ckey := fingerprint.CKey(in, hash)
		keys[f.Path] = keyPair{mkey: mkey, ckey: ckey}

		if !useOracle {
			miss = append(miss, f)
			continue
		}
		decision, err := orc.Evaluate(ctx, f.Path, mkey, ckey, false)
		if err != nil {
			return false, err
		}
		if !decision.Skip {
			miss = append(miss, f)
		}
	}

	if refsEnabled && opts.Verbose {
		p.renderRefTrusts(ctx, orc.RefTrusts(), stdout)
	}

	if len(miss) == 0 {
		return false, nil
	}

	batches := batcher.Plan(t, miss, p.Config.Cores, opts.NoBatch)
	results := p.Exec.Run(ctx, batches, executor.RunOptions{
		Mode:         opts.Mode,
		Color:        opts.Color,
		DryRun:       opts.DryRun,
		Cores:        p.Config.Cores,
		Careful:      p.Config.Careful,
		WriteEnabled: !opts.NoCache && !opts.Fresh,
	}, func(path string) (fingerprint.Key, fingerprint.Key, bool) {
		kp := keys[path]
		return kp.mkey, kp.ckey, mtimeEnabled
	}, stdout)

	failed := false
	for _, r := range results {
		if r.Outcome == executor.Failure {
			failed = true
		}
	}
	return failed, nil
}

// emitConfigWarnings surfaces a structural problem with a tool's
// declared *.toml config files: missing outright, or present but not
// valid TOML. Non-TOML config files carry no TOMLError and are silent.
func (p *Pipeline) emitConfigWarnings(t *tool.Spec, metas []fingerprint.ConfigFileMeta) {
	for _, cf := range metas {
		if cf.TOMLError == nil {
			continue
		}
		if cf.Present {
			p.Warns.Emit(warn.UnlistedConfig, t.DisplayName()+": config file "+cf.Path+" is present but not valid TOML: "+cf.TOMLError.Error())
		} else {
			p.Warns.Emit(warn.UnlistedConfig, t.DisplayName()+": declared config file "+cf.Path+" is missing")
		}
	}
}

// renderRefTrusts prints why each file trusted via a VCS ref was
// skipped, reading the working-tree bytes and the ref's blob bytes for
// each trusted file so vcsdiag can flag a mid-run drift between them.
func (p *Pipeline) renderRefTrusts(ctx context.Context, trusts []oracle.RefTrust, stdout *os.File) {
	if len(trusts) == 0 {
		return
	}
	workingByPath := make(map[string][]byte, len(trusts))
	blobByPath := make(map[string][]byte, len(trusts))
	for _, t := range trusts {
		if working, err := os.ReadFile(filepath.Join(p.Root, t.Path)); err == nil {
			workingByPath[t.Path] = working
		}
		if p.VCS == nil {
			continue
		}
		if blob, err := p.VCS.BlobAt(ctx, t.Path, t.Ref); err == nil {
			blobByPath[t.Path] = blob
		}
	}
	if out := vcsdiag.Render(trusts, workingByPath, blobByPath); out != "" {
		fmt.Fprint(stdout, out)
	}
}

// probeVersion runs a tool's `--version` and returns its trimmed
// output, used by careful mode to fold the tool's version into its
// fingerprint. A failure is tolerated, not fatal.
func probeVersion(ctx context.Context, t *tool.Spec) (string, bool) {
	fields := strings.Fields(t.Cmd)
	if len(fields) == 0 {
		return "", false
	}
	cmd := exec.CommandContext(ctx, fields[0], "--version")
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func joinDir(root, dir string) string {
	if dir == "" {
		return root
	}
	return fmt.Sprintf("%s/%s", root, dir)
}
