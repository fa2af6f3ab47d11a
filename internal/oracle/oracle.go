// Package oracle implements the skip decision for one (file, tool)
// pair: a strict three-tier ladder (mtime → content → VCS ref) with
// promotion of faster tiers on a slower-tier hit.
package oracle

import (
	"context"
	"time"

	"lun/internal/cachestore"
	"lun/internal/fingerprint"
	"lun/internal/vcsgit"
	"lun/internal/warn"
)

// Decision is the oracle's verdict for one (file, tool) pair.
type Decision struct {
	Skip bool
	// ConfigStale is set when the invalidation corner case applied: a
	// listed config file's metadata changed since some
	// entry in the mtime tier was written, so mtime was treated as
	// disabled for this pair.
	ConfigStale bool
}

// Oracle evaluates the ladder for each pair and performs promotion.
type Oracle struct {
	store    *cachestore.Store
	vcs      vcsgit.Adapter
	refs     []string
	mtimeOn  bool
	warns    *warn.Table
	now      time.Time
	readOnly bool

	trusts []RefTrust
}

// RefTrust records one file skipped on a tier-3 (VCS ref) hit, for
// verbose rendering of why the file was trusted.
type RefTrust struct {
	Path string
	Ref  string
}

// New builds an Oracle. vcs may be nil when no VCS adapter is
// available or --no-refs/--fresh masked the tier; refs may be empty for
// the same reason. readOnly suppresses every cache write (Insert and
// Touch) so a --dry-run evaluation still computes the miss set but
// leaves the store untouched on disk.
func New(store *cachestore.Store, vcs vcsgit.Adapter, refs []string, mtimeOn bool, warns *warn.Table, now time.Time, readOnly bool) *Oracle {
	return &Oracle{store: store, vcs: vcs, refs: refs, mtimeOn: mtimeOn, warns: warns, now: now, readOnly: readOnly}
}

// RefTrusts returns every RefTrust accumulated by Evaluate calls so far.
func (o *Oracle) RefTrusts() []RefTrust {
	return o.trusts
}

// Evaluate runs the ladder for one (file, tool) pair. mkey is only
// consulted (and only needs to have been computed) when mtime is
// enabled for this run; ckey is always required as the fallback and as
// what gets promoted into on a ref hit.
//
// configStale forces the oracle to skip tier 1 even if mtimeOn is true.
func (o *Oracle) Evaluate(ctx context.Context, path string, mkey, ckey fingerprint.Key, configStale bool) (Decision, error) {
	mtimeEnabled := o.mtimeOn && !configStale

	if mtimeEnabled {
		if o.store.Lookup(cachestore.MtimeTier, mkey) == cachestore.Hit {
			if !o.readOnly {
				o.store.Touch(cachestore.MtimeTier, mkey, o.now)
			}
			return Decision{Skip: true}, nil
		}
	}

	if o.store.Lookup(cachestore.ContentTier, ckey) == cachestore.Hit {
		if !o.readOnly {
			o.store.Touch(cachestore.ContentTier, ckey, o.now)
			if mtimeEnabled {
				o.store.Insert(cachestore.MtimeTier, mkey, o.now)
			}
		}
		return Decision{Skip: true, ConfigStale: configStale}, nil
	}

	if o.vcs != nil && len(o.refs) > 0 {
		for _, ref := range o.refs {
			matched, err := o.vcs.FileMatchesRef(ctx, path, ref)
			if err != nil {
				if o.warns != nil {
					o.warns.Emit(warn.Refs, "VCS query failed for "+path+" at "+ref+": "+err.Error())
				}
				continue
			}
			if matched {
				o.trusts = append(o.trusts, RefTrust{Path: path, Ref: ref})
				if !o.readOnly {
					o.store.Insert(cachestore.ContentTier, ckey, o.now)
					if mtimeEnabled {
						o.store.Insert(cachestore.MtimeTier, mkey, o.now)
					}
				}
				return Decision{Skip: true, ConfigStale: configStale}, nil
			}
		}
	}

	return Decision{Skip: false, ConfigStale: configStale}, nil
}
