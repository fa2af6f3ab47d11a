// Package fingerprint computes the mkey and ckey digests identifying a
// (file, tool) pair's cacheable outcome: fixed-width hashes over a
// canonical, length-prefixed byte stream so that no two distinct inputs
// can share a prefix and collide. Uses a fast non-cryptographic digest
// (cespare/xxhash's XXH64) rather than a cryptographic hash, since
// collision resistance against an adversary is not a requirement here.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cespare/xxhash/v2"

	"lun/internal/fileset"
	"lun/internal/tool"
)

// Key is a fixed-width digest identifying a (file, tool) pair's
// cacheable outcome at a given tier.
type Key [8]byte

// String renders the key as a hex digest, suitable as a cache entry's
// filename.
func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(binary.BigEndian.Uint64(k[:])))
}

// absenceMarker is written for an optional field that is not present,
// distinguishing "absent" from "present but empty".
const absenceMarker = 0xFF

const presenceMarker = 0x01

// builder accumulates length-prefixed fields into a canonical byte
// stream, then folds them into an XXH64 digest.
type builder struct {
	h *xxhash.Digest
}

func newBuilder() *builder {
	return &builder{h: xxhash.New()}
}

func (b *builder) writeBytes(data []byte) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	_, _ = b.h.Write(lenBuf[:])
	_, _ = b.h.Write(data)
}

func (b *builder) writeString(s string) {
	b.writeBytes([]byte(s))
}

func (b *builder) writeUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, _ = b.h.Write(buf[:])
}

func (b *builder) writePresent() {
	_, _ = b.h.Write([]byte{presenceMarker})
}

func (b *builder) writeAbsent() {
	_, _ = b.h.Write([]byte{absenceMarker})
}

func (b *builder) writeOptionalString(s string, present bool) {
	if !present {
		b.writeAbsent()
		return
	}
	b.writePresent()
	b.writeString(s)
}

func (b *builder) sum() Key {
	var k Key
	binary.BigEndian.PutUint64(k[:], b.h.Sum64())
	return k
}

// ConfigFileMeta is the metadata of one config file listed on a tool,
// folded into the tool's fingerprint so an edited config invalidates
// every file the tool touches.
type ConfigFileMeta struct {
	Path    string
	Present bool
	Size    int64
	ModTime time.Time

	// TOMLError is set when Path ends in ".toml": non-nil if the file
	// is missing or fails to parse, nil if it parses cleanly. Left nil
	// for non-TOML config files, which get no structural check.
	TOMLError error
}

// errConfigMissing marks a declared *.toml config file that doesn't
// exist, distinct from a present-but-unparsable one.
var errConfigMissing = fmt.Errorf("config file missing")

// StatConfigFiles stats each of a tool's declared config files, in
// declared order, tolerating missing files (absence is itself part of
// the key, per the absence marker). Files named *.toml are additionally
// parsed with github.com/BurntSushi/toml as a structural sanity check.
func StatConfigFiles(dir string, paths []string) []ConfigFileMeta {
	metas := make([]ConfigFileMeta, 0, len(paths))
	for _, p := range paths {
		full := p
		if dir != "" {
			full = dir + "/" + p
		}
		isTOML := strings.HasSuffix(p, ".toml")
		info, err := os.Stat(full)
		if err != nil {
			meta := ConfigFileMeta{Path: p, Present: false}
			if isTOML {
				meta.TOMLError = errConfigMissing
			}
			metas = append(metas, meta)
			continue
		}
		meta := ConfigFileMeta{Path: p, Present: true, Size: info.Size(), ModTime: info.ModTime()}
		if isTOML {
			var doc map[string]interface{}
			if _, err := toml.DecodeFile(full, &doc); err != nil {
				meta.TOMLError = err
			}
		}
		metas = append(metas, meta)
	}
	return metas
}

// EnvVar is one environment variable observed under a tool's prefix.
type EnvVar struct {
	Name  string
	Value string
}

// CollectEnv reads every environment variable whose name starts with
// prefix, sorted lexicographically by name for a stable fingerprint.
func CollectEnv(prefix string) []EnvVar {
	if prefix == "" {
		return nil
	}
	var vars []EnvVar
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				name := kv[:i]
				if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
					vars = append(vars, EnvVar{Name: name, Value: kv[i+1:]})
				}
				break
			}
		}
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}

// Inputs bundles everything besides the file's per-tier extra field
// that feeds a fingerprint.
type Inputs struct {
	Path           string
	Stat           fileset.Stat
	Cmd            string // effective command line after template expansion
	Dir            string // working directory, "" if unset
	ConfigFiles    []ConfigFileMeta
	Env            []EnvVar
	Careful        bool
	ToolVersion    string // stdout of `tool --version`; only read when Careful
	VersionPresent bool
}

func writeCommon(b *builder, in Inputs) {
	b.writeString(in.Path)
	b.writeUint64(uint64(in.Stat.Size))
	b.writeUint64(uint64(in.Stat.UID))
	b.writeUint64(uint64(in.Stat.GID))
	b.writeUint64(uint64(in.Stat.Mode))
	b.writeString(in.Cmd)
	b.writeOptionalString(in.Dir, in.Dir != "")

	b.writeUint64(uint64(len(in.ConfigFiles)))
	for _, cf := range in.ConfigFiles {
		if !cf.Present {
			b.writeAbsent()
			continue
		}
		b.writePresent()
		b.writeUint64(uint64(cf.Size))
		b.writeUint64(uint64(cf.ModTime.UnixNano()))
	}

	b.writeUint64(uint64(len(in.Env)))
	for _, e := range in.Env {
		b.writeString(e.Name)
		b.writeString(e.Value)
	}

	if in.Careful {
		b.writeOptionalString(in.ToolVersion, in.VersionPresent)
	} else {
		b.writeAbsent()
	}
}

// MKey computes the metadata-only key: the common fields plus the
// file's mtime. Does not require reading file content.
func MKey(in Inputs, mtime time.Time) Key {
	b := newBuilder()
	writeCommon(b, in)
	b.writeUint64(uint64(mtime.UnixNano()))
	return b.sum()
}

// CKey computes the content-including key: the common fields plus the
// file's content hash. Requires reading file content.
func CKey(in Inputs, contentHash string) Key {
	b := newBuilder()
	writeCommon(b, in)
	b.writeString(contentHash)
	return b.sum()
}

// EffectiveCmd expands a tool's command template for use as fingerprint
// input and as the literal argv prefix, without appending file
// arguments: those vary per batch and are not part of the (file,tool)
// key, since the files whose bytes are hashed already capture that.
func EffectiveCmd(t *tool.Spec, mode tool.Mode, color string) string {
	return expandPlaceholders(t.CommandFor(mode), color)
}

func expandPlaceholders(cmd, color string) string {
	return strings.ReplaceAll(cmd, "{{color}}", color)
}
