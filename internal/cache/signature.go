// Package cache decides whether a build can be skipped, using a SQLite record
// of previous builds keyed by a deterministic input signature.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// SourceHash is one input file's content hash.
type SourceHash struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Signature captures every input that can change build output.
// Two builds with equal signatures produce identical sites.
type Signature struct {
	ConfigHash string       `json:"config_hash"`
	Sources    []SourceHash `json:"sources"`
	BuildHash  string       `json:"build_hash"`
}

// ComputeSignature hashes the configuration and every file under the given
// directories (missing directories contribute nothing).
func ComputeSignature(cfg any, dirs ...string) (*Signature, error) {
	configHash, err := hashJSON(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}

	var sources []SourceHash
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			raw, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			sum := sha256.Sum256(raw)
			sources = append(sources, SourceHash{
				Path: filepath.ToSlash(p),
				Hash: hex.EncodeToString(sum[:]),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("hash sources in %s: %w", dir, err)
		}
	}

	// Sort for determinism; WalkDir order is lexical per dir but the dirs
	// themselves arrive in caller order.
	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })

	sig := &Signature{ConfigHash: configHash, Sources: sources}
	buildHash, err := hashJSON(struct {
		ConfigHash string       `json:"config_hash"`
		Sources    []SourceHash `json:"sources"`
	}{sig.ConfigHash, sig.Sources})
	if err != nil {
		return nil, fmt.Errorf("hash signature: %w", err)
	}
	sig.BuildHash = buildHash
	return sig, nil
}

func hashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ShortHash abbreviates a build hash for log lines.
func ShortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
