// Package scan turns source trees and uploaded blobs into FileUnits the
// review engine can schedule. Analysis is cheap and deterministic: language
// by extension, complexity by decision-point density, legacy indicators by
// pattern match.
package scan

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/fsutil"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

const sniffLen = 512

// Scanner walks paths and produces FileUnits within the configured limits.
type Scanner struct {
	cfg    config.ScanConfig
	logger *logging.Logger
}

func NewScanner(cfg config.ScanConfig, logger *logging.Logger) *Scanner {
	return &Scanner{cfg: cfg, logger: logger.WithComponent("scan")}
}

// ScanPath walks root and returns one FileUnit per accepted source file,
// in lexical path order. Names are slash-separated and relative to root.
func (s *Scanner) ScanPath(ctx context.Context, root string) ([]core.FileUnit, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, core.ErrValidation(core.CodeNoFiles, fmt.Sprintf("cannot scan %s", root)).WithCause(err)
	}
	if !info.IsDir() {
		unit, ok, err := s.scanFile(root, filepath.Base(root), info.Size())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, core.ErrValidation(core.CodeNoFiles, fmt.Sprintf("%s is not a reviewable source file", root))
		}
		return []core.FileUnit{unit}, nil
	}

	var units []core.FileUnit
	skipped := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if s.excludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.cfg.MaxFiles > 0 && len(units) >= s.cfg.MaxFiles {
			skipped++
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = d.Name()
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		unit, ok, err := s.scanFile(path, filepath.ToSlash(rel), fi.Size())
		if err != nil {
			s.logger.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		if ok {
			units = append(units, unit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("file limit reached", "limit", s.cfg.MaxFiles, "skipped", skipped)
	}
	if len(units) == 0 {
		return nil, core.ErrValidation(core.CodeNoFiles, fmt.Sprintf("no reviewable source files under %s", root))
	}
	s.logger.Info("scan complete", "root", root, "files", len(units))
	return units, nil
}

// scanFile reads and analyzes one file. ok is false when the file is
// filtered out rather than failed.
func (s *Scanner) scanFile(path, name string, size int64) (core.FileUnit, bool, error) {
	if !s.includedExt(name) {
		return core.FileUnit{}, false, nil
	}
	if s.cfg.MaxFileSizeBytes > 0 && size > s.cfg.MaxFileSizeBytes {
		s.logger.Debug("file exceeds size limit", "path", path, "size", size)
		return core.FileUnit{}, false, nil
	}
	raw, err := fsutil.ReadFileScopedLimit(path, s.cfg.MaxFileSizeBytes)
	if err != nil {
		return core.FileUnit{}, false, err
	}
	if isBinary(raw) {
		return core.FileUnit{}, false, nil
	}
	return FromContent(name, string(raw)), true, nil
}

// FromContent builds a FileUnit from in-memory content, for uploads and
// tests. Identical content always yields an identical unit.
func FromContent(name, content string) core.FileUnit {
	lang := LanguageFor(name)
	return core.FileUnit{
		Name:             name,
		SizeBytes:        int64(len(content)),
		Language:         lang,
		MetadataSummary:  metadataSummary(content, lang),
		ComplexityScore:  complexityScore(content),
		LegacyIndicators: legacyIndicators(content),
		Content:          content,
	}
}

func (s *Scanner) excludedDir(name string) bool {
	for _, dir := range s.cfg.ExcludeDirs {
		if name == dir {
			return true
		}
	}
	return strings.HasPrefix(name, ".") && name != "."
}

func (s *Scanner) includedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if len(s.cfg.IncludeExts) > 0 {
		for _, allowed := range s.cfg.IncludeExts {
			if ext == strings.ToLower(strings.TrimSpace(allowed)) {
				return true
			}
		}
		return false
	}
	_, known := languageByExt[ext]
	return known
}

func isBinary(raw []byte) bool {
	n := len(raw)
	if n > sniffLen {
		n = sniffLen
	}
	return bytes.IndexByte(raw[:n], 0) >= 0
}
