package service

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
	"github.com/codecouncil-ai/codecouncil/internal/redact"
)

// charsPerToken is the flat heuristic for sizing prompts. Real tokenizers
// vary by language; the overhead terms in the estimate absorb the slack.
const charsPerToken = 4

// BatchScheduler groups files into upstream-call-efficient batches. Batches
// are bounded by SIZE first: when a batch's token estimate exceeds the
// budget, the per-file preview shrinks to fit rather than splitting the
// batch further.
type BatchScheduler struct {
	batchSize       int
	maxTokens       int
	batchOverhead   int
	perFileOverhead int
	previewChars    int
	logger          *logging.Logger
}

// NewBatchScheduler creates a scheduler from configuration.
func NewBatchScheduler(cfg config.SchedulerConfig, logger *logging.Logger) *BatchScheduler {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 10
	}
	maxTokens := cfg.MaxTokensPerBatch
	if maxTokens < 1 {
		maxTokens = 12000
	}
	previewChars := cfg.PreviewChars
	if previewChars < 1 {
		previewChars = 2000
	}
	return &BatchScheduler{
		batchSize:       batchSize,
		maxTokens:       maxTokens,
		batchOverhead:   cfg.BatchOverheadTokens,
		perFileOverhead: cfg.PerFileOverheadTokens,
		previewChars:    previewChars,
		logger:          logger,
	}
}

// PlanBatches groups files by module key and slices each group into
// fixed-size batches. Batch order is deterministic: module keys ascending,
// input order within a group preserved.
func (s *BatchScheduler) PlanBatches(files []core.FileUnit) []core.Batch {
	if len(files) == 0 {
		return nil
	}

	groups := make(map[string][]core.FileUnit)
	for _, file := range files {
		key := ModuleKeyFor(file)
		groups[key] = append(groups[key], file)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var batches []core.Batch
	index := 0
	for _, key := range keys {
		group := groups[key]
		for start := 0; start < len(group); start += s.batchSize {
			end := start + s.batchSize
			if end > len(group) {
				end = len(group)
			}
			batch := s.buildBatch(index, key, group[start:end])
			batches = append(batches, batch)
			index++
		}
	}
	return batches
}

// buildBatch sizes one batch: start from the configured preview limit and
// shrink it uniformly until the token estimate fits the budget.
func (s *BatchScheduler) buildBatch(index int, moduleKey string, files []core.FileUnit) core.Batch {
	previewLimit := s.previewChars
	estimate := s.estimateTokens(files, previewLimit)

	if estimate > s.maxTokens {
		available := s.maxTokens - s.batchOverhead - s.perFileOverhead*len(files)
		if available <= 0 {
			previewLimit = 0
			s.logger.Warn("batch overhead alone exceeds token budget",
				"module", moduleKey, "files", len(files), "budget", s.maxTokens)
		} else {
			previewLimit = available * charsPerToken / len(files)
		}
		estimate = s.estimateTokens(files, previewLimit)
		s.logger.Debug("batch preview shrunk to fit budget",
			"module", moduleKey, "files", len(files),
			"preview_chars", previewLimit, "estimated_tokens", estimate)
	}

	return core.Batch{
		Index:           index,
		ModuleKey:       moduleKey,
		Files:           files,
		PreviewLimit:    previewLimit,
		EstimatedTokens: estimate,
	}
}

// estimateTokens applies the cost model: per-file content tokens plus a
// fixed batch overhead plus a per-file overhead.
func (s *BatchScheduler) estimateTokens(files []core.FileUnit, previewLimit int) int {
	total := s.batchOverhead + s.perFileOverhead*len(files)
	for _, file := range files {
		total += len(filePreview(file, previewLimit)) / charsPerToken
	}
	return total
}

// ModuleKeyFor infers which module a file belongs to, so related files land
// in the same batch. Path directories win; files without one fall back to
// namespace or package hints in the metadata summary.
func ModuleKeyFor(file core.FileUnit) string {
	name := strings.ReplaceAll(file.Name, "\\", "/")
	if dir := path.Dir(name); dir != "." && dir != "/" {
		return dir
	}
	for _, keyword := range []string{"namespace ", "package ", "module "} {
		if key := metadataHint(file.MetadataSummary, keyword); key != "" {
			return key
		}
	}
	return "root"
}

func metadataHint(summary, keyword string) string {
	idx := strings.Index(strings.ToLower(summary), keyword)
	if idx < 0 {
		return ""
	}
	rest := summary[idx+len(keyword):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return r == ' ' || r == ';' || r == ',' || r == '{' || r == '\n'
	})
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// RenderContent renders a batch into the file listing agents analyze.
func (s *BatchScheduler) RenderContent(batch core.Batch) string {
	var b strings.Builder
	for i, file := range batch.Files {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s (%s, complexity %.1f)\n", file.Name, file.Language, file.ComplexityScore)
		if file.MetadataSummary != "" {
			fmt.Fprintf(&b, "Metadata: %s\n", file.MetadataSummary)
		}
		if len(file.LegacyIndicators) > 0 {
			fmt.Fprintf(&b, "Legacy indicators: %s\n", strings.Join(file.LegacyIndicators, ", "))
		}
		fmt.Fprintf(&b, "\n```%s\n%s\n```\n", file.Language, filePreview(file, batch.PreviewLimit))
	}
	return b.String()
}

// RenderFileContent renders a single file the same way, for single-file
// fallback calls after a batch failure.
func (s *BatchScheduler) RenderFileContent(file core.FileUnit) string {
	batch := core.Batch{Files: []core.FileUnit{file}, PreviewLimit: s.previewChars}
	return s.RenderContent(batch)
}

// filePreview truncates to the batch preview limit, then strips secrets so
// no credential bytes reach a prompt.
func filePreview(file core.FileUnit, limit int) string {
	content := file.Content
	if limit >= 0 && len(content) > limit {
		content = content[:limit]
	}
	return redact.Preview(file.Name, content)
}
