package service

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// PromptMeta is the frontmatter every embedded prompt template carries.
type PromptMeta struct {
	ID     string `yaml:"id" json:"id"`
	Title  string `yaml:"title" json:"title"`
	Stage  string `yaml:"stage" json:"stage"`   // system, analyze, peer_review, synthesize
	Output string `yaml:"output" json:"output"` // json, text
	Status string `yaml:"status" json:"status"` // active, deprecated
}

// PromptRenderer renders prompts from embedded templates. Frontmatter is
// validated at load time so a malformed template fails startup, not a run.
type PromptRenderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	metas     map[string]PromptMeta
}

// NewPromptRenderer creates a renderer with all embedded templates loaded.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{
		templates: make(map[string]*template.Template),
		metas:     make(map[string]PromptMeta),
	}
	if err := r.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return r, nil
}

func (r *PromptRenderer) loadTemplates() error {
	return fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}

		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		name := strings.TrimPrefix(path, "prompts/")
		name = strings.TrimSuffix(name, ".md.tmpl")

		fmRaw, body, ok := splitPromptFrontmatter(string(content))
		if !ok {
			return fmt.Errorf("template %s: missing frontmatter", name)
		}
		var meta PromptMeta
		if err := yaml.Unmarshal([]byte(fmRaw), &meta); err != nil {
			return fmt.Errorf("template %s: parsing frontmatter: %w", name, err)
		}
		if err := validatePromptMeta(meta, name); err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}

		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(body)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}

		r.templates[name] = tmpl
		r.metas[name] = meta
		return nil
	})
}

// splitPromptFrontmatter separates the --- delimited YAML header from the
// template body. Windows line endings are normalized first.
func splitPromptFrontmatter(raw string) (frontmatter, body string, ok bool) {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	if !strings.HasPrefix(s, "---\n") {
		return "", s, false
	}
	rest := s[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end == -1 {
		return "", s, false
	}
	frontmatter = rest[:end]
	body = rest[end+len("\n---\n"):]
	body = strings.TrimLeft(body, "\n")
	return frontmatter, body, true
}

func validatePromptMeta(meta PromptMeta, idFromFilename string) error {
	if strings.TrimSpace(meta.ID) == "" {
		return fmt.Errorf("frontmatter: id is required")
	}
	if meta.ID != idFromFilename {
		return fmt.Errorf("frontmatter: id %q does not match filename %q", meta.ID, idFromFilename)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return fmt.Errorf("frontmatter: title is required (id=%s)", meta.ID)
	}
	switch meta.Stage {
	case "system", "analyze", "peer_review", "synthesize":
	default:
		return fmt.Errorf("frontmatter: invalid stage %q (id=%s)", meta.Stage, meta.ID)
	}
	switch meta.Output {
	case "json", "text":
	default:
		return fmt.Errorf("frontmatter: invalid output %q (id=%s)", meta.Output, meta.ID)
	}
	switch meta.Status {
	case "active", "deprecated":
	default:
		return fmt.Errorf("frontmatter: invalid status %q (id=%s)", meta.Status, meta.ID)
	}
	return nil
}

// templateFuncs returns custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":      strings.Join,
		"indent":    indent,
		"trimSpace": strings.TrimSpace,
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"hasSuffix": strings.HasSuffix,
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
	}
}

func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

// SystemParams parameterizes the persona system prompt.
type SystemParams struct {
	Agent core.AgentProfile
}

// RenderSystem renders the specialist's system prompt.
func (r *PromptRenderer) RenderSystem(params SystemParams) (string, error) {
	return r.render("system-specialist", params)
}

// AnalyzeParams parameterizes the batch analysis prompt. Content is the
// pre-rendered file listing produced by the batch scheduler, shared verbatim
// by every agent reviewing the batch.
type AnalyzeParams struct {
	Agent       core.AgentProfile
	Objective   string
	Content     string
	MaxFindings int
}

// RenderAnalyze renders the batch analysis prompt.
func (r *PromptRenderer) RenderAnalyze(params AnalyzeParams) (string, error) {
	return r.render("analyze", params)
}

// PeerReviewParams parameterizes the cross-agent critique prompt.
type PeerReviewParams struct {
	Reviewer         core.AgentProfile
	AuthorName       string
	AuthorSpecialty  string
	AuthorSummary    string
	AuthorConfidence float64
	Findings         []core.SpecialistFinding
	Objective        string
	Content          string
}

// RenderPeerReview renders the peer review prompt.
func (r *PromptRenderer) RenderPeerReview(params PeerReviewParams) (string, error) {
	return r.render("peer-review", params)
}

// TranscriptEntry is one discussion message prepared for the synthesis
// prompt.
type TranscriptEntry struct {
	From    string
	To      string
	Type    string
	Content string
}

// SynthesisParams parameterizes the executive summary prompt.
type SynthesisParams struct {
	Objective  string
	FileCount  int
	AgentNames []string
	Entries    []TranscriptEntry
}

// RenderSynthesis renders the transcript synthesis prompt.
func (r *PromptRenderer) RenderSynthesis(params SynthesisParams) (string, error) {
	return r.render("synthesize", params)
}

// Render renders a template by name with the given data.
func (r *PromptRenderer) Render(name string, data interface{}) (string, error) {
	return r.render(name, data)
}

func (r *PromptRenderer) render(name string, data interface{}) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

// HasTemplate checks if a template exists.
func (r *PromptRenderer) HasTemplate(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Meta returns the frontmatter for a template.
func (r *PromptRenderer) Meta(name string) (PromptMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.metas[name]
	return meta, ok
}

// ListPrompts returns metadata for all embedded templates, ordered by
// pipeline stage.
func (r *PromptRenderer) ListPrompts() []PromptMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stageOrder := map[string]int{
		"system":      0,
		"analyze":     1,
		"peer_review": 2,
		"synthesize":  3,
	}

	metas := make([]PromptMeta, 0, len(r.metas))
	for _, meta := range r.metas {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		si, sj := stageOrder[metas[i].Stage], stageOrder[metas[j].Stage]
		if si != sj {
			return si < sj
		}
		return metas[i].ID < metas[j].ID
	})
	return metas
}
