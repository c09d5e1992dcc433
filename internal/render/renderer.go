// Package render turns analysis results into Markdown report files.
//
// Rendering is deterministic: the same paper and content always produce the
// same bytes, so reconciliation can regenerate a missing file without
// touching the database record.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/helixir/paper-digest-service/internal/domain"
)

const reportTemplate = `# {{.Title}}

{{- if .AuthorLine}}

**Authors:** {{.AuthorLine}}
{{- end}}

**Source:** {{.Source}} ({{.ExternalID}})
{{- if .PDFURL}}
**PDF:** {{.PDFURL}}
{{- end}}
**Model:** {{.Model}}
**Generated:** {{.GeneratedAt}}

{{range .Sections}}## {{.Heading}}

{{.Body}}

{{end -}}
`

// Section headings in render order, keyed by section name.
var sectionHeadings = map[string]string{
	domain.SectionSummary:     "Summary",
	domain.SectionBackground:  "Background",
	domain.SectionInnovation:  "What's New",
	domain.SectionExperiments: "Experiments",
	domain.SectionApplication: "Applications",
	domain.SectionLimitations: "Limitations",
	domain.SectionAudience:    "Who Should Read This",
}

type templateSection struct {
	Heading string
	Body    string
}

type templateData struct {
	Title       string
	AuthorLine  string
	Source      domain.SourceType
	ExternalID  string
	PDFURL      string
	Model       string
	GeneratedAt string
	Sections    []templateSection
}

// Renderer writes Markdown reports under a base directory, one subdirectory
// per day.
type Renderer struct {
	baseDir  string
	template *template.Template
	now      func() time.Time
}

// NewRenderer creates a renderer rooted at baseDir.
func NewRenderer(baseDir string) *Renderer {
	return &Renderer{
		baseDir:  baseDir,
		template: template.Must(template.New("report").Parse(reportTemplate)),
		now:      time.Now,
	}
}

// Render produces the Markdown document for one analyzed paper.
func (r *Renderer) Render(paper *domain.Paper, content domain.ReportContent, model string, generatedAt time.Time) ([]byte, error) {
	if paper == nil {
		return nil, domain.NewValidationError("paper", "paper is required")
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	sections := make([]templateSection, 0, len(domain.ReportSections))
	for _, name := range domain.ReportSections {
		sections = append(sections, templateSection{
			Heading: sectionHeadings[name],
			Body:    strings.TrimSpace(content[name]),
		})
	}

	data := templateData{
		Title:       paper.Title,
		AuthorLine:  paper.AuthorLine(),
		Source:      paper.Source,
		ExternalID:  paper.ExternalID,
		PDFURL:      paper.PDFURL,
		Model:       model,
		GeneratedAt: generatedAt.UTC().Format("2006-01-02 15:04 UTC"),
		Sections:    sections,
	}

	var buf bytes.Buffer
	if err := r.template.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render report template: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteReport renders the report and writes it to its canonical path,
// returning the path relative to the base directory. The write is atomic:
// content lands in a temp file first and is renamed into place, so readers
// never observe a partial report.
func (r *Renderer) WriteReport(paper *domain.Paper, content domain.ReportContent, model string) (string, error) {
	generatedAt := r.now().UTC()

	rendered, err := r.Render(paper, content, model, generatedAt)
	if err != nil {
		return "", err
	}

	relPath := ReportPath(generatedAt, paper.Identity, model)
	if err := r.writeAtomic(relPath, rendered); err != nil {
		return "", err
	}
	return relPath, nil
}

// WriteReportAt re-renders the report at a previously recorded relative
// path, keeping the original generation timestamp. Reconciliation uses
// this to restore a missing file at the exact path the report row points
// to.
func (r *Renderer) WriteReportAt(relPath string, paper *domain.Paper, content domain.ReportContent, model string, generatedAt time.Time) error {
	if relPath == "" {
		return domain.NewValidationError("path", "report path is required")
	}

	rendered, err := r.Render(paper, content, model, generatedAt)
	if err != nil {
		return err
	}

	return r.writeAtomic(relPath, rendered)
}

// writeAtomic lands content in a temp file and renames it into place, so
// readers never observe a partial report.
func (r *Renderer) writeAtomic(relPath string, rendered []byte) error {
	absPath := filepath.Join(r.baseDir, relPath)

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp report file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(rendered); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close report file: %w", err)
	}

	if err := os.Rename(tmpName, absPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move report into place: %w", err)
	}

	return nil
}

// Exists reports whether the report file at the given relative path is
// present on disk.
func (r *Renderer) Exists(relPath string) bool {
	if relPath == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(r.baseDir, relPath))
	return err == nil && !info.IsDir()
}

// BaseDir returns the root directory reports are written under.
func (r *Renderer) BaseDir() string {
	return r.baseDir
}

// ReportPath builds the canonical relative path for a report:
// <YYYY-MM-DD>/<paper-identity>--<model>.md with filesystem-hostile
// characters replaced.
func ReportPath(generatedAt time.Time, paperIdentity, model string) string {
	day := generatedAt.UTC().Format("2006-01-02")
	name := fmt.Sprintf("%s--%s.md", sanitize(paperIdentity), sanitize(model))
	return filepath.Join(day, name)
}

var pathSanitizer = strings.NewReplacer(
	":", "-",
	"/", "-",
	"\\", "-",
	" ", "_",
)

func sanitize(s string) string {
	return pathSanitizer.Replace(s)
}
