// Package report renders completed person profiles into downloadable report
// files.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/config"
	"github.com/sells-group/osint-investigator/internal/model"
)

// ToolVersion is stamped into every report.
const ToolVersion = "2.0"

// Format is a report file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a config or request value to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatYAML, FormatXLSX:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", eris.Wrapf(ErrUnsupportedFormat, "format %q", s)
	}
}

var (
	// ErrNotFound is returned by Open for a file that was never built.
	ErrNotFound = eris.New("report: file not found")
	// ErrInvalidName is returned by Open for names that escape the report dir.
	ErrInvalidName = eris.New("report: invalid file name")
	// ErrUnsupportedFormat is returned for unknown formats.
	ErrUnsupportedFormat = eris.New("report: unsupported format")
)

// Artifact is a built report file.
type Artifact struct {
	Filename string `json:"filename"`
	Path     string `json:"reportPath"`
}

// Builder renders a profile into a report artifact.
type Builder interface {
	Build(ctx context.Context, profile *model.PersonProfile) (*Artifact, error)
}

// Meta heads every report.
type Meta struct {
	GeneratedAt time.Time `json:"generatedAt"`
	ToolVersion string    `json:"toolVersion"`
	Subject     string    `json:"subject"`
	Location    string    `json:"location"`
}

// ProfileInfo holds the identifying fields of the subject.
type ProfileInfo struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Document is the report layout shared by every format.
type Document struct {
	Meta                Meta                     `json:"reportMeta"`
	ExecutiveSummary    string                   `json:"executiveSummary"`
	DetailedAnalysis    string                   `json:"detailedAnalysis"`
	RiskAssessment      model.RiskAnalysis       `json:"riskAssessment"`
	KeyFindings         []string                 `json:"keyFindings"`
	AssociatedEntities  []model.AssociatedEntity `json:"associatedEntities"`
	ProfileInformation  ProfileInfo              `json:"profileInformation"`
	EntityRelationships model.EntityAnalysis     `json:"entityRelationships"`
	SourceBreakdown     []model.SourceCount      `json:"sourceBreakdown"`
	Timeline            []model.TimelineEvent    `json:"timeline"`
	RawIntelligence     []model.RawHit           `json:"rawIntelligence"`
	SearchStatistics    model.SearchMeta         `json:"searchStatistics"`
}

// NewDocument lays out a profile as a report generated at ts.
func NewDocument(p *model.PersonProfile, ts time.Time) Document {
	subject := p.Name
	if subject == "" {
		subject = "Unknown"
	}
	return Document{
		Meta: Meta{
			GeneratedAt: ts,
			ToolVersion: ToolVersion,
			Subject:     subject,
			Location:    p.Location,
		},
		ExecutiveSummary:    p.ShortSummary,
		DetailedAnalysis:    p.DetailedSummary,
		RiskAssessment:      p.RiskAnalysis,
		KeyFindings:         orEmpty(p.KeyFindings),
		AssociatedEntities:  orEmpty(p.AssociatedEntities),
		ProfileInformation:  ProfileInfo{Name: p.Name, Location: p.Location},
		EntityRelationships: p.EntityAnalysis,
		SourceBreakdown:     orEmpty(p.SourceAnalysis),
		Timeline:            orEmpty(p.TimelineEvents),
		RawIntelligence:     orEmpty(p.RawData),
		SearchStatistics:    p.SearchMeta,
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// FileBuilder writes reports into a directory.
type FileBuilder struct {
	dir    string
	format Format
	now    func() time.Time
}

// NewFileBuilder creates a builder from the report config.
func NewFileBuilder(cfg config.ReportConfig) (*FileBuilder, error) {
	f, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "reports"
	}
	return &FileBuilder{dir: dir, format: f, now: time.Now}, nil
}

// Dir returns the output directory.
func (b *FileBuilder) Dir() string { return b.dir }

// WithFormat returns a copy of the builder writing format f.
func (b *FileBuilder) WithFormat(f Format) *FileBuilder {
	c := *b
	c.format = f
	return &c
}

// BuildAs builds in format f, or the configured format when f is empty.
func (b *FileBuilder) BuildAs(ctx context.Context, profile *model.PersonProfile, f Format) (*Artifact, error) {
	if f == "" {
		return b.Build(ctx, profile)
	}
	return b.WithFormat(f).Build(ctx, profile)
}

// Build renders profile and writes it to the report directory.
func (b *FileBuilder) Build(ctx context.Context, profile *model.PersonProfile) (*Artifact, error) {
	if profile == nil {
		return nil, eris.New("report: nil profile")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "report: build")
	}

	ts := b.now()
	doc := NewDocument(profile, ts)

	var (
		data []byte
		err  error
	)
	switch b.format {
	case FormatJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		data, err = encodeYAML(doc)
	case FormatXLSX:
		data, err = encodeXLSX(doc)
	default:
		err = eris.Wrapf(ErrUnsupportedFormat, "format %q", b.format)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "report: encode %s", b.format)
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "report: create dir")
	}
	name, err := writeUnique(b.dir, Filename(profile.Name, ts, b.format), data)
	if err != nil {
		return nil, eris.Wrap(err, "report: write file")
	}
	path := filepath.Join(b.dir, name)

	zap.L().Info("report: generated",
		zap.String("path", path),
		zap.String("format", string(b.format)),
		zap.Int("bytes", len(data)),
	)
	return &Artifact{Filename: name, Path: path}, nil
}

// Open returns a previously built report. Names must be bare file names
// inside the report directory.
func (b *FileBuilder) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) {
		return nil, eris.Wrapf(ErrInvalidName, "name %q", name)
	}
	f, err := os.Open(filepath.Join(b.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "name %q", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "report: open")
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, eris.Wrapf(ErrNotFound, "name %q", name)
	}
	return f, nil
}

// maxSlugRunes bounds the subject part of a report file name.
const maxSlugRunes = 30

// Filename builds "<slug>_report_<YYYYmmdd_HHMMSS_mmm>.<ext>".
func Filename(name string, ts time.Time, f Format) string {
	return fmt.Sprintf("%s_report_%s_%03d.%s", slug(name), ts.Format("20060102_150405"), ts.Nanosecond()/int(time.Millisecond), f)
}

// maxNameAttempts bounds the numbered variants tried when a file name is taken.
const maxNameAttempts = 100

// writeUnique writes data under dir without replacing an existing file. A
// taken name gets a "_2", "_3", ... suffix before the extension.
func writeUnique(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxNameAttempts; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return candidate, nil
	}
	return "", eris.Errorf("no free name for %s after %d attempts", name, maxNameAttempts)
}

func slug(name string) string {
	var sb strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(name) {
		if n == maxSlugRunes {
			break
		}
		switch {
		case unicode.IsSpace(r):
			r = '_'
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
		default:
			continue
		}
		sb.WriteRune(r)
		n++
	}
	if sb.Len() == 0 {
		return "person"
	}
	return sb.String()
}
