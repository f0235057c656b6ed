package content

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"finitefield.org/booking-predictor/internal/prediction"
)

//go:embed data/form.yaml data/about.md
var files embed.FS

// Field describes how one form input is rendered.
type Field struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label"`
	Type        string   `yaml:"type"`
	Min         string   `yaml:"min"`
	Step        string   `yaml:"step"`
	Placeholder string   `yaml:"placeholder"`
	Options     []string `yaml:"options"`
}

// IsSelect reports whether the field renders as a drop-down.
func (f Field) IsSelect() bool {
	return f.Type == "select"
}

// Catalog is the static copy and field layout of the page.
type Catalog struct {
	Title       string
	Description string
	About       template.HTML
	Fields      []Field
}

type formDocument struct {
	Fields []Field `yaml:"fields"`
}

type frontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Load parses the embedded form definition and about copy.
func Load() (Catalog, error) {
	formYAML, err := files.ReadFile("data/form.yaml")
	if err != nil {
		return Catalog{}, fmt.Errorf("content: read form definition: %w", err)
	}
	aboutMD, err := files.ReadFile("data/about.md")
	if err != nil {
		return Catalog{}, fmt.Errorf("content: read about copy: %w", err)
	}
	return Parse(formYAML, aboutMD)
}

// Parse builds a Catalog from raw documents. Every form field must appear
// exactly once and deposit options must match the accepted values.
func Parse(formYAML, aboutMD []byte) (Catalog, error) {
	var doc formDocument
	if err := yaml.Unmarshal(formYAML, &doc); err != nil {
		return Catalog{}, fmt.Errorf("content: parse form definition: %w", err)
	}
	if err := checkFields(doc.Fields); err != nil {
		return Catalog{}, err
	}

	fm, body := splitFrontMatter(string(aboutMD))
	front := frontMatter{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Catalog{}, fmt.Errorf("content: parse front matter: %w", err)
		}
	}
	rendered, err := renderMarkdown(body)
	if err != nil {
		return Catalog{}, err
	}

	return Catalog{
		Title:       strings.TrimSpace(front.Title),
		Description: strings.TrimSpace(front.Description),
		About:       rendered,
		Fields:      doc.Fields,
	}, nil
}

func checkFields(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !prediction.IsField(f.Name) {
			return fmt.Errorf("content: unknown form field %q", f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("content: duplicate form field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Name == prediction.FieldDepositType && strings.Join(f.Options, "|") != strings.Join(prediction.DepositTypes, "|") {
			return fmt.Errorf("content: deposit options %v do not match %v", f.Options, prediction.DepositTypes)
		}
	}
	for _, name := range prediction.FieldNames {
		if !seen[name] {
			return fmt.Errorf("content: form field %q missing", name)
		}
	}
	return nil
}

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

func renderMarkdown(body string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("content: render markdown: %w", err)
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n\r")
		}
	}
	return "", input
}
