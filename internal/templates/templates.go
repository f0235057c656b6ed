package templates

import (
	"context"
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"

	"finitefield.org/booking-predictor/internal/content"
	"finitefield.org/booking-predictor/internal/form"
)

//go:embed tmpl/*.tmpl
var files embed.FS

var views = template.Must(template.New("_root").Funcs(template.FuncMap{
	"now":       time.Now,
	"fieldView": newFieldView,
}).ParseFS(files, "tmpl/*.tmpl"))

// PageData feeds the full page.
type PageData struct {
	Catalog   content.Catalog
	Form      form.Snapshot
	CSRFToken string
}

// Panel returns the data for the result panel embedded in the page.
func (p PageData) Panel() PanelData {
	return PanelData{Form: p.Form}
}

// PanelData feeds the submit controls and the result/error box.
type PanelData struct {
	Form form.Snapshot
}

// HintData feeds the message shown under one field.
type HintData struct {
	Name    string
	Message string
}

// FieldView pairs a field definition with its current value and hint.
type FieldView struct {
	Field content.Field
	Value string
	Hint  HintData
}

func newFieldView(f content.Field, snap form.Snapshot) FieldView {
	value, _ := snap.Fields.Get(f.Name)
	return FieldView{
		Field: f,
		Value: value,
		Hint:  HintData{Name: f.Name, Message: snap.FieldMessage(f.Name)},
	}
}

// Page renders the whole document.
func Page(data PageData) templ.Component {
	return render("base", data)
}

// Panel renders the fragment swapped into #prediction-panel.
func Panel(data PanelData) templ.Component {
	return render("panel", data)
}

// FieldHint renders the hint paragraph for a single field.
func FieldHint(name, message string) templ.Component {
	return render("field_hint", HintData{Name: name, Message: message})
}

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return views.ExecuteTemplate(w, name, data)
	})
}
