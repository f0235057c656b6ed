package templates

import (
	"bytes"
	"context"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"finitefield.org/booking-predictor/internal/content"
	"finitefield.org/booking-predictor/internal/form"
	"finitefield.org/booking-predictor/internal/prediction"
)

func renderDoc(t *testing.T, c templ.Component) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return doc
}

func TestPageRendersFormFromCatalog(t *testing.T) {
	catalog, err := content.Load()
	require.NoError(t, err)

	snap := form.NewManager("f1", nil, 0).Snapshot()
	snap.Fields.Country = "PRT"
	snap.Hints = map[string]string{prediction.FieldCountry: "hint text"}

	doc := renderDoc(t, Page(PageData{Catalog: catalog, Form: snap, CSRFToken: "tok123"}))

	require.Equal(t, "Hotel Cancellation Predictor", doc.Find("title").Text())
	desc, _ := doc.Find(`meta[name="description"]`).Attr("content")
	require.Equal(t, "Predict hotel booking cancellations using machine learning", desc)

	formSel := doc.Find("#prediction-form")
	require.Equal(t, "/predict", formSel.AttrOr("hx-post", ""))
	require.Equal(t, "#predict-button", formSel.AttrOr("hx-disabled-elt", ""))
	require.Equal(t, "tok123", formSel.Find(`input[name="csrf_token"]`).AttrOr("value", ""))

	for _, name := range prediction.FieldNames {
		field := doc.Find("#" + name)
		require.Equal(t, 1, field.Length(), name)
		require.Equal(t, "/form/fields/"+name, field.AttrOr("hx-post", ""))
	}
	require.Equal(t, "PRT", doc.Find("#country").AttrOr("value", ""))
	require.Equal(t, "0.01", doc.Find("#adr").AttrOr("step", ""))
	require.Equal(t, "No Deposit", doc.Find("#deposit_type option[selected]").Text())
	require.Equal(t, 3, doc.Find("#deposit_type option").Length())
	require.Equal(t, "hint text", doc.Find("#hint-country").Text())

	require.Contains(t, doc.Find("body").AttrOr("hx-headers", ""), "tok123")
	require.Equal(t, "Predict", doc.Find("#predict-button .when-idle").Text())
	require.Equal(t, 0, doc.Find(".alert").Length())
}

func TestPanelStates(t *testing.T) {
	t.Run("loading", func(t *testing.T) {
		doc := renderDoc(t, Panel(PanelData{Form: form.Snapshot{Phase: form.PhaseSubmitting, Loading: true}}))
		button := doc.Find("#predict-button")
		_, disabled := button.Attr("disabled")
		require.True(t, disabled)
		require.Contains(t, button.Text(), "Predicting...")
		require.True(t, doc.Find("#cancel-button").HasClass("is-visible"))
		require.Equal(t, "/panel", doc.Find(`[hx-get]`).AttrOr("hx-get", ""))
	})

	t.Run("result", func(t *testing.T) {
		doc := renderDoc(t, Panel(PanelData{Form: form.Snapshot{Phase: form.PhaseSucceeded, Result: prediction.LabelLikely}}))
		_, disabled := doc.Find("#predict-button").Attr("disabled")
		require.False(t, disabled)
		require.Equal(t, "Prediction:", doc.Find(".alert-success .alert-title").Text())
		require.Equal(t, "Likely to cancel", doc.Find("#prediction-result").Text())
		require.Equal(t, 0, doc.Find(".alert-error").Length())
	})

	t.Run("error", func(t *testing.T) {
		doc := renderDoc(t, Panel(PanelData{Form: form.Snapshot{Phase: form.PhaseFailed, Error: `Failed <b>x</b>`}}))
		require.Equal(t, "Error:", doc.Find(".alert-error .alert-title").Text())
		require.Equal(t, "Failed <b>x</b>", doc.Find("#prediction-error").Text())
		require.Equal(t, 0, doc.Find(".alert-success").Length())
	})
}

func TestFieldHint(t *testing.T) {
	doc := renderDoc(t, FieldHint("country", "Did you mean ESP?"))
	hint := doc.Find("#hint-country")
	require.True(t, hint.HasClass("hint-visible"))
	require.Equal(t, "Did you mean ESP?", hint.Text())

	empty := renderDoc(t, FieldHint("adr", ""))
	require.False(t, empty.Find("#hint-adr").HasClass("hint-visible"))
}
