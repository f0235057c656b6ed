package testutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML parses a page or fragment body, failing the test on malformed markup.
func ParseHTML(t testing.TB, body []byte) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// PanelState is what a user sees in the prediction panel.
type PanelState struct {
	Loading       bool
	CancelVisible bool
	Result        string
	Error         string
}

// ReadPanel extracts the panel state from a full page or a panel fragment.
func ReadPanel(t testing.TB, body []byte) PanelState {
	t.Helper()

	doc := ParseHTML(t, body)
	button := doc.Find("#predict-button")
	if button.Length() == 0 {
		t.Fatalf("prediction panel not found in body: %s", body)
	}
	_, disabled := button.Attr("disabled")
	return PanelState{
		Loading:       disabled,
		CancelVisible: doc.Find("#cancel-button").HasClass("is-visible"),
		Result:        strings.TrimSpace(doc.Find("#prediction-result").Text()),
		Error:         strings.TrimSpace(doc.Find("#prediction-error").Text()),
	}
}
