package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/booking-predictor/internal/content"
	"finitefield.org/booking-predictor/internal/form"
	custommw "finitefield.org/booking-predictor/internal/httpserver/middleware"
	"finitefield.org/booking-predictor/internal/platform/requestctx"
	"finitefield.org/booking-predictor/internal/prediction"
	"finitefield.org/booking-predictor/internal/templates"
)

type handlers struct {
	forms          *form.Store
	catalog        content.Catalog
	predictor      prediction.Predictor
	requestTimeout time.Duration
}

func (h *handlers) formFor(r *http.Request) *form.Manager {
	return h.forms.Get(requestctx.FormID(r.Context()))
}

// Page renders the full form with the current panel state.
func (h *handlers) Page(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, h.formFor(r).Snapshot(), http.StatusOK)
}

// FieldChange records one edited field and answers with its hint fragment.
func (h *handlers) FieldChange(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !prediction.IsField(name) {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	hint, err := h.formFor(r).SetField(name, r.PostFormValue(name))
	if errors.Is(err, form.ErrUnknownField) {
		http.NotFound(w, r)
		return
	}
	templ.Handler(templates.FieldHint(name, hint)).ServeHTTP(w, r)
}

// Predict applies the posted fields and runs one submission cycle.
func (h *handlers) Predict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	m := h.formFor(r)
	for _, name := range prediction.FieldNames {
		if values, ok := r.PostForm[name]; ok && len(values) > 0 {
			_, _ = m.SetField(name, values[0])
		}
	}

	status := http.StatusOK
	snap, err := m.Submit(r.Context())
	if errors.Is(err, form.ErrSubmitInFlight) {
		requestctx.Logger(r.Context()).Info("submit rejected while loading", zap.String("pending_submission_id", snap.SubmissionID))
		status = http.StatusConflict
		if custommw.IsHTMXRequest(r.Context()) {
			w.Header().Set("HX-Reswap", "none")
		}
	}

	if custommw.IsHTMXRequest(r.Context()) {
		h.renderPanel(w, r, snap, status)
		return
	}
	h.renderPage(w, r, snap, status)
}

// Cancel aborts the in-flight request of the caller's form.
func (h *handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	m := h.formFor(r)
	if m.Cancel() {
		requestctx.Logger(r.Context()).Info("prediction cancelled by user", zap.String("submission_id", m.Snapshot().SubmissionID))
	}

	if custommw.IsHTMXRequest(r.Context()) {
		h.renderPanel(w, r, m.Snapshot(), http.StatusOK)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Panel renders the current panel for htmx polling.
func (h *handlers) Panel(w http.ResponseWriter, r *http.Request) {
	h.renderPanel(w, r, h.formFor(r).Snapshot(), http.StatusOK)
}

func (h *handlers) renderPage(w http.ResponseWriter, r *http.Request, snap form.Snapshot, status int) {
	data := templates.PageData{
		Catalog:   h.catalog,
		Form:      snap,
		CSRFToken: custommw.CSRFTokenFromContext(r.Context()),
	}
	templ.Handler(templates.Page(data), templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *handlers) renderPanel(w http.ResponseWriter, r *http.Request, snap form.Snapshot, status int) {
	templ.Handler(templates.Panel(templates.PanelData{Form: snap}), templ.WithStatus(status)).ServeHTTP(w, r)
}
