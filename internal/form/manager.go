package form

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"finitefield.org/booking-predictor/internal/platform/requestctx"
	"finitefield.org/booking-predictor/internal/prediction"
)

// Phase is the position of a form instance in its submission cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

const defaultRequestTimeout = 30 * time.Second

var (
	// ErrSubmitInFlight is returned when a submit arrives while another is pending.
	ErrSubmitInFlight = errors.New("form: submission already in flight")
	// ErrUnknownField is returned for field names outside the form.
	ErrUnknownField = errors.New("form: unknown field")
)

// Snapshot is an immutable copy of a form instance for rendering.
type Snapshot struct {
	ID           string
	Fields       prediction.Fields
	Phase        Phase
	Loading      bool
	Result       string
	Error        string
	FieldErrors  map[string]string
	Hints        map[string]string
	SubmissionID string
}

// FieldMessage returns the submit-time error for name, falling back to the live hint.
func (s Snapshot) FieldMessage(name string) string {
	if msg := s.FieldErrors[name]; msg != "" {
		return msg
	}
	return s.Hints[name]
}

// Manager owns the state of one form instance.
type Manager struct {
	id        string
	predictor prediction.Predictor
	timeout   time.Duration

	mu           sync.Mutex
	fields       prediction.Fields
	phase        Phase
	result       string
	errMsg       string
	fieldErrors  map[string]string
	hints        map[string]string
	submissionID string
	cancel       context.CancelFunc
	lastActive   time.Time
}

// NewManager returns an idle form with default field values. A non-positive
// timeout falls back to 30s.
func NewManager(id string, predictor prediction.Predictor, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Manager{
		id:         id,
		predictor:  predictor,
		timeout:    timeout,
		fields:     prediction.DefaultFields(),
		phase:      PhaseIdle,
		hints:      make(map[string]string),
		lastActive: time.Now(),
	}
}

// SetField stores value for name without validating it and returns the live
// hint for the field. A shown result or error is kept until the next submit.
func (m *Manager) SetField(name, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fields.Set(name, value) {
		return "", ErrUnknownField
	}
	hint := prediction.FieldHint(name, value)
	if hint == "" {
		delete(m.hints, name)
	} else {
		m.hints[name] = hint
	}
	delete(m.fieldErrors, name)
	return hint, nil
}

// Submit runs one prediction cycle. It blocks until the call settles, times
// out or is cancelled, and returns the resulting state.
func (m *Manager) Submit(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.phase == PhaseSubmitting {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrSubmitInFlight
	}

	m.result = ""
	m.errMsg = ""
	m.fieldErrors = nil
	submissionID := ulid.Make().String()
	m.submissionID = submissionID

	if requestctx.FormID(ctx) != m.id {
		ctx = requestctx.WithFormID(ctx, m.id)
	}
	ctx = requestctx.WithSubmissionID(ctx, submissionID)
	logger := requestctx.Logger(ctx)

	req, err := prediction.NewRequest(m.fields)
	if err != nil {
		var validationErr *prediction.ValidationError
		if errors.As(err, &validationErr) {
			m.fieldErrors = copyMap(validationErr.Fields)
		}
		m.phase = PhaseFailed
		m.errMsg = prediction.UserMessage(err)
		snap := m.snapshotLocked()
		m.mu.Unlock()
		logger.Info("prediction rejected locally", zap.Error(err))
		return snap, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	m.cancel = cancel
	m.phase = PhaseSubmitting
	m.mu.Unlock()

	start := time.Now()
	result, err := m.predictor.Predict(callCtx, req)
	cancel()

	outcome := prediction.Outcome(result, err)
	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)),
		zap.String("deposit_type", req.DepositType),
		zap.String("country", req.Country),
	}
	switch outcome {
	case prediction.OutcomeFailure, prediction.OutcomeResponseError:
		logger.Warn("prediction failed", append(fields, zap.Error(err))...)
	default:
		logger.Info("prediction settled", fields...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submissionID != submissionID || m.phase != PhaseSubmitting {
		return m.snapshotLocked(), nil
	}
	m.cancel = nil
	switch {
	case errors.Is(err, prediction.ErrCanceled):
		m.phase = PhaseIdle
	case err != nil:
		m.phase = PhaseFailed
		m.errMsg = prediction.UserMessage(err)
	default:
		m.phase = PhaseSucceeded
		m.result = result.Label
	}
	return m.snapshotLocked(), nil
}

// Cancel aborts the in-flight request and returns the form to idle with
// neither result nor error. It reports false when nothing was pending.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseSubmitting {
		return false
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.phase = PhaseIdle
	m.result = ""
	m.errMsg = ""
	return true
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Loading reports whether a request is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == PhaseSubmitting
}

func (m *Manager) touch(now time.Time) {
	m.mu.Lock()
	m.lastActive = now
	m.mu.Unlock()
}

func (m *Manager) expired(now time.Time, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase != PhaseSubmitting && now.Sub(m.lastActive) > ttl
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		ID:           m.id,
		Fields:       m.fields,
		Phase:        m.phase,
		Loading:      m.phase == PhaseSubmitting,
		Result:       m.result,
		Error:        m.errMsg,
		FieldErrors:  copyMap(m.fieldErrors),
		Hints:        copyMap(m.hints),
		SubmissionID: m.submissionID,
	}
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
