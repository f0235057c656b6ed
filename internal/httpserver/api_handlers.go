package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"finitefield.org/booking-predictor/internal/platform/httpx"
	"finitefield.org/booking-predictor/internal/platform/requestctx"
	"finitefield.org/booking-predictor/internal/prediction"
)

const maxAPIBodyBytes = 16 << 10

// flexString accepts a JSON string or number and keeps its literal text.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = flexString(num.String())
	return nil
}

type apiPredictionRequest struct {
	LeadTime               flexString `json:"lead_time"`
	ADR                    flexString `json:"adr"`
	TotalOfSpecialRequests flexString `json:"total_of_special_requests"`
	DepositType            flexString `json:"deposit_type"`
	Country                flexString `json:"country"`
}

func (p apiPredictionRequest) fields() prediction.Fields {
	fields := prediction.Fields{
		LeadTime:               string(p.LeadTime),
		ADR:                    string(p.ADR),
		TotalOfSpecialRequests: string(p.TotalOfSpecialRequests),
		DepositType:            string(p.DepositType),
		Country:                string(p.Country),
	}
	if fields.DepositType == "" {
		fields.DepositType = prediction.DepositNone
	}
	return fields
}

type apiPredictionResponse struct {
	SubmissionID string `json:"submission_id"`
	Prediction   bool   `json:"prediction"`
	Label        string `json:"label"`
}

// APIPredict is the stateless JSON counterpart of the form submit.
func (h *handlers) APIPredict(w http.ResponseWriter, r *http.Request) {
	submissionID := ulid.Make().String()
	ctx := requestctx.WithSubmissionID(r.Context(), submissionID)
	logger := requestctx.Logger(ctx)

	var payload apiPredictionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBodyBytes))
	if err := decoder.Decode(&payload); err != nil {
		httpx.WriteError(ctx, w, httpx.ErrorFor(httpx.CodeInvalidJSON, "request body must be a JSON object: "+err.Error()))
		return
	}

	req, err := prediction.NewRequest(payload.fields())
	if err != nil {
		httpx.WriteError(ctx, w, apiError(err))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, h.requestTimeout)
	defer cancel()

	start := time.Now()
	result, err := h.predictor.Predict(callCtx, req)
	logger.Info("api prediction settled",
		zap.String("outcome", prediction.Outcome(result, err)),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		if prediction.Outcome(result, err) == prediction.OutcomeFailure {
			logger.Warn("api prediction failed", zap.Error(err))
		}
		httpx.WriteError(ctx, w, apiError(err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, apiPredictionResponse{
		SubmissionID: submissionID,
		Prediction:   result.Cancel,
		Label:        result.Label,
	})
}

// apiError maps a prediction failure onto the JSON error envelope.
func apiError(err error) httpx.Error {
	var validationErr *prediction.ValidationError
	var respErr *prediction.ResponseError
	switch {
	case errors.As(err, &validationErr):
		return httpx.ErrorFor(httpx.CodeInvalidInput, prediction.ValidationMessage).
			WithDetails(map[string]any{"fields": validationErr.Fields})
	case errors.As(err, &respErr):
		return httpx.ErrorFor(httpx.CodeUpstreamError, prediction.UserMessage(err)).
			WithDetails(map[string]any{"upstream_status": respErr.StatusCode})
	case errors.Is(err, prediction.ErrCanceled):
		return httpx.ErrorFor(httpx.CodeCanceled, "request canceled")
	default:
		return httpx.ErrorFor(httpx.CodePredictionUnavailable, prediction.GenericFailureMessage)
	}
}
