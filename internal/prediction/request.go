package prediction

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Request is the payload posted to the prediction endpoint.
type Request struct {
	LeadTime               int     `json:"lead_time"`
	ADR                    float64 `json:"adr"`
	TotalOfSpecialRequests int     `json:"total_of_special_requests"`
	DepositType            string  `json:"deposit_type"`
	Country                string  `json:"country"`
}

// ValidationError collects per-field problems found before any network call.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("prediction: invalid fields [%s]", strings.Join(names, ", "))
}

// Field returns the message recorded for name, if any.
func (e *ValidationError) Field(name string) string {
	if e == nil {
		return ""
	}
	return e.Fields[name]
}

// NewRequest parses the raw form values into a request. Numeric and enum
// fields are checked up front so malformed input never reaches the endpoint.
// Values are sent trimmed, exactly as validated; country keeps its case.
func NewRequest(fields Fields) (Request, error) {
	problems := make(map[string]string)
	for _, name := range FieldNames {
		value, _ := fields.Get(name)
		if msg := ValidateField(name, value); msg != "" {
			problems[name] = msg
		}
	}
	if len(problems) > 0 {
		return Request{}, &ValidationError{Fields: problems}
	}

	leadTime, _ := strconv.Atoi(strings.TrimSpace(fields.LeadTime))
	adr, _ := strconv.ParseFloat(strings.TrimSpace(fields.ADR), 64)
	requests, _ := strconv.Atoi(strings.TrimSpace(fields.TotalOfSpecialRequests))

	return Request{
		LeadTime:               leadTime,
		ADR:                    adr,
		TotalOfSpecialRequests: requests,
		DepositType:            strings.TrimSpace(fields.DepositType),
		Country:                strings.TrimSpace(fields.Country),
	}, nil
}

// ValidateField returns a user-facing problem with value, or "" when it is acceptable.
func ValidateField(name, value string) string {
	label := fieldLabels[name]
	value = strings.TrimSpace(value)
	switch name {
	case FieldLeadTime, FieldTotalOfSpecialRequests:
		if value == "" {
			return label + " is required."
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return label + " must be a whole number."
		}
		if n < 0 {
			return label + " cannot be negative."
		}
	case FieldADR:
		if value == "" {
			return label + " is required."
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return label + " must be a number."
		}
	case FieldDepositType:
		for _, allowed := range DepositTypes {
			if value == allowed {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of %s.", label, strings.Join(DepositTypes, ", "))
	case FieldCountry:
		if value == "" {
			return label + " is required."
		}
	default:
		return "Unknown field."
	}
	return ""
}

// CountryHint returns advisory feedback on a country code. It never blocks a
// submission; the endpoint decides what it accepts.
func CountryHint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	region, err := language.ParseRegion(strings.ToUpper(value))
	if err != nil {
		return fmt.Sprintf("%q is not a known ISO 3166 code. Codes look like ESP or PRT.", value)
	}
	if !region.IsCountry() {
		return fmt.Sprintf("%q is a region, not a country.", value)
	}
	if iso3 := region.ISO3(); len(value) != 3 || !strings.EqualFold(value, iso3) {
		return fmt.Sprintf("Did you mean %s? Three-letter codes work best.", iso3)
	}
	return ""
}

// FieldHint combines validation feedback and advisory hints for a single field.
func FieldHint(name, value string) string {
	if msg := ValidateField(name, value); msg != "" {
		return msg
	}
	if name == FieldCountry {
		return CountryHint(value)
	}
	return ""
}
