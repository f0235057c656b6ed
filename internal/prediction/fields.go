package prediction

// Field names as they appear in form posts and in the outbound payload.
const (
	FieldLeadTime               = "lead_time"
	FieldADR                    = "adr"
	FieldTotalOfSpecialRequests = "total_of_special_requests"
	FieldDepositType            = "deposit_type"
	FieldCountry                = "country"
)

// Deposit policy categories accepted by the prediction endpoint.
const (
	DepositNone       = "No Deposit"
	DepositNonRefund  = "Non Refund"
	DepositRefundable = "Refundable"
)

// FieldNames lists the form fields in display order.
var FieldNames = []string{
	FieldLeadTime,
	FieldADR,
	FieldTotalOfSpecialRequests,
	FieldDepositType,
	FieldCountry,
}

// DepositTypes lists the allowed deposit_type values in display order.
var DepositTypes = []string{DepositNone, DepositNonRefund, DepositRefundable}

var fieldLabels = map[string]string{
	FieldLeadTime:               "Lead time",
	FieldADR:                    "ADR",
	FieldTotalOfSpecialRequests: "Total special requests",
	FieldDepositType:            "Deposit type",
	FieldCountry:                "Country",
}

// Fields holds the raw, unparsed values typed into the form.
type Fields struct {
	LeadTime               string
	ADR                    string
	TotalOfSpecialRequests string
	DepositType            string
	Country                string
}

// DefaultFields returns the initial values of a fresh form.
func DefaultFields() Fields {
	return Fields{DepositType: DepositNone}
}

// IsField reports whether name is one of the form fields.
func IsField(name string) bool {
	_, ok := fieldLabels[name]
	return ok
}

// Get returns the raw value of the named field.
func (f Fields) Get(name string) (string, bool) {
	switch name {
	case FieldLeadTime:
		return f.LeadTime, true
	case FieldADR:
		return f.ADR, true
	case FieldTotalOfSpecialRequests:
		return f.TotalOfSpecialRequests, true
	case FieldDepositType:
		return f.DepositType, true
	case FieldCountry:
		return f.Country, true
	default:
		return "", false
	}
}

// Set replaces the named field. It reports false for unknown names.
func (f *Fields) Set(name, value string) bool {
	switch name {
	case FieldLeadTime:
		f.LeadTime = value
	case FieldADR:
		f.ADR = value
	case FieldTotalOfSpecialRequests:
		f.TotalOfSpecialRequests = value
	case FieldDepositType:
		f.DepositType = value
	case FieldCountry:
		f.Country = value
	default:
		return false
	}
	return true
}

// Map returns the fields keyed by name.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(FieldNames))
	for _, name := range FieldNames {
		out[name], _ = f.Get(name)
	}
	return out
}
