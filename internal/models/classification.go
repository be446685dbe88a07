package models

// Category is the fixed set of ticket categories.
type Category string

const (
	CategoryTechnicalSupport  Category = "technical_support"
	CategoryBillingInquiry    Category = "billing_inquiry"
	CategoryAccountManagement Category = "account_management"
	CategoryGeneralInquiry    Category = "general_inquiry"
	CategoryComplaint         Category = "complaint"
	CategoryLegal             Category = "legal"
	CategoryUnknown           Category = "UNKNOWN"
)

// Categories lists every known category except UNKNOWN.
var Categories = []Category{
	CategoryTechnicalSupport,
	CategoryBillingInquiry,
	CategoryAccountManagement,
	CategoryGeneralInquiry,
	CategoryComplaint,
	CategoryLegal,
}

// ParseCategory maps a raw label onto the enumerated set.
func ParseCategory(raw string) Category {
	for _, c := range Categories {
		if string(c) == raw {
			return c
		}
	}
	return CategoryUnknown
}

// Classification is the classifier's verdict for one processing attempt.
type Classification struct {
	Category      Category `json:"category" cbor:"1,keyasint"`
	Urgency       float64  `json:"urgency" cbor:"2,keyasint"`
	Confidence    float64  `json:"confidence" cbor:"3,keyasint"`
	ModelSnapshot string   `json:"modelSnapshot,omitempty" cbor:"4,keyasint,omitempty"`
}

// UnknownClassification is the sentinel returned when classification
// cannot be obtained.
func UnknownClassification() Classification {
	return Classification{Category: CategoryUnknown}
}

// IsSentinel reports whether c is the failure sentinel.
func (c Classification) IsSentinel() bool {
	return c.Category == CategoryUnknown && c.Confidence == 0
}
