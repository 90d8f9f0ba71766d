package normative

import (
	"github.com/auditkit/docaudit/internal/prompts"
	"github.com/auditkit/docaudit/internal/report"
	"github.com/auditkit/docaudit/pkg/formatting"
)

// Namespace parameterizes the three-step pipeline for one check category.
// Parse failures and capability errors always map to the negative outcome
// (no region, no identifiers, unfilled) rather than aborting a step.
type Namespace struct {
	Name          string
	DetectPrompt  string
	ExtractPrompt string
	VerifyPrompt  string
	ErrorType     string

	// parseDetect reports whether the page contains a candidate region.
	parseDetect func(content string) bool
	// parseExtract returns the found flag and the identifier list; both
	// must pass for a page to be kept.
	parseExtract func(content string) (bool, []Identifier)
	// parseNegative reports whether the verified identifier is missing
	// its content (empty date, unsealed stamp, unsigned signature).
	parseNegative func(content string) bool
}

type dateDetectResponse struct {
	HasDateField bool `json:"has_date_field"`
}

type dateExtractResponse struct {
	HasDateIdentifier bool         `json:"has_date_identifier"`
	DateIdentifiers   []Identifier `json:"date_identifiers"`
}

type dateVerifyResponse struct {
	FillingStatus string `json:"filling_status"`
}

// Date checks that every date field carries a filled-in date.
var Date = Namespace{
	Name:          "date",
	DetectPrompt:  prompts.DateAreaDetect,
	ExtractPrompt: prompts.DateIdentifierExtract,
	VerifyPrompt:  prompts.DateFillingStatus,
	ErrorType:     report.TypeDateMissing,
	parseDetect: func(content string) bool {
		resp, err := formatting.Parse[dateDetectResponse](content)
		return err == nil && resp.HasDateField
	},
	parseExtract: func(content string) (bool, []Identifier) {
		resp, err := formatting.Parse[dateExtractResponse](content)
		if err != nil {
			return false, nil
		}
		return resp.HasDateIdentifier, resp.DateIdentifiers
	},
	parseNegative: func(content string) bool {
		resp, err := formatting.Parse[dateVerifyResponse](content)
		if err != nil {
			return true
		}
		return resp.FillingStatus == "empty"
	},
}

type sealDetectResponse struct {
	HasStampArea bool `json:"has_stamp_area"`
}

type sealExtractResponse struct {
	HasSealIndicator bool         `json:"has_seal_indicator"`
	SealIndicators   []Identifier `json:"seal_indicators"`
}

type sealVerifyResponse struct {
	IsSealed bool `json:"is_sealed"`
}

// Seal checks that every stamp area carries an actual seal impression.
var Seal = Namespace{
	Name:          "seal",
	DetectPrompt:  prompts.SealAreaDetect,
	ExtractPrompt: prompts.SealIdentifierExtract,
	VerifyPrompt:  prompts.SealStatus,
	ErrorType:     report.TypeSealMissing,
	parseDetect: func(content string) bool {
		resp, err := formatting.Parse[sealDetectResponse](content)
		return err == nil && resp.HasStampArea
	},
	parseExtract: func(content string) (bool, []Identifier) {
		resp, err := formatting.Parse[sealExtractResponse](content)
		if err != nil {
			return false, nil
		}
		return resp.HasSealIndicator, resp.SealIndicators
	},
	parseNegative: func(content string) bool {
		resp, err := formatting.Parse[sealVerifyResponse](content)
		if err != nil {
			return true
		}
		return !resp.IsSealed
	},
}

type signatureDetectResponse struct {
	HasSignatureArea bool `json:"has_signature_area"`
}

type signatureExtractResponse struct {
	HasSignatureArea bool         `json:"has_signature_area"`
	Signatures       []Identifier `json:"signatures"`
}

type signatureVerifyResponse struct {
	HasSignatureContent bool `json:"has_signature_content"`
}

// Signature checks that every signature area carries written content.
var Signature = Namespace{
	Name:          "signature",
	DetectPrompt:  prompts.SignatureAreaDetect,
	ExtractPrompt: prompts.SignatureIdentifierExtract,
	VerifyPrompt:  prompts.SignatureStatus,
	ErrorType:     report.TypeSignatureMissing,
	parseDetect: func(content string) bool {
		resp, err := formatting.Parse[signatureDetectResponse](content)
		return err == nil && resp.HasSignatureArea
	},
	parseExtract: func(content string) (bool, []Identifier) {
		resp, err := formatting.Parse[signatureExtractResponse](content)
		if err != nil {
			return false, nil
		}
		return resp.HasSignatureArea, resp.Signatures
	},
	parseNegative: func(content string) bool {
		resp, err := formatting.Parse[signatureVerifyResponse](content)
		if err != nil {
			return true
		}
		return !resp.HasSignatureContent
	},
}

// Namespaces lists the three check categories in their canonical order.
var Namespaces = []Namespace{Date, Seal, Signature}
