// Package prompts embeds the prompt templates for every model invocation
// in the audit pipeline. Templates use {name} placeholders filled at call
// time; each capability call maps to exactly one template.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.txt
var templates embed.FS

// Normative verification templates, one triple per namespace.
const (
	DateAreaDetect        = "date_area_detect"
	DateIdentifierExtract = "date_identifier_extract"
	DateFillingStatus     = "check_date_filling_status"

	SealAreaDetect        = "seal_area_detect"
	SealIdentifierExtract = "seal_identifier_extract"
	SealStatus            = "check_seal_status"

	SignatureAreaDetect        = "signature_area_detect"
	SignatureIdentifierExtract = "signature_identifier_extract"
	SignatureStatus            = "check_signature_status"
)

// Structured extraction templates. The template name doubles as the result
// key under which a branch stores its output, which is what keeps the five
// parallel branches write-disjoint.
const (
	ExtractContractDate    = "extract_purchase_contract_date"
	ExtractContractItems   = "extract_purchase_contract_items"
	ExtractDeliveryDate    = "extract_delivery_note_date"
	ExtractDeliveryItems   = "extract_delivery_note_items"
	ExtractReceiptCombined = "extract_purchase_receipt_date_and_items"
)

// Load returns the template with the given name.
func Load(name string) (string, error) {
	data, err := templates.ReadFile("templates/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", name, err)
	}
	return string(data), nil
}

// Fill substitutes {key} placeholders in the template with the given
// values. Unknown placeholders are left in place.
func Fill(template string, vars map[string]string) string {
	for key, value := range vars {
		template = strings.ReplaceAll(template, "{"+key+"}", value)
	}
	return template
}
