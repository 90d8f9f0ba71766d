package consistency

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/auditkit/docaudit/internal/prompts"
	"github.com/auditkit/docaudit/internal/report"
	"github.com/auditkit/docaudit/pkg/formatting"
)

type materialKey struct {
	Name string
	Spec string
}

const quantityTolerance = 0.01

// CheckQuantities compares summed material quantities across the three
// document types. Only materials reported in all three are compared; a
// material absent from any one type cannot be checked and produces no
// error.
func CheckQuantities(extractions map[string]map[string]any, project, folder string) []report.Item {
	contract := aggregateItems(
		collectPageResults(extractions, TypeContract, prompts.ExtractContractItems),
		"items", "name", "spec", "quantity",
	)
	delivery := aggregateItems(
		collectPageResults(extractions, TypeDelivery, prompts.ExtractDeliveryItems),
		"items", "name", "spec", "quantity",
	)
	receipt := aggregateItems(
		collectPageResults(extractions, TypeReceipt, prompts.ExtractReceiptCombined),
		"明细数据", "存货名称", "规格型号", "数量",
	)

	var common []materialKey
	for key := range contract {
		if _, inDelivery := delivery[key]; !inDelivery {
			continue
		}
		if _, inReceipt := receipt[key]; !inReceipt {
			continue
		}
		common = append(common, key)
	}
	sort.Slice(common, func(i, j int) bool {
		if common[i].Name != common[j].Name {
			return common[i].Name < common[j].Name
		}
		return common[i].Spec < common[j].Spec
	})

	var errs []report.Item
	for _, key := range common {
		contractQty := contract[key]
		deliveryQty := delivery[key]
		receiptQty := receipt[key]

		consistent := math.Abs(contractQty-deliveryQty) < quantityTolerance &&
			math.Abs(contractQty-receiptQty) < quantityTolerance &&
			math.Abs(deliveryQty-receiptQty) < quantityTolerance
		if consistent {
			continue
		}

		specDisplay := ""
		if key.Spec != "" {
			specDisplay = fmt.Sprintf("（%s）", key.Spec)
		}

		errs = append(errs, report.Item{
			Category: report.CategoryConsistency,
			Type:     report.TypeQuantityMismatch,
			Project:  project,
			Files:    []string{},
			Folder:   folder,
			Pages:    map[string][]int{},
			Description: fmt.Sprintf(
				"材料【%s%s】在三类文档中的数量不一致：采购合同=%v，送货单=%v，入库单=%v",
				key.Name, specDisplay, contractQty, deliveryQty, receiptQty,
			),
			Metadata: map[string]any{
				"material_name":     key.Name,
				"material_spec":     key.Spec,
				"contract_quantity": contractQty,
				"delivery_quantity": deliveryQty,
				"receipt_quantity":  receiptQty,
				"check_type":        "quantity_consistency",
			},
		})
	}

	return errs
}

// collectPageResults gathers the page results of one extraction branch
// across every file of the given document type.
func collectPageResults(extractions map[string]map[string]any, docType, promptKey string) []formatting.Result {
	var results []formatting.Result

	files := make([]string, 0, len(extractions))
	for file := range extractions {
		files = append(files, file)
	}
	sort.Strings(files)

	for _, file := range files {
		fileResults := extractions[file]
		if fileResults[extractionTypeKey] != docType {
			continue
		}
		if pageResults, ok := fileResults[promptKey].([]formatting.Result); ok {
			results = append(results, pageResults...)
		}
	}
	return results
}

// aggregateItems sums quantities by (name, spec) across every parsed page
// payload. Items lacking a name or quantity, or whose quantity fails
// numeric parse after separator stripping, are discarded.
func aggregateItems(pageResults []formatting.Result, itemsField, nameField, specField, quantityField string) map[materialKey]float64 {
	totals := make(map[materialKey]float64)

	for _, page := range pageResults {
		for _, parsed := range parsedPayloads(page) {
			items, ok := parsed[itemsField].([]any)
			if !ok {
				continue
			}

			for _, raw := range items {
				item, ok := raw.(map[string]any)
				if !ok {
					continue
				}

				name := strings.TrimSpace(stringField(item, nameField))
				spec := strings.TrimSpace(stringField(item, specField))
				quantity, ok := parseQuantity(stringField(item, quantityField))
				if name == "" || !ok {
					continue
				}

				totals[materialKey{Name: name, Spec: spec}] += quantity
			}
		}
	}

	return totals
}

// parsedPayloads normalizes a page's parsed value to a list of objects:
// extraction prompts may answer with a single object or an array of them.
func parsedPayloads(page formatting.Result) []map[string]any {
	switch parsed := page.Parsed.(type) {
	case map[string]any:
		return []map[string]any{parsed}
	case []any:
		payloads := make([]map[string]any, 0, len(parsed))
		for _, entry := range parsed {
			if m, ok := entry.(map[string]any); ok {
				payloads = append(payloads, m)
			}
		}
		return payloads
	default:
		return nil
	}
}

// stringField reads a field that models report as either text or a bare
// number.
func stringField(item map[string]any, field string) string {
	switch v := item[field].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// parseQuantity strips Latin and full-width thousands separators before
// numeric parse.
func parseQuantity(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.ReplaceAll(raw, "，", "")

	quantity, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return quantity, true
}
