package consistency

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/auditkit/docaudit/internal/prompts"
	"github.com/auditkit/docaudit/internal/report"
	"github.com/auditkit/docaudit/pkg/formatting"
)

// Accepted textual date forms, matched anywhere in the string.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`),
	regexp.MustCompile(`(\d{4})\.(\d{1,2})\.(\d{1,2})`),
	regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`),
	regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`),
}

const dateLayout = "2006-01-02"

// ParseDate extracts a calendar date from free text in any accepted form.
// An impossible calendar date under one form falls through to the next.
func ParseDate(raw string) (time.Time, bool) {
	for _, pattern := range datePatterns {
		match := pattern.FindStringSubmatch(raw)
		if match == nil {
			continue
		}

		year, _ := strconv.Atoi(match[1])
		month, _ := strconv.Atoi(match[2])
		day, _ := strconv.Atoi(match[3])

		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Year() != year || int(t.Month()) != month || t.Day() != day {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// CheckDateOrder validates contract ≤ delivery ≤ receipt over the
// earliest parsed date of each document type. If any type has no
// parseable date the check is skipped entirely: insufficient data is not
// a violation. The three pairwise checks are independent, so one bad date
// can surface as up to three items.
func CheckDateOrder(extractions map[string]map[string]any, project, folder string) []report.Item {
	contractDates := datesFromField(
		collectPageResults(extractions, TypeContract, prompts.ExtractContractDate),
		"signing_dates",
	)
	deliveryDates := datesFromField(
		collectPageResults(extractions, TypeDelivery, prompts.ExtractDeliveryDate),
		"dates",
	)
	receiptDates := receiptDates(
		collectPageResults(extractions, TypeReceipt, prompts.ExtractReceiptCombined),
	)

	if len(contractDates) == 0 || len(deliveryDates) == 0 || len(receiptDates) == 0 {
		return nil
	}

	contract := earliest(contractDates)
	delivery := earliest(deliveryDates)
	receipt := earliest(receiptDates)

	var errs []report.Item

	if contract.After(delivery) {
		errs = append(errs, dateOrderItem(project, folder,
			fmt.Sprintf(
				"日期顺序不合理：采购合同签订日期（%s）晚于送货单日期（%s）",
				contract.Format(dateLayout), delivery.Format(dateLayout),
			),
			map[string]any{
				"earliest_contract_date": contract.Format(dateLayout),
				"earliest_delivery_date": delivery.Format(dateLayout),
				"check_type":             "date_order_contract_delivery",
			},
		))
	}

	if delivery.After(receipt) {
		errs = append(errs, dateOrderItem(project, folder,
			fmt.Sprintf(
				"日期顺序不合理：送货单日期（%s）晚于采购入库单日期（%s）",
				delivery.Format(dateLayout), receipt.Format(dateLayout),
			),
			map[string]any{
				"earliest_delivery_date": delivery.Format(dateLayout),
				"earliest_receipt_date":  receipt.Format(dateLayout),
				"check_type":             "date_order_delivery_receipt",
			},
		))
	}

	if contract.After(receipt) {
		errs = append(errs, dateOrderItem(project, folder,
			fmt.Sprintf(
				"日期顺序不合理：采购合同签订日期（%s）晚于采购入库单日期（%s）",
				contract.Format(dateLayout), receipt.Format(dateLayout),
			),
			map[string]any{
				"earliest_contract_date": contract.Format(dateLayout),
				"earliest_receipt_date":  receipt.Format(dateLayout),
				"check_type":             "date_order_contract_receipt",
			},
		))
	}

	return errs
}

func dateOrderItem(project, folder, description string, metadata map[string]any) report.Item {
	return report.Item{
		Category:    report.CategoryConsistency,
		Type:        report.TypeDateOrderMismatch,
		Project:     project,
		Files:       []string{},
		Folder:      folder,
		Pages:       map[string][]int{},
		Description: description,
		Metadata:    metadata,
	}
}

// datesFromField parses every date string under the named list field of
// each parsed payload.
func datesFromField(pageResults []formatting.Result, field string) []time.Time {
	var dates []time.Time
	for _, page := range pageResults {
		for _, parsed := range parsedPayloads(page) {
			list, ok := parsed[field].([]any)
			if !ok {
				continue
			}
			for _, raw := range list {
				s, ok := raw.(string)
				if !ok {
					continue
				}
				if date, ok := ParseDate(s); ok {
					dates = append(dates, date)
				}
			}
		}
	}
	return dates
}

// receiptDates reads the document date nested under the receipt header
// object 单据基本信息.
func receiptDates(pageResults []formatting.Result) []time.Time {
	var dates []time.Time
	for _, page := range pageResults {
		for _, parsed := range parsedPayloads(page) {
			header, ok := parsed["单据基本信息"].(map[string]any)
			if !ok {
				continue
			}
			s, ok := header["单据日期"].(string)
			if !ok || s == "" {
				continue
			}
			if date, ok := ParseDate(s); ok {
				dates = append(dates, date)
			}
		}
	}
	return dates
}

func earliest(dates []time.Time) time.Time {
	min := dates[0]
	for _, d := range dates[1:] {
		if d.Before(min) {
			min = d
		}
	}
	return min
}
