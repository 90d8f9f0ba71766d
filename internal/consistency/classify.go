package consistency

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Classification is the rule-based category decision for one file.
type Classification struct {
	Category    string
	Keyword     string
	MatchedPage string
}

var (
	whitespace      = regexp.MustCompile(`\s+`)
	contractPattern = regexp.MustCompile(`(采购|销售|购销|买卖|技术开发|产品).{0,3}合同`)

	contractTitles = map[string]bool{
		"采购合同":   true,
		"采购订单":   true,
		"销售合同":   true,
		"购销合同":   true,
		"买卖合同":   true,
		"技术开发合同": true,
	}

	deliveryKeywords = []string{"送货单", "送货签收", "送货清单", "出货单", "发货单", "单货送"}
)

// matchReceipt reports a goods-receipt note: a line ending with the title
// after whitespace stripping, or the title anywhere in the text.
func matchReceipt(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasSuffix(whitespace.ReplaceAllString(line, ""), TypeReceipt) {
			return TypeReceipt, true
		}
	}
	if strings.Contains(content, TypeReceipt) {
		return TypeReceipt, true
	}
	return "", false
}

// matchDelivery reports a delivery note by keyword in the
// whitespace-stripped text.
func matchDelivery(content string) (string, bool) {
	cleaned := whitespace.ReplaceAllString(content, "")
	for _, keyword := range deliveryKeywords {
		if strings.Contains(cleaned, keyword) {
			return keyword, true
		}
	}
	return "", false
}

// matchContract reports a purchase contract: an exact title line, or a
// line matching the fuzzy contract pattern (e.g. 设备采购合同).
func matchContract(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		stripped := whitespace.ReplaceAllString(line, "")
		if stripped == "" {
			continue
		}
		if contractTitles[stripped] {
			return stripped, true
		}
		if contractPattern.MatchString(stripped) {
			return stripped, true
		}
	}
	return "", false
}

// classifyContent applies the category rules in priority order: receipt
// over delivery over contract. First match wins.
func classifyContent(content string) (Classification, bool) {
	if keyword, ok := matchReceipt(content); ok {
		return Classification{Category: TypeReceipt, Keyword: keyword}, true
	}
	if keyword, ok := matchDelivery(content); ok {
		return Classification{Category: TypeDelivery, Keyword: keyword}, true
	}
	if keyword, ok := matchContract(content); ok {
		return Classification{Category: TypeContract, Keyword: keyword}, true
	}
	return Classification{}, false
}

// ClassifyFile classifies a file from its recognized page texts: pages are
// checked in order and the first matching page decides. A file whose
// listed pages all fail to read returns an error so the group can record
// the fault; unreadable pages among readable ones are simply skipped.
func ClassifyFile(pageFiles []string) (Classification, error) {
	readFailures := 0
	for _, pageFile := range pageFiles {
		content, err := os.ReadFile(pageFile)
		if err != nil {
			readFailures++
			continue
		}

		if result, ok := classifyContent(string(content)); ok {
			result.MatchedPage = pageFile
			return result, nil
		}
	}

	if len(pageFiles) > 0 && readFailures == len(pageFiles) {
		return Classification{}, fmt.Errorf("no readable page content among %d pages", len(pageFiles))
	}

	return Classification{Category: TypeUnclassified}, nil
}
