package prompts_test

import (
	"strings"
	"testing"

	"github.com/auditkit/docaudit/internal/prompts"
)

func TestLoadAllTemplates(t *testing.T) {
	names := []string{
		prompts.DateAreaDetect,
		prompts.DateIdentifierExtract,
		prompts.DateFillingStatus,
		prompts.SealAreaDetect,
		prompts.SealIdentifierExtract,
		prompts.SealStatus,
		prompts.SignatureAreaDetect,
		prompts.SignatureIdentifierExtract,
		prompts.SignatureStatus,
		prompts.ExtractContractDate,
		prompts.ExtractContractItems,
		prompts.ExtractDeliveryDate,
		prompts.ExtractDeliveryItems,
		prompts.ExtractReceiptCombined,
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			tpl, err := prompts.Load(name)
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if strings.TrimSpace(tpl) == "" {
				t.Error("template is empty")
			}
		})
	}
}

func TestLoadUnknown(t *testing.T) {
	if _, err := prompts.Load("no_such_template"); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestFill(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			"single placeholder",
			"check {identifier} now",
			map[string]string{"identifier": "签订日期"},
			"check 签订日期 now",
		},
		{
			"multiple placeholders",
			"{identifier} at {position}",
			map[string]string{"identifier": "公章", "position": "右下角"},
			"公章 at 右下角",
		},
		{
			"unknown placeholder left in place",
			"{identifier} and {other}",
			map[string]string{"identifier": "x"},
			"x and {other}",
		},
		{
			"repeated placeholder",
			"{k} {k}",
			map[string]string{"k": "v"},
			"v v",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prompts.Fill(tt.template, tt.vars); got != tt.want {
				t.Errorf("Fill = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFillingStatusTemplateHasPlaceholders(t *testing.T) {
	tpl, err := prompts.Load(prompts.DateFillingStatus)
	if err != nil {
		t.Fatal(err)
	}
	for _, placeholder := range []string{"{identifier}", "{position}"} {
		if !strings.Contains(tpl, placeholder) {
			t.Errorf("template missing %s", placeholder)
		}
	}
}
