package formatting_test

import (
	"errors"
	"testing"

	"github.com/auditkit/docaudit/pkg/formatting"
)

type sample struct {
	HasDateField bool   `json:"has_date_field"`
	Analysis     string `json:"analysis"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    sample
		wantErr bool
	}{
		{
			"plain json",
			`{"has_date_field": true, "analysis": "filled"}`,
			sample{HasDateField: true, Analysis: "filled"},
			false,
		},
		{
			"fenced json",
			"Here is the result:\n```json\n{\"has_date_field\": true}\n```",
			sample{HasDateField: true},
			false,
		},
		{
			"fence without language tag",
			"```\n{\"analysis\": \"empty\"}\n```",
			sample{Analysis: "empty"},
			false,
		},
		{
			"reasoning prefix",
			"<think>the field looks blank</think>\n{\"has_date_field\": false, \"analysis\": \"blank\"}",
			sample{Analysis: "blank"},
			false,
		},
		{
			"surrounding whitespace",
			"  \n{\"has_date_field\": true}\n  ",
			sample{HasDateField: true},
			false,
		},
		{
			"no json at all",
			"the page contains no date field",
			sample{},
			true,
		},
		{
			"malformed fence",
			"```json\n{\"has_date_field\": tru\n```",
			sample{},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.Parse[sample](tt.content)
			if tt.wantErr {
				if !errors.Is(err, formatting.ErrParseFailed) {
					t.Fatalf("Parse error = %v, want ErrParseFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no tag", `{"a":1}`, `{"a":1}`},
		{"single block", "<think>hmm</think>answer", "answer"},
		{"nested tags keep last", "<think>a</think>mid</think>tail", "tail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatting.StripReasoning(tt.content); got != tt.want {
				t.Errorf("StripReasoning = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAny(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		res := formatting.ParseAny(`{"dates": ["2023年4月1日"]}`)
		if res.Parsed == nil {
			t.Fatal("Parsed = nil, want object")
		}
		obj, ok := res.Parsed.(map[string]any)
		if !ok {
			t.Fatalf("Parsed is %T, want map", res.Parsed)
		}
		if _, ok := obj["dates"]; !ok {
			t.Error("missing dates key")
		}
	})

	t.Run("array", func(t *testing.T) {
		res := formatting.ParseAny(`[{"name": "Pipe"}]`)
		if _, ok := res.Parsed.([]any); !ok {
			t.Fatalf("Parsed is %T, want slice", res.Parsed)
		}
	})

	t.Run("free text keeps raw", func(t *testing.T) {
		raw := "no structured content here"
		res := formatting.ParseAny(raw)
		if res.Parsed != nil {
			t.Errorf("Parsed = %v, want nil", res.Parsed)
		}
		if res.Raw != raw {
			t.Errorf("Raw = %q, want %q", res.Raw, raw)
		}
	})

	t.Run("bare string treated as failure", func(t *testing.T) {
		res := formatting.ParseAny(`"just a quoted string"`)
		if res.Parsed != nil {
			t.Errorf("Parsed = %v, want nil", res.Parsed)
		}
	})
}
