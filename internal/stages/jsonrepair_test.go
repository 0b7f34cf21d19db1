package stages

import "testing"

func TestParseExtractedPO_StripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"number\":\"PO-1\",\"lineItems\":[{\"productName\":\"Widget\",\"quantity\":2,\"unitCost\":5}]}\n```"
	out, err := parseExtractedPO(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Number != "PO-1" {
		t.Fatalf("expected number PO-1, got %q", out.Number)
	}
	if len(out.LineItems) != 1 || out.LineItems[0].ProductName != "Widget" {
		t.Fatalf("unexpected line items: %+v", out.LineItems)
	}
}

func TestParseExtractedPO_RecoversFromSurroundingProse(t *testing.T) {
	raw := "Here is the extracted purchase order:\n{\"number\":\"PO-2\",\"lineItems\":[{\"productName\":\"Gadget\",\"quantity\":1,\"unitCost\":10}]}\nLet me know if you need anything else."
	out, err := parseExtractedPO(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Number != "PO-2" {
		t.Fatalf("expected number PO-2, got %q", out.Number)
	}
}

func TestParseExtractedPO_NoJSONObjectFails(t *testing.T) {
	if _, err := parseExtractedPO("not json at all"); err == nil {
		t.Fatal("expected error for non-JSON input")
	}
}

func TestStripMarkdownFence_PlainFence(t *testing.T) {
	if got := stripMarkdownFence("```\nhello\n```"); got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}
