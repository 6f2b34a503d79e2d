package interpret

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// MockInterpreter is a deterministic keyword-and-pattern interpreter used in
// mock mode and for local development without an LLM endpoint. It recognises
// the built-in purchase order intents; anything else comes back ambiguous.
type MockInterpreter struct{}

// NewMockInterpreter creates a mock interpreter.
func NewMockInterpreter() *MockInterpreter {
	return &MockInterpreter{}
}

var (
	poNumberRe = regexp.MustCompile(`\b(45\d{8})\b`)
	itemRe     = regexp.MustCompile(`(?i)\bitem\s+(\d{1,5})\b`)
	quantityRe = regexp.MustCompile(`(?i)\b(?:to|quantity(?:\s+of)?|qty)\s+(\d+)\b`)
	supplierRe = regexp.MustCompile(`(?i)\b(?:supplier|vendor)\s+(\d{6,10})\b`)
	materialRe = regexp.MustCompile(`(?i)\b(?:material|part)\s+([A-Za-z0-9-]+)\b`)
)

// Interpret maps text onto an intent with keyword matching and regex slot
// extraction. Slots it cannot find are simply absent, which exercises the
// resolver's clarification path the same way a fallible model would.
func (m *MockInterpreter) Interpret(_ context.Context, req Request) (*Interpretation, error) {
	text := strings.ToLower(req.Text)
	slots := map[string]any{}

	if v := poNumberRe.FindStringSubmatch(req.Text); v != nil {
		slots["poNumber"] = v[1]
	}
	if v := itemRe.FindStringSubmatch(req.Text); v != nil {
		slots["item"] = v[1]
	}
	if v := quantityRe.FindStringSubmatch(req.Text); v != nil {
		n, _ := strconv.Atoi(v[1])
		slots["quantity"] = n
	}
	if v := supplierRe.FindStringSubmatch(req.Text); v != nil {
		slots["supplier"] = v[1]
	}
	if v := materialRe.FindStringSubmatch(req.Text); v != nil {
		slots["material"] = v[1]
	}

	var intent string
	switch {
	case containsAny(text, "status", "show", "what is", "check"):
		intent = "getPurchaseOrderStatus"
	case containsAny(text, "create", "order from", "new purchase order", "place an order"):
		intent = "createPurchaseOrder"
	case slots["item"] != nil || containsAny(text, "quantity", "increase", "decrease", "change the quantity"):
		intent = "updatePurchaseOrderItem"
	case containsAny(text, "payment terms", "currency", "reprice", "price"):
		intent = "updatePurchaseOrder"
	}

	if intent == "" {
		return &Interpretation{
			Ambiguous:          true,
			ClarifyingQuestion: "I can create, update or check purchase orders. What would you like to do?",
		}, nil
	}
	return &Interpretation{IntentName: intent, Slots: slots, Confidence: 0.9}, nil
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
