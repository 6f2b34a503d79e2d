package intent

import (
	"testing"
)

func TestValidateSlotsHappyPath(t *testing.T) {
	r := DefaultRegistry()
	def, err := r.Lookup("updatePurchaseOrderItem")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	// Adapter output arrives as JSON-decoded values: numbers are float64,
	// and models routinely quote them.
	raw := map[string]any{
		"poNumber": "4500000123",
		"item":     float64(10),
		"quantity": "50",
	}
	coerced, missing, fieldErrs := r.ValidateSlots(def, raw)
	if len(missing) != 0 || len(fieldErrs) != 0 {
		t.Fatalf("unexpected problems: missing=%v errs=%v", missing, fieldErrs)
	}
	if coerced["poNumber"] != "4500000123" {
		t.Fatalf("poNumber = %v", coerced["poNumber"])
	}
	if coerced["item"] != "10" {
		t.Fatalf("item should coerce to string, got %v (%T)", coerced["item"], coerced["item"])
	}
	if coerced["quantity"] != int64(50) {
		t.Fatalf("quantity should coerce to int64, got %v (%T)", coerced["quantity"], coerced["quantity"])
	}
}

func TestValidateSlotsMissingRequired(t *testing.T) {
	r := DefaultRegistry()
	def, err := r.Lookup("updatePurchaseOrderItem")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	_, missing, fieldErrs := r.ValidateSlots(def, map[string]any{
		"poNumber": "4500000123",
		"item":     "10",
	})
	if len(fieldErrs) != 0 {
		t.Fatalf("unexpected field errors: %v", fieldErrs)
	}
	if len(missing) != 1 || missing[0] != "quantity" {
		t.Fatalf("expected missing [quantity], got %v", missing)
	}
}

func TestValidateSlotsRules(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name    string
		intent  string
		raw     map[string]any
		badSlot string
	}{
		{
			name:    "po number pattern",
			intent:  "getPurchaseOrderStatus",
			raw:     map[string]any{"poNumber": "12345"},
			badSlot: "poNumber",
		},
		{
			name:    "quantity below minimum",
			intent:  "createPurchaseOrder",
			raw:     map[string]any{"supplier": "100042", "material": "M-100", "quantity": float64(0)},
			badSlot: "quantity",
		},
		{
			name:    "quantity not a whole number",
			intent:  "createPurchaseOrder",
			raw:     map[string]any{"supplier": "100042", "material": "M-100", "quantity": 12.5},
			badSlot: "quantity",
		},
		{
			name:    "payment terms outside enum",
			intent:  "updatePurchaseOrder",
			raw:     map[string]any{"poNumber": "4500000123", "paymentTerms": "NET45"},
			badSlot: "paymentTerms",
		},
		{
			name:    "currency pattern",
			intent:  "updatePurchaseOrder",
			raw:     map[string]any{"poNumber": "4500000123", "currency": "euros"},
			badSlot: "currency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := r.Lookup(tt.intent)
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			_, _, fieldErrs := r.ValidateSlots(def, tt.raw)
			if len(fieldErrs) != 1 {
				t.Fatalf("expected 1 field error, got %v", fieldErrs)
			}
			if fieldErrs[0].Field != tt.badSlot {
				t.Fatalf("expected error on %s, got %s: %s", tt.badSlot, fieldErrs[0].Field, fieldErrs[0].Message)
			}
		})
	}
}

func TestValidateSlotsDropsUnknown(t *testing.T) {
	r := DefaultRegistry()
	def, err := r.Lookup("getPurchaseOrderStatus")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	coerced, missing, fieldErrs := r.ValidateSlots(def, map[string]any{
		"poNumber":  "4500000123",
		"invented":  "whatever",
		"sentiment": 0.7,
	})
	if len(missing) != 0 || len(fieldErrs) != 0 {
		t.Fatalf("unexpected problems: missing=%v errs=%v", missing, fieldErrs)
	}
	if _, ok := coerced["invented"]; ok {
		t.Fatal("unknown slots must be dropped")
	}
	if len(coerced) != 1 {
		t.Fatalf("expected 1 coerced slot, got %v", coerced)
	}
}

func TestValidateSlotsOptionalFields(t *testing.T) {
	r := DefaultRegistry()
	def, err := r.Lookup("createPurchaseOrder")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	// Absent optional plant is fine; a present one still has to match.
	_, missing, fieldErrs := r.ValidateSlots(def, map[string]any{
		"supplier": "100042", "material": "M-100", "quantity": float64(5),
	})
	if len(missing) != 0 || len(fieldErrs) != 0 {
		t.Fatalf("unexpected problems: missing=%v errs=%v", missing, fieldErrs)
	}

	_, _, fieldErrs = r.ValidateSlots(def, map[string]any{
		"supplier": "100042", "material": "M-100", "quantity": float64(5), "plant": "plant one",
	})
	if len(fieldErrs) != 1 || fieldErrs[0].Field != "plant" {
		t.Fatalf("expected plant pattern error, got %v", fieldErrs)
	}
}
