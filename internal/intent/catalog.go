package intent

import "github.com/procureflow/agent/internal/domain"

func f64(v float64) *float64 { return &v }

// Catalog returns the built-in procurement intent definitions. The plan for
// each intent is a closed PlanKind variant; see the engine's plan builder for
// the step sequences.
func Catalog() []domain.IntentDefinition {
	return []domain.IntentDefinition{
		{
			Name:        "createPurchaseOrder",
			Description: "Create a new purchase order for a supplier and material, then release it.",
			Plan:        domain.PlanCreatePurchaseOrder,
			Fields: []domain.FieldSpec{
				{Name: "supplier", Type: domain.FieldTypeString, Required: true, Description: "Supplier account number", Pattern: `^\d{6,10}$`},
				{Name: "material", Type: domain.FieldTypeString, Required: true, Description: "Material number to order"},
				{Name: "quantity", Type: domain.FieldTypeInt, Required: true, Description: "Order quantity in base units", Min: f64(1), Max: f64(1_000_000)},
				{Name: "plant", Type: domain.FieldTypeString, Required: false, Description: "Receiving plant code", Pattern: `^[A-Z0-9]{4}$`},
			},
		},
		{
			Name:        "updatePurchaseOrderItem",
			Description: "Change the quantity of one line item on an existing purchase order.",
			Plan:        domain.PlanUpdatePurchaseOrderItem,
			Fields: []domain.FieldSpec{
				{Name: "poNumber", Type: domain.FieldTypeString, Required: true, Description: "Purchase order number", Pattern: `^45\d{8}$`},
				{Name: "item", Type: domain.FieldTypeString, Required: true, Description: "Line item number within the order", Pattern: `^\d{1,5}$`},
				{Name: "quantity", Type: domain.FieldTypeInt, Required: true, Description: "New quantity in base units", Min: f64(1), Max: f64(1_000_000)},
			},
		},
		{
			Name:        "updatePurchaseOrder",
			Description: "Update header fields of a purchase order and reprice it.",
			Plan:        domain.PlanUpdatePurchaseOrder,
			Fields: []domain.FieldSpec{
				{Name: "poNumber", Type: domain.FieldTypeString, Required: true, Description: "Purchase order number", Pattern: `^45\d{8}$`},
				{Name: "paymentTerms", Type: domain.FieldTypeString, Required: false, Description: "Payment terms key", Enum: []string{"NET30", "NET60", "NET90"}},
				{Name: "currency", Type: domain.FieldTypeString, Required: false, Description: "Document currency", Pattern: `^[A-Z]{3}$`},
				{Name: "priceAmount", Type: domain.FieldTypeNumber, Required: false, Description: "New net price amount", Min: f64(0)},
			},
		},
		{
			Name:        "getPurchaseOrderStatus",
			Description: "Fetch the current status and items of a purchase order.",
			Plan:        domain.PlanGetPurchaseOrderStatus,
			Fields: []domain.FieldSpec{
				{Name: "poNumber", Type: domain.FieldTypeString, Required: true, Description: "Purchase order number", Pattern: `^45\d{8}$`},
			},
		},
	}
}

// DefaultRegistry builds the registry from the built-in catalog. The catalog
// is static, so a build failure is a programming error.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Catalog())
	if err != nil {
		panic(err)
	}
	return r
}
