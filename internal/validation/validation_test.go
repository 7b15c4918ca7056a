package validation

import (
	"testing"
)

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		LocationID: 1,
		Items: []OrderItem{
			{ItemType: "product", ProductID: 10, Quantity: 2, Price: 500},
			{ItemType: "recipe", RecipeID: 3, Quantity: 1, Price: 750.5},
		},
		PaymentMethod: "cash",
		Total:         1750.5, // 2*500 + 1*750.5
	}

	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_ValidWithModifiers(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		Items: []OrderItem{
			{
				ItemType: "product",
				Quantity: 2,
				Price:    400,
				Modifiers: []OrderItemModifier{
					{ModifierID: 7, Name: "extra shot", Price: 100},
					{ModifierID: 8, Price: 50},
				},
			},
		},
		PaymentMethod: "kaspi",
		Total:         1100, // 2 * (400 + 100 + 50)
	}

	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_InvalidTotalMismatch(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		Items: []OrderItem{
			{ItemType: "product", Quantity: 1, Price: 500},
		},
		PaymentMethod: "card",
		Total:         499.99, // mismatch
	}

	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for total mismatch, got nil")
	}
}

func TestCreateOrderRequest_MissingFields(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		// Items and PaymentMethod missing
		Total: 0,
	}

	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation errors for missing required fields, got nil")
	}
}

func TestCreateOrderRequest_UnknownPaymentMethod(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		Items: []OrderItem{
			{ItemType: "product", Quantity: 1, Price: 500},
		},
		PaymentMethod: "cheque",
		Total:         500,
	}

	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for unknown payment method, got nil")
	}
}

func TestCreateOrderRequest_InvalidItemType(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		Items: []OrderItem{
			{ItemType: "combo", Quantity: 1, Price: 500},
		},
		PaymentMethod: "cash",
		Total:         500,
	}

	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for unknown item type, got nil")
	}
}
