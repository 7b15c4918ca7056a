package validation

// OrderItemModifier is one modifier applied to a line item.
type OrderItemModifier struct {
	ModifierID int     `json:"modifier_id" validate:"required"`
	Name       string  `json:"name,omitempty"`
	Price      float64 `json:"price" validate:"gte=0"`
}

// OrderItem is a single order line item.
type OrderItem struct {
	ItemType  string              `json:"item_type" validate:"required,oneof=product recipe"`
	ProductID int                 `json:"product_id,omitempty"`
	RecipeID  int                 `json:"recipe_id,omitempty"`
	VariantID int                 `json:"variant_id,omitempty"`
	Quantity  int                 `json:"quantity" validate:"required,min=1"`
	Price     float64             `json:"price" validate:"gte=0"`
	Modifiers []OrderItemModifier `json:"modifiers,omitempty" validate:"dive"`
}

// CreateOrderRequest is the payload for POST /orders. Only this envelope is
// validated locally; the raw request body is what gets relayed verbatim to
// the remote API.
type CreateOrderRequest struct {
	LocationID    int         `json:"location_id,omitempty"`
	Items         []OrderItem `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string      `json:"payment_method" validate:"required,oneof=cash card kaspi"`
	Total         float64     `json:"total" validate:"required,gt=0"`
}
