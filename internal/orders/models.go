package orders

import "time"

// Order is the purchase record awaiting voice confirmation.
//
// Order CRUD lives in a separate service; this module only reads the fields
// the call flow needs and performs two atomic mutations (attempt increment,
// confirmation flip).
//
// Money invariant: amounts are minor units (cents). Formatting to major units
// happens only at presentation boundaries (the spoken script).
type Order struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// ExternalOrderID is the e-commerce platform's order number. It is what
	// the customer recognizes, so it is the one spoken in the script.
	ExternalOrderID string `json:"order_id" db:"external_order_id"`

	Customer Customer     `json:"customer"`
	Details  OrderDetails `json:"order_details"`

	ConfirmationStatus ConfirmationStatus `json:"confirmation_status" db:"confirmation_status"`

	CallAttempts    int `json:"call_attempts" db:"call_attempts"`
	MaxCallAttempts int `json:"max_call_attempts" db:"max_call_attempts"`

	LastCallDate *time.Time `json:"last_call_date,omitempty" db:"last_call_date"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"` // E.164
	Email string `json:"email,omitempty"`
}

type OrderItem struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

type OrderDetails struct {
	Items      []OrderItem `json:"items"`
	TotalMinor int64       `json:"total_minor"`
	Currency   string      `json:"currency"`
}

type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationFailed    ConfirmationStatus = "failed"
	ConfirmationCancelled ConfirmationStatus = "cancelled"
)

// AttemptsRemaining is the attempt budget left for this order.
func (o Order) AttemptsRemaining() int {
	if r := o.MaxCallAttempts - o.CallAttempts; r > 0 {
		return r
	}
	return 0
}
