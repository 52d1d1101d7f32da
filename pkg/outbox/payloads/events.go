package payloads

import (
	"time"

	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
)

// StockAlertEvent is emitted when an alert is raised or resolved. Notification
// dispatch subscribes to these.
type StockAlertEvent struct {
	AlertID      string          `json:"alert_id"`
	ProductID    string          `json:"product_id"`
	AlertType    enums.AlertType `json:"alert_type"`
	Threshold    int             `json:"threshold"`
	CurrentStock int             `json:"current_stock"`
	Resolved     bool            `json:"resolved"`
}

// ReservationLine mirrors one held product in reservation events.
type ReservationLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ReservationEvent is emitted on every terminal reservation transition.
type ReservationEvent struct {
	ReservationID string                  `json:"reservation_id"`
	CheckoutID    *string                 `json:"checkout_id,omitempty"`
	Status        enums.ReservationStatus `json:"status"`
	Lines         []ReservationLine       `json:"lines"`
	TransitionAt  time.Time               `json:"transition_at"`
}
