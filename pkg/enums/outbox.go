package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateReservation OutboxAggregateType = "reservation"
	AggregateStockAlert  OutboxAggregateType = "stock_alert"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateReservation,
	AggregateStockAlert,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event queued in the outbox.
type OutboxEventType string

const (
	EventReservationConfirmed OutboxEventType = "reservation_confirmed"
	EventReservationReleased  OutboxEventType = "reservation_released"
	EventReservationExpired   OutboxEventType = "reservation_expired"
	EventStockAlertRaised     OutboxEventType = "stock_alert_raised"
	EventStockAlertResolved   OutboxEventType = "stock_alert_resolved"
)

var validOutboxEventTypes = []OutboxEventType{
	EventReservationConfirmed,
	EventReservationReleased,
	EventReservationExpired,
	EventStockAlertRaised,
	EventStockAlertResolved,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
