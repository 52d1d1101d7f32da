package enums

import "fmt"

// AlertType names the stock condition an alert reports.
type AlertType string

const (
	AlertTypeOutOfStock   AlertType = "OUT_OF_STOCK"
	AlertTypeLowStock     AlertType = "LOW_STOCK"
	AlertTypeReorderPoint AlertType = "REORDER_POINT"
)

var validAlertTypes = []AlertType{
	AlertTypeOutOfStock,
	AlertTypeLowStock,
	AlertTypeReorderPoint,
}

// AlertTypes returns every alert type in evaluation order.
func AlertTypes() []AlertType {
	return append([]AlertType(nil), validAlertTypes...)
}

// String implements fmt.Stringer.
func (a AlertType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AlertType.
func (a AlertType) IsValid() bool {
	for _, candidate := range validAlertTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAlertType converts raw input into an AlertType.
func ParseAlertType(value string) (AlertType, error) {
	for _, candidate := range validAlertTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert type %q", value)
}
