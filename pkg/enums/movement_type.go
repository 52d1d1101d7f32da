package enums

import "fmt"

// MovementType classifies an entry in the stock movement log.
type MovementType string

const (
	MovementTypePurchase   MovementType = "PURCHASE"
	MovementTypeSale       MovementType = "SALE"
	MovementTypeReserve    MovementType = "RESERVE"
	MovementTypeRelease    MovementType = "RELEASE"
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
)

var validMovementTypes = []MovementType{
	MovementTypePurchase,
	MovementTypeSale,
	MovementTypeReserve,
	MovementTypeRelease,
	MovementTypeAdjustment,
}

// String implements fmt.Stringer.
func (m MovementType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementType.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementType converts raw input into a MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
