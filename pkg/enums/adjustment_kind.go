package enums

import "fmt"

// AdjustmentKind describes why an operator changed the physical stock count.
type AdjustmentKind string

const (
	AdjustmentKindRestock    AdjustmentKind = "restock"
	AdjustmentKindWriteOff   AdjustmentKind = "write_off"
	AdjustmentKindCorrection AdjustmentKind = "correction"
)

var validAdjustmentKinds = []AdjustmentKind{
	AdjustmentKindRestock,
	AdjustmentKindWriteOff,
	AdjustmentKindCorrection,
}

// String implements fmt.Stringer.
func (k AdjustmentKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known AdjustmentKind.
func (k AdjustmentKind) IsValid() bool {
	for _, candidate := range validAdjustmentKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// MovementType maps the adjustment to the movement it produces.
func (k AdjustmentKind) MovementType() MovementType {
	if k == AdjustmentKindRestock {
		return MovementTypePurchase
	}
	return MovementTypeAdjustment
}

// ParseAdjustmentKind converts raw input into an AdjustmentKind.
func ParseAdjustmentKind(value string) (AdjustmentKind, error) {
	for _, candidate := range validAdjustmentKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid adjustment kind %q", value)
}
