package errors

import "fmt"

// StockShortage describes one product that could not satisfy a request.
type StockShortage struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockDetails is attached to INSUFFICIENT_STOCK errors. The
// top-level fields name the first failing product; Shortages lists all of them.
type InsufficientStockDetails struct {
	StockShortage
	Shortages []StockShortage `json:"shortages,omitempty"`
}

// StateConflictDetails is attached to STATE_CONFLICT errors raised by
// reservation transitions.
type StateConflictDetails struct {
	ReservationID string `json:"reservationId"`
	CurrentState  string `json:"currentState"`
	Attempted     string `json:"attempted"`
}

// InsufficientStock builds the error for one or more shortages. The first
// shortage is reported in the message.
func InsufficientStock(shortages ...StockShortage) *Error {
	if len(shortages) == 0 {
		return New(CodeInsufficientStock, "insufficient stock")
	}
	first := shortages[0]
	details := InsufficientStockDetails{StockShortage: first}
	if len(shortages) > 1 {
		details.Shortages = append([]StockShortage(nil), shortages...)
	}
	msg := fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", first.ProductID, first.Requested, first.Available)
	return New(CodeInsufficientStock, msg).WithDetails(details)
}

// Shortages extracts every shortage carried by an INSUFFICIENT_STOCK error.
func Shortages(err error) []StockShortage {
	typed := As(err)
	if typed == nil || typed.Code() != CodeInsufficientStock {
		return nil
	}
	details, ok := typed.Details().(InsufficientStockDetails)
	if !ok {
		return nil
	}
	if len(details.Shortages) > 0 {
		return details.Shortages
	}
	return []StockShortage{details.StockShortage}
}

func InvalidState(reservationID, current, attempted string) *Error {
	msg := fmt.Sprintf("reservation %s is %s and cannot be %s", reservationID, current, attempted)
	return New(CodeStateConflict, msg).WithDetails(StateConflictDetails{
		ReservationID: reservationID,
		CurrentState:  current,
		Attempted:     attempted,
	})
}

func InvalidAdjustment(productID, reason string) *Error {
	return New(CodeInvalidAdjustment, reason).WithDetails(map[string]any{"productId": productID})
}

func NotFound(resource, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id)).WithDetails(map[string]any{resource + "Id": id})
}
