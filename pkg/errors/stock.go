package errors

import "fmt"

// StockShortage describes an allocation failure for one flower type.
type StockShortage struct {
	FlowerTypeID string `json:"flower_type_id"`
	FlowerType   string `json:"flower_type"`
	Requested    int    `json:"requested"`
	Available    int    `json:"available"`
}

// Short returns how many units the allocation was missing.
func (s StockShortage) Short() int {
	return s.Requested - s.Available
}

// NewInsufficientStock builds the coded error for a raw-material or product shortfall.
func NewInsufficientStock(shortage StockShortage) *Error {
	msg := fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		shortage.FlowerType, shortage.Requested, shortage.Available)
	return New(CodeInsufficientStock, msg).WithDetails(shortage)
}
