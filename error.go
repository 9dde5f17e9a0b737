package match

import "errors"

var (
	ErrInvalidParam     = errors.New("the param is invalid")
	ErrDuplicateOrderID = errors.New("order id is already resting in the book")
	ErrNotFound         = errors.New("not found")
	ErrSequenceGap      = errors.New("book log sequence gap")
	ErrTimeout          = errors.New("timeout")
	ErrShutdown         = errors.New("order book is shutting down")
)
