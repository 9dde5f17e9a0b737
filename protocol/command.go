package protocol

// CommandType defines the type of the command (using uint8 for memory alignment and performance)
type CommandType uint8

const (
	CmdUnknown     CommandType = 0
	CmdPlaceOrder  CommandType = 51
	CmdCancelOrder CommandType = 52
	CmdAmendOrder  CommandType = 53
	CmdMatch       CommandType = 54
)

func (c CommandType) String() string {
	switch c {
	case CmdPlaceOrder:
		return "place_order"
	case CmdCancelOrder:
		return "cancel_order"
	case CmdAmendOrder:
		return "amend_order"
	case CmdMatch:
		return "match"
	default:
		return "unknown"
	}
}

// Command is the standard carrier for commands entering the order book sequencer.
type Command struct {
	// Version is the protocol version for backward compatibility.
	Version uint8 `json:"version"`

	// SeqID is used for global ordering and deduplication.
	SeqID uint64 `json:"seq_id"`

	// Type identifies the payload type for fast routing.
	Type CommandType `json:"type"`

	// Payload contains the serialized business data (e.g., JSON bytes of PlaceOrderCommand).
	Payload []byte `json:"payload"`

	// Metadata stores non-business context (e.g., Tracing ID, Source IP).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PlaceOrderCommand is the payload for placing a new order.
// OrderID zero asks the book to issue the next id.
type PlaceOrderCommand struct {
	OrderID   uint64    `json:"order_id"`
	Side      Side      `json:"side"`
	OrderType OrderType `json:"order_type"`
	Price     string    `json:"price,omitempty"` // Using string to prevent precision loss in JSON
	Quantity  int64     `json:"quantity"`
	Owner     string    `json:"owner,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// CancelOrderCommand is the payload for cancelling an existing order.
type CancelOrderCommand struct {
	OrderID   uint64 `json:"order_id"`
	Timestamp int64  `json:"timestamp"`
}

// AmendOrderCommand is the payload for modifying an existing order.
// Empty NewPrice or zero NewQuantity keeps the current value.
type AmendOrderCommand struct {
	OrderID     uint64 `json:"order_id"`
	NewPrice    string `json:"new_price,omitempty"`
	NewQuantity int64  `json:"new_quantity,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// MatchCommand asks the book to cross resting orders at the given mark.
type MatchCommand struct {
	ReferencePrice string `json:"reference_price,omitempty"`
}
