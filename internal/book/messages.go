package book

// subscribeMessage is the signed streaming subscribe/unsubscribe request.
type subscribeMessage struct {
	Type       string   `json:"type"`
	Channel    string   `json:"channel"`
	ProductIDs []string `json:"product_ids"`
	JWT        string   `json:"jwt"`
	Timestamp  string   `json:"timestamp"`
}

// channelMessage is the inbound envelope. Only the l2_data channel drives
// store mutation; heartbeats and other channels are accepted and ignored.
type channelMessage struct {
	Channel   string         `json:"channel"`
	ClientID  string         `json:"client_id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Sequence  int64          `json:"sequence_num"`
	Events    []channelEvent `json:"events"`
}

type channelEvent struct {
	Type      string        `json:"type"`
	ProductID string        `json:"product_id"`
	Updates   []levelUpdate `json:"updates,omitempty"`
}

// levelUpdate carries an absolute quantity for one price level. Price and
// quantity are arbitrary-precision decimal strings on the wire.
type levelUpdate struct {
	Side        string `json:"side"`
	EventTime   string `json:"event_time"`
	PriceLevel  string `json:"price_level"`
	NewQuantity string `json:"new_quantity"`
}

const (
	channelHeartbeats = "heartbeats"
	channelLevel2     = "level2"
	channelL2Data     = "l2_data"
)
