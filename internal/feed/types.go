package feed

// rawTrade is one row from GET /products/{id}/trades.
// Prices, sizes and times arrive as strings and go through the conversion
// layer before the engine ever sees them.
type rawTrade struct {
	TradeID int64  `json:"trade_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Time    string `json:"time"`
	Side    string `json:"side"`
}

// tickerResponse is the payload of GET /products/{id}/ticker.
type tickerResponse struct {
	TradeID int64  `json:"trade_id"`
	Price   string `json:"price"`
	Bid     string `json:"bid"`
	Ask     string `json:"ask"`
	Volume  string `json:"volume"`
	Time    string `json:"time"`
}

// matchMessage is a trade broadcast on the websocket "matches" channel.
type matchMessage struct {
	Type      string `json:"type"`
	TradeID   int64  `json:"trade_id"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Time      string `json:"time"`
	Side      string `json:"side"`
}

// subscribeRequest is the websocket subscription envelope.
type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}
