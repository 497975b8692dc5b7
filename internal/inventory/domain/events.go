package domain

const EventStockRestocked = "StockRestocked"

// StockRestocked is published by the kitchen when fresh units come in.
type StockRestocked struct {
	EventID string         `json:"event_id"`
	Venue   string         `json:"venue"`
	Items   map[string]int `json:"items"`
}

func (e StockRestocked) Request() Request {
	r := make(Request, len(e.Items))
	for id, n := range e.Items {
		r[MenuItemID(id)] = n
	}
	return r
}
