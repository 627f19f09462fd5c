package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// User is the signed-in shopper a click is attributed to.
type User struct {
	UserID string
	Age    int
	Gender string
}

// ClickEvent is the payload published when a product page is viewed. Age is
// carried as text on the wire.
type ClickEvent struct {
	UserID    string `json:"userId"`
	Age       string `json:"age"`
	Gender    string `json:"gender"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
	ProductID string `json:"productId"`
}

// StreamID returns the stream the event belongs to: one stream per user.
func (e ClickEvent) StreamID() string { return e.UserID }

// NewClickEvent builds the click payload for u viewing productID.
func NewClickEvent(u User, ip, userAgent, productID string) ClickEvent {
	return ClickEvent{
		UserID:    u.UserID,
		Age:       strconv.Itoa(u.Age),
		Gender:    u.Gender,
		IP:        ip,
		UserAgent: userAgent,
		ProductID: productID,
	}
}

// ErrEmptyOffer is returned by DecodeOffer for the feed's initial nil message.
var ErrEmptyOffer = errors.New("event: empty offer")

// Offer is a message from the offers topic. Its shape is owned by the
// producer, so only the raw document is kept alongside a few common fields.
type Offer struct {
	UserID    string          `json:"userId,omitempty"`
	ProductID string          `json:"productId,omitempty"`
	Offer     string          `json:"offer,omitempty"` // offer code, e.g. offer1
	Message   string          `json:"message,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// DecodeOffer decodes raw, which is either a JSON object or a JSON string
// holding a JSON document. Strings that do not hold JSON become Message.
func DecodeOffer(raw json.RawMessage) (Offer, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Offer{}, ErrEmptyOffer
	}

	doc := raw
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if !json.Valid([]byte(s)) {
			return Offer{Message: s, Raw: raw}, nil
		}
		doc = json.RawMessage(s)
	}

	var o Offer
	if err := json.Unmarshal(doc, &o); err != nil {
		// Valid JSON that is not an object, e.g. a number.
		var v any
		if verr := json.Unmarshal(doc, &v); verr != nil {
			return Offer{}, fmt.Errorf("event: decode offer: %w", err)
		}
		o.Message = fmt.Sprint(v)
	}
	o.Raw = doc
	return o, nil
}
