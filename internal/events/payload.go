package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// EventData is the typed payload attached to an event. The concrete variant
// is selected by the event type; CustomData catches everything else.
type EventData interface {
	Type() EventType
}

type PageViewData struct {
	Title string `json:"title,omitempty"`
}

type ProductData struct {
	ProductID   FlexString `json:"productId"`
	ProductName string     `json:"productName,omitempty"`
	Price       FlexFloat  `json:"price,omitempty"`
}

type CartData struct {
	ProductID   FlexString `json:"productId"`
	ProductName string     `json:"productName,omitempty"`
	Quantity    FlexFloat  `json:"quantity,omitempty"`
	Price       FlexFloat  `json:"price,omitempty"`
}

type CheckoutData struct {
	CartValue FlexFloat `json:"cartValue,omitempty"`
	ItemCount FlexFloat `json:"itemCount,omitempty"`
}

type PurchaseData struct {
	ProductID   FlexString `json:"productId,omitempty"`
	ProductName string     `json:"productName,omitempty"`
	OrderID     FlexString `json:"orderId,omitempty"`
	Amount      FlexFloat  `json:"amount"`
	Currency    string     `json:"currency,omitempty"`
}

type ButtonClickData struct {
	ButtonName string `json:"buttonName"`
}

// CustomData keeps payloads of unknown types, or of known types whose shape
// did not match, as raw JSON.
type CustomData struct {
	Name EventType
	Raw  json.RawMessage
}

func (PageViewData) Type() EventType    { return EventTypePageView }
func (ProductData) Type() EventType     { return EventTypeProductView }
func (CartData) Type() EventType        { return EventTypeAddToCart }
func (CheckoutData) Type() EventType    { return EventTypeCheckoutStarted }
func (PurchaseData) Type() EventType    { return EventTypePurchase }
func (ButtonClickData) Type() EventType { return EventTypeButtonClick }
func (c CustomData) Type() EventType    { return c.Name }

// MarshalJSON emits the raw payload untouched.
func (c CustomData) MarshalJSON() ([]byte, error) {
	if len(c.Raw) == 0 || !json.Valid(c.Raw) {
		return []byte("null"), nil
	}
	return c.Raw, nil
}

// Fields decodes the raw payload as an object. Non-object payloads yield nil.
func (c CustomData) Fields() map[string]any {
	var fields map[string]any
	if err := json.Unmarshal(c.Raw, &fields); err != nil {
		return nil
	}
	return fields
}

// DecodeEventData maps a raw payload to the variant for eventType. It never fails:
// a payload that does not fit its type's shape becomes CustomData.
func DecodeEventData(eventType EventType, raw []byte) EventData {
	raw = bytes.TrimSpace(raw)

	var target EventData
	switch eventType {
	case EventTypePageView:
		target = &PageViewData{}
	case EventTypeProductView:
		target = &ProductData{}
	case EventTypeAddToCart:
		target = &CartData{}
	case EventTypeCheckoutStarted:
		target = &CheckoutData{}
	case EventTypePurchase:
		target = &PurchaseData{}
	case EventTypeButtonClick:
		target = &ButtonClickData{}
	default:
		return CustomData{Name: eventType, Raw: json.RawMessage(raw)}
	}

	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return derefData(target)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return CustomData{Name: eventType, Raw: json.RawMessage(raw)}
	}
	return derefData(target)
}

// EncodeEventData compacts a client payload for storage. The payload is kept
// whole so fields outside a variant survive; empty or invalid payloads are stored as "".
func EncodeEventData(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}

func derefData(target EventData) EventData {
	switch v := target.(type) {
	case *PageViewData:
		return *v
	case *ProductData:
		return *v
	case *CartData:
		return *v
	case *CheckoutData:
		return *v
	case *PurchaseData:
		return *v
	case *ButtonClickData:
		return *v
	}
	return target
}

// FlexString accepts both JSON strings and numbers, since storefront ids
// arrive either way.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = FlexString(num.String())
	return nil
}

func (s FlexString) String() string {
	return string(s)
}

// FlexFloat accepts JSON numbers and numeric strings such as "9.99".
// Non-finite values are rejected because aggregates must stay encodable.
type FlexFloat float64

var errNonFinite = errors.New("non-finite number")

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errNonFinite
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) Float64() float64 {
	return float64(f)
}
