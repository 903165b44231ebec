package analytics

import "storepulse/internal/events"

// ConversionRates are the funnel step rates as percentage strings.
type ConversionRates struct {
	ViewToCart         string `json:"viewToCart"`
	CartToCheckout     string `json:"cartToCheckout"`
	CheckoutToPurchase string `json:"checkoutToPurchase"`
	Overall            string `json:"overall"`
}

// FunnelCounts are event counts per funnel step.
type FunnelCounts struct {
	ProductViews    int64 `json:"productViews"`
	AddedToCart     int64 `json:"addedToCart"`
	CheckoutStarted int64 `json:"checkoutStarted"`
	Purchases       int64 `json:"purchases"`
}

// Rates derives step rates. Funnel order is not assumed: a step may exceed
// its predecessor, and a zero predecessor yields "0".
func (f FunnelCounts) Rates() ConversionRates {
	return ConversionRates{
		ViewToCart:         formatRate(f.AddedToCart, f.ProductViews),
		CartToCheckout:     formatRate(f.CheckoutStarted, f.AddedToCart),
		CheckoutToPurchase: formatRate(f.Purchases, f.CheckoutStarted),
		Overall:            formatRate(f.Purchases, f.ProductViews),
	}
}

func (f *FunnelCounts) add(eventType events.EventType, count int64) {
	switch eventType {
	case events.EventTypeProductView:
		f.ProductViews += count
	case events.EventTypeAddToCart:
		f.AddedToCart += count
	case events.EventTypeCheckoutStarted:
		f.CheckoutStarted += count
	case events.EventTypePurchase:
		f.Purchases += count
	}
}
