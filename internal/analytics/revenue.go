package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storepulse/internal/events"
	"storepulse/internal/timeframe"
)

// ProductStat is one row of the top products list.
type ProductStat struct {
	ProductID   string  `json:"productId"`
	Name        string  `json:"name"`
	Views       int64   `json:"views"`
	AddedToCart int64   `json:"addedToCart"`
	Purchases   int64   `json:"purchases"`
	Revenue     float64 `json:"revenue"`
}

// Ecommerce holds the funnel, revenue and top products of a window.
type Ecommerce struct {
	FunnelCounts
	ConversionRates ConversionRates `json:"conversionRates"`
	TotalRevenue    float64         `json:"totalRevenue"`
	TopProducts     []ProductStat   `json:"topProducts"`
}

// Ecommerce computes funnel counts, step conversion rates, revenue and top products.
func (s *Service) Ecommerce(ctx context.Context, w timeframe.Window) (*Ecommerce, error) {
	defer observe("ecommerce", time.Now())

	var rows []struct {
		EventType events.EventType
		Count     int64
	}
	err := s.humanEvents(ctx, w).
		Select("event_type, COUNT(*) AS count").
		Where("event_type IN ?", events.FunnelSteps).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error counting funnel events: %w", err)
	}

	var funnel FunnelCounts
	for _, row := range rows {
		funnel.add(row.EventType, row.Count)
	}

	revenue, products, err := s.productStats(ctx, w)
	if err != nil {
		return nil, err
	}

	return &Ecommerce{
		FunnelCounts:    funnel,
		ConversionRates: funnel.Rates(),
		TotalRevenue:    round2(revenue),
		TopProducts:     products,
	}, nil
}

// productStats decodes product payloads in Go since event_data is free-form JSON
// whose extraction functions differ between SQLite and PostgreSQL.
func (s *Service) productStats(ctx context.Context, w timeframe.Window) (float64, []ProductStat, error) {
	var rows []struct {
		EventType events.EventType
		EventData string
	}
	err := s.humanEvents(ctx, w).
		Select("event_type, event_data").
		Where("event_type IN ?", []events.EventType{events.EventTypeProductView, events.EventTypeAddToCart, events.EventTypePurchase}).
		Order("timestamp ASC").
		Order("id ASC").
		Scan(&rows).Error
	if err != nil {
		return 0, nil, fmt.Errorf("error fetching product events: %w", err)
	}

	var total float64
	products := make(map[string]*ProductStat)
	get := func(id, name string) *ProductStat {
		if id == "" {
			return nil
		}
		p, ok := products[id]
		if !ok {
			p = &ProductStat{ProductID: id}
			products[id] = p
		}
		if name != "" {
			p.Name = name
		}
		return p
	}

	for _, row := range rows {
		switch data := events.DecodeEventData(row.EventType, []byte(row.EventData)).(type) {
		case events.ProductData:
			if p := get(data.ProductID.String(), data.ProductName); p != nil {
				p.Views++
			}
		case events.CartData:
			if p := get(data.ProductID.String(), data.ProductName); p != nil {
				p.AddedToCart++
			}
		case events.PurchaseData:
			total += data.Amount.Float64()
			if p := get(data.ProductID.String(), data.ProductName); p != nil {
				p.Purchases++
				p.Revenue += data.Amount.Float64()
			}
		}
	}

	result := make([]ProductStat, 0, len(products))
	for _, p := range products {
		if p.Name == "" {
			p.Name = p.ProductID
		}
		p.Revenue = round2(p.Revenue)
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Purchases != result[j].Purchases {
			return result[i].Purchases > result[j].Purchases
		}
		if result[i].Views != result[j].Views {
			return result[i].Views > result[j].Views
		}
		return result[i].ProductID < result[j].ProductID
	})
	if len(result) > s.opts.BreakdownLimit {
		result = result[:s.opts.BreakdownLimit]
	}
	return total, result, nil
}
