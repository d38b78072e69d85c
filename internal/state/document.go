package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"btc-short-alerts/internal/history"
	"btc-short-alerts/internal/position"
)

// Document is the single persisted entity: the position and the price window.
type Document struct {
	Position position.State
	History  *history.Window
}

// NewDocument returns the default document: flat with an empty window.
func NewDocument(lookback time.Duration) Document {
	return Document{
		Position: position.NewFlat(),
		History:  history.NewWindow(lookback),
	}
}

// wireDocument mirrors the on-disk schema. Every field is optional so absent keys
// can be told apart from zero values during migration.
type wireDocument struct {
	PositionOpen   *bool        `json:"position_open"`
	EntryPrice     *json.Number `json:"entry_price"`
	EntryTimestamp *string      `json:"entry_timestamp"`
	PriceHistory   []wireSample `json:"price_history"`
}

type wireSample struct {
	Timestamp string      `json:"timestamp"`
	Price     json.Number `json:"price"`
}

// legacyLayouts covers ISO-8601 timestamps written without a zone offset. A
// trailing fractional second is accepted by time.Parse without being in the layout.
var legacyLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parsePrice(n json.Number) (decimal.Decimal, bool) {
	if n == "" {
		return decimal.Decimal{}, false
	}
	p, err := decimal.NewFromString(n.String())
	if err != nil || !p.IsPositive() {
		return decimal.Decimal{}, false
	}
	return p, true
}

// migration collects what had to be repaired while decoding.
type migration struct {
	filled  []string
	dropped int
	reset   string
}

func (m migration) changed() bool {
	return len(m.filled) > 0 || m.dropped > 0 || m.reset != ""
}

// schemaKeys are the top-level fields every document is expected to carry.
var schemaKeys = []string{"position_open", "entry_price", "entry_timestamp", "price_history"}

// decode converts raw JSON into a Document, back-filling missing fields with
// defaults and discarding entries that cannot be interpreted.
func decode(data []byte, lookback time.Duration) (Document, migration, error) {
	var mig migration

	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return Document{}, mig, fmt.Errorf("decode state document: %w", err)
	}
	if present == nil {
		return Document{}, mig, errors.New("decode state document: document is null")
	}
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return Document{}, mig, fmt.Errorf("decode state document: %w", err)
	}

	for _, key := range schemaKeys {
		if _, ok := present[key]; !ok {
			mig.filled = append(mig.filled, key)
		}
	}

	doc := NewDocument(lookback)
	if w.PositionOpen != nil && *w.PositionOpen {
		var price decimal.Decimal
		ok := false
		if w.EntryPrice != nil {
			price, ok = parsePrice(*w.EntryPrice)
		}
		if !ok {
			mig.reset = "open position without a positive entry_price"
		} else {
			var at time.Time
			if w.EntryTimestamp != nil {
				at, _ = parseTimestamp(*w.EntryTimestamp)
			}
			doc.Position, _ = position.NewShort(price, at)
		}
	}

	samples := make([]history.Sample, 0, len(w.PriceHistory))
	for _, ws := range w.PriceHistory {
		at, okTime := parseTimestamp(ws.Timestamp)
		price, okPrice := parsePrice(ws.Price)
		if !okTime || !okPrice {
			mig.dropped++
			continue
		}
		samples = append(samples, history.Sample{Time: at, Price: price})
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
	doc.History = history.FromSamples(lookback, samples)

	return doc, mig, nil
}

func encode(doc Document) wireDocument {
	open := doc.Position.IsOpen()
	w := wireDocument{
		PositionOpen: &open,
		PriceHistory: make([]wireSample, 0),
	}
	if open {
		price := json.Number(doc.Position.EntryPrice.String())
		ts := doc.Position.EntryTime.Format(time.RFC3339Nano)
		w.EntryPrice = &price
		w.EntryTimestamp = &ts
	}
	if doc.History != nil {
		for _, s := range doc.History.Samples() {
			w.PriceHistory = append(w.PriceHistory, wireSample{
				Timestamp: s.Time.Format(time.RFC3339Nano),
				Price:     json.Number(s.Price.String()),
			})
		}
	}
	return w
}
