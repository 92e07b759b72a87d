package types

import "time"

// Tick is a single bid/ask price update for an instrument. Ticks are
// transient: they are consumed by the aggregator immediately and never stored.
type Tick struct {
	Instrument string    `json:"instrument"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Time       time.Time `json:"time"`
}

// Bar is one finalized OHLC+volume record for a fixed time window.
// Bars are immutable once created.
type Bar struct {
	Instrument  string    `yaml:"instrument" json:"instrument" csv:"instrument"`
	WindowStart time.Time `yaml:"window_start" json:"window_start" csv:"window_start"`
	Open        float64   `yaml:"open" json:"open" csv:"open"`
	High        float64   `yaml:"high" json:"high" csv:"high"`
	Low         float64   `yaml:"low" json:"low" csv:"low"`
	Close       float64   `yaml:"close" json:"close" csv:"close"`
	Volume      int64     `yaml:"volume" json:"volume" csv:"volume"`
}

// Price is a fresh bid/ask quote obtained from the broker's pricing endpoint.
// Order pricing uses this, not the (possibly stale) bar close.
type Price struct {
	Instrument string    `json:"instrument"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Time       time.Time `json:"time"`
}
