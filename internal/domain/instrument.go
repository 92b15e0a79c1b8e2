package domain

import "math"

// SymbolInfo is the host's metadata for the traded instrument.
type SymbolInfo struct {
	Name               string  `json:"name"`
	QuoteAsset         string  `json:"quote_asset"`
	PipSize            float64 `json:"pip_size"`
	PipValue           float64 `json:"pip_value"` // account currency per pip for one unit
	MinVolume          float64 `json:"min_volume"`
	MarginPerMinVolume float64 `json:"margin_per_min_volume"`
	Spread             float64 `json:"spread"`
}

// PipsToPrice converts a distance in pips to price units.
func (s SymbolInfo) PipsToPrice(pips float64) float64 {
	return pips * s.PipSize
}

// PriceToPips converts a price distance to pips.
func (s SymbolInfo) PriceToPips(distance float64) float64 {
	if s.PipSize == 0 {
		return 0
	}
	return distance / s.PipSize
}

// FloorToMinVolume rounds volume down to a whole number of minimum units.
func (s SymbolInfo) FloorToMinVolume(volume float64) float64 {
	if s.MinVolume <= 0 || volume <= 0 {
		return 0
	}
	units := math.Floor(volume/s.MinVolume + 1e-9)
	return units * s.MinVolume
}

type Bar struct {
	OpenTime int64   `json:"open_time"` // unix seconds
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}
