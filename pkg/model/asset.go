package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Asset is a tradable entity as reported by the market data provider.
// Numeric fields keep the exact decimal strings received on the wire and are
// parsed on demand; a malformed value parses as zero.
type Asset struct {
	ID                string  `json:"id"`
	Rank              string  `json:"rank"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Supply            string  `json:"supply"`
	MaxSupply         *string `json:"maxSupply"` // nil means uncapped
	MarketCapUsd      string  `json:"marketCapUsd"`
	VolumeUsd24Hr     string  `json:"volumeUsd24Hr"`
	PriceUsd          string  `json:"priceUsd"`
	ChangePercent24Hr string  `json:"changePercent24Hr"`
	Vwap24Hr          *string `json:"vwap24Hr"`
	Explorer          *string `json:"explorer"`
}

// CachedRecord is an Asset as persisted by a snapshot.
// Every record in a store carries the same SavedTimestamp (epoch ms).
type CachedRecord struct {
	Asset
	SavedTimestamp int64 `json:"savedTimestamp"`
}

// ParseDecimal parses s, returning zero when s is empty or malformed.
func ParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Asset) RankValue() decimal.Decimal     { return ParseDecimal(a.Rank) }
func (a Asset) Price() decimal.Decimal         { return ParseDecimal(a.PriceUsd) }
func (a Asset) ChangePercent() decimal.Decimal { return ParseDecimal(a.ChangePercent24Hr) }
func (a Asset) SupplyValue() decimal.Decimal   { return ParseDecimal(a.Supply) }
func (a Asset) MarketCap() decimal.Decimal     { return ParseDecimal(a.MarketCapUsd) }
func (a Asset) Volume24h() decimal.Decimal     { return ParseDecimal(a.VolumeUsd24Hr) }

// MaxSupplyValue returns the parsed max supply and false when the supply is uncapped.
func (a Asset) MaxSupplyValue() (decimal.Decimal, bool) {
	if a.MaxSupply == nil {
		return decimal.Zero, false
	}
	return ParseDecimal(*a.MaxSupply), true
}

// Vwap returns the 24h volume weighted average price, zero when absent.
func (a Asset) Vwap() decimal.Decimal {
	if a.Vwap24Hr == nil {
		return decimal.Zero
	}
	return ParseDecimal(*a.Vwap24Hr)
}

// SortByRank orders assets by the numeric value of their rank, ascending.
// Equal ranks fall back to id so the ordering is deterministic.
func SortByRank(assets []Asset) {
	sort.SliceStable(assets, func(i, j int) bool {
		return lessByRank(assets[i], assets[j])
	})
}

// SortRecordsByRank is SortByRank for cached records.
func SortRecordsByRank(records []CachedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return lessByRank(records[i].Asset, records[j].Asset)
	})
}

func lessByRank(a, b Asset) bool {
	if c := a.RankValue().Cmp(b.RankValue()); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// NewCachedRecords tags every asset with the same snapshot timestamp.
func NewCachedRecords(assets []Asset, savedTimestamp int64) []CachedRecord {
	records := make([]CachedRecord, 0, len(assets))
	for _, a := range assets {
		records = append(records, CachedRecord{Asset: a, SavedTimestamp: savedTimestamp})
	}
	return records
}

// Assets strips the snapshot metadata from records.
func Assets(records []CachedRecord) []Asset {
	assets := make([]Asset, 0, len(records))
	for _, r := range records {
		assets = append(assets, r.Asset)
	}
	return assets
}

// StringPtr is a convenience for the nullable string fields.
func StringPtr(s string) *string {
	return &s
}
