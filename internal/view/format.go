package view

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

const timestampLayout = "02/01/2006 15:04:05"

// TimeZone is the location timestamps are rendered in.
var TimeZone = time.Local

var (
	trillion = decimal.New(1, 12)
	billion  = decimal.New(1, 9)
	million  = decimal.New(1, 6)
	thousand = decimal.New(1, 3)
)

// FormatTimestamp renders epoch ms as dd/MM/yyyy HH:mm:ss, or "" when absent.
func FormatTimestamp(ms int64, ok bool) string {
	if !ok {
		return ""
	}
	return time.UnixMilli(ms).In(TimeZone).Format(timestampLayout)
}

// FormatLargeNumber abbreviates with T/B/M/K and two decimals.
func FormatLargeNumber(d decimal.Decimal) string {
	switch {
	case d.GreaterThanOrEqual(trillion):
		return d.Div(trillion).StringFixed(2) + "T"
	case d.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case d.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	case d.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(2) + "K"
	default:
		return grouped(d, 2)
	}
}

// FormatPrice renders a USD price with thousands separators.
func FormatPrice(d decimal.Decimal, places int) string {
	return "$" + grouped(d, places)
}

// FormatChange renders a 24h change percentage, signed.
func FormatChange(d decimal.Decimal) string {
	if d.Round(2).IsZero() {
		return "+0.00%"
	}
	return humanize.FormatFloat("+#,###.##", d.Round(2).InexactFloat64()) + "%"
}

func FormatMaxSupply(a model.Asset) string {
	v, capped := a.MaxSupplyValue()
	if !capped {
		return "∞ Unlimited"
	}
	return FormatLargeNumber(v)
}

func grouped(d decimal.Decimal, places int) string {
	pattern := "#,###." + strings.Repeat("#", places)
	return humanize.FormatFloat(pattern, d.Round(int32(places)).InexactFloat64())
}
