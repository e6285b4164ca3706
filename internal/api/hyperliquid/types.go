package hyperliquid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Wire types for the exchange endpoint. Declaration order matters: the action
// hash covers the msgpack encoding, which follows struct field order.

type limitTif struct {
	Tif string `msgpack:"tif" json:"tif"`
}

type orderTypeWire struct {
	Limit limitTif `msgpack:"limit" json:"limit"`
}

type orderWire struct {
	Asset      int           `msgpack:"a" json:"a"`
	IsBuy      bool          `msgpack:"b" json:"b"`
	LimitPx    string        `msgpack:"p" json:"p"`
	Size       string        `msgpack:"s" json:"s"`
	ReduceOnly bool          `msgpack:"r" json:"r"`
	Type       orderTypeWire `msgpack:"t" json:"t"`
}

type orderAction struct {
	Type     string      `msgpack:"type" json:"type"`
	Orders   []orderWire `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

type leverageAction struct {
	Type     string `msgpack:"type" json:"type"`
	Asset    int    `msgpack:"asset" json:"asset"`
	IsCross  bool   `msgpack:"isCross" json:"isCross"`
	Leverage int    `msgpack:"leverage" json:"leverage"`
}

type exchangeRequest struct {
	Action       any       `json:"action"`
	Nonce        uint64    `json:"nonce"`
	Signature    Signature `json:"signature"`
	VaultAddress *string   `json:"vaultAddress"`
}

type exchangeResponse struct {
	Status   string `json:"status"`
	Response struct {
		Type string `json:"type"`
		Data struct {
			Statuses []orderStatus `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

type orderStatus struct {
	Error   string `json:"error,omitempty"`
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		Oid     int64  `json:"oid"`
	} `json:"filled,omitempty"`
}

// Info endpoint responses.

type candleWire struct {
	OpenMillis int64  `json:"t"`
	Open       string `json:"o"`
	High       string `json:"h"`
	Low        string `json:"l"`
	Close      string `json:"c"`
	Volume     string `json:"v"`
}

type bookLevelWire struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type l2BookWire struct {
	Coin   string            `json:"coin"`
	Levels [][]bookLevelWire `json:"levels"` // [bids, asks], best first
}

type clearinghouseState struct {
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
	Withdrawable   string `json:"withdrawable"`
	AssetPositions []struct {
		Position struct {
			Coin          string `json:"coin"`
			Szi           string `json:"szi"`
			EntryPx       string `json:"entryPx"`
			UnrealizedPnl string `json:"unrealizedPnl"`
			Leverage      struct {
				Type  string `json:"type"`
				Value int    `json:"value"`
			} `json:"leverage"`
		} `json:"position"`
	} `json:"assetPositions"`
}

type universeEntry struct {
	Name        string `json:"name"`
	SzDecimals  int    `json:"szDecimals"`
	MaxLeverage int    `json:"maxLeverage"`
}

type metaWire struct {
	Universe []universeEntry `json:"universe"`
}

type assetCtxWire struct {
	Funding string `json:"funding"`
	MarkPx  string `json:"markPx"`
}

type assetMeta struct {
	index      int
	szDecimals int
}

// floatToWire renders a float the way the exchange hashes it: fixed 8
// decimals with trailing zeros stripped.
func floatToWire(v float64) string {
	s := strconv.FormatFloat(v, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// roundPrice rounds to 5 significant figures and at most (6 - szDecimals)
// decimal places, the tick convention for perps.
func roundPrice(px float64, szDecimals int) float64 {
	if px <= 0 {
		return px
	}
	digits := 5 - int(math.Floor(math.Log10(px))) - 1
	maxDecimals := 6 - szDecimals
	if digits > maxDecimals {
		digits = maxDecimals
	}
	if digits < 0 {
		digits = 0
	}
	scale := math.Pow10(digits)
	return math.Round(px*scale) / scale
}

// roundSize truncates to the asset's size precision.
func roundSize(sz float64, szDecimals int) float64 {
	scale := math.Pow10(szDecimals)
	return math.Floor(sz*scale) / scale
}

func parsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing price %q: %w", s, err)
	}
	return v, nil
}
