package domain

import (
	"strings"
)

// SymbolMapper translates between the upstream wire pair format
// (e.g. "X:BTCUSD") and the canonical short ticker ("BTC") used
// internally and in API responses.
//
// The inbound direction is defensive: any string yields a best-effort
// canonical form and never fails. The outbound direction is generative:
// known tickers use the fixed table, unknown ones get the synthetic
// "X:<BASE>USD" form so subscription requests stay unambiguous.
type SymbolMapper struct {
	toBase map[string]string
	toPair map[string]string
}

// NewSymbolMapper builds a mapper over the known pair table.
func NewSymbolMapper() *SymbolMapper {
	m := &SymbolMapper{
		toBase: make(map[string]string, len(knownPairs)),
		toPair: make(map[string]string, len(knownPairs)),
	}
	for pair, base := range knownPairs {
		m.toBase[pair] = base
		m.toPair[base] = pair
	}
	return m
}

// ToCanonical converts a wire symbol to its canonical ticker.
// Unrecognized input is parsed structurally: strip the exchange prefix
// up to ':', then either cut at '-' ("BTC-USD") or trim a trailing
// "USD" ("BTCUSD"). Input that fits no shape comes back as-is.
func (m *SymbolMapper) ToCanonical(wire string) string {
	sym := strings.ToUpper(strings.TrimSpace(wire))
	if sym == "" {
		return ""
	}
	if base, ok := m.toBase[sym]; ok {
		return base
	}

	body := sym
	if i := strings.LastIndexByte(body, ':'); i >= 0 {
		body = body[i+1:]
	}
	if i := strings.IndexByte(body, '-'); i >= 0 {
		body = body[:i]
	} else {
		body = strings.TrimSuffix(body, "USD")
	}
	if body == "" {
		return sym
	}
	return body
}

// ToWire converts a canonical ticker to the wire pair format.
func (m *SymbolMapper) ToWire(base string) string {
	b := strings.ToUpper(strings.TrimSpace(base))
	if pair, ok := m.toPair[b]; ok {
		return pair
	}
	return "X:" + b + "USD"
}

// Known reports whether the ticker is in the fixed table.
func (m *SymbolMapper) Known(base string) bool {
	_, ok := m.toPair[strings.ToUpper(strings.TrimSpace(base))]
	return ok
}

var knownPairs = map[string]string{
	"X:BTCUSD":   "BTC",
	"X:ETHUSD":   "ETH",
	"X:BNBUSD":   "BNB",
	"X:SOLUSD":   "SOL",
	"X:XRPUSD":   "XRP",
	"X:ADAUSD":   "ADA",
	"X:DOGEUSD":  "DOGE",
	"X:DOTUSD":   "DOT",
	"X:AVAXUSD":  "AVAX",
	"X:LTCUSD":   "LTC",
	"X:LINKUSD":  "LINK",
	"X:MATICUSD": "MATIC",
	"X:UNIUSD":   "UNI",
	"X:ATOMUSD":  "ATOM",
	"X:ALGOUSD":  "ALGO",
	"X:ETCUSD":   "ETC",
	"X:BCHUSD":   "BCH",
	"X:XLMUSD":   "XLM",
	"X:VETUSD":   "VET",
	"X:THETAUSD": "THETA",
	"X:ICPUSD":   "ICP",
	"X:FILUSD":   "FIL",
	"X:TRXUSD":   "TRX",
	"X:XMRUSD":   "XMR",
	"X:EOSUSD":   "EOS",
	"X:AAVEUSD":  "AAVE",
	"X:CAKEUSD":  "CAKE",
	"X:AXSUSD":   "AXS",
	"X:NEOUSD":   "NEO",
	"X:GRTUSD":   "GRT",
	"X:XTZUSD":   "XTZ",
	"X:MANAUSD":  "MANA",
	"X:SANDUSD":  "SAND",
	"X:CHZUSD":   "CHZ",
	"X:ENJUSD":   "ENJ",
	"X:HBARUSD":  "HBAR",
	"X:FLOWUSD":  "FLOW",
	"X:ONEUSD":   "ONE",
	"X:GALAUSD":  "GALA",
	"X:APEUSD":   "APE",
	"X:RUNEUSD":  "RUNE",
	"X:QNTUSD":   "QNT",
	"X:IMXUSD":   "IMX",
	"X:MINAUSD":  "MINA",
	"X:CRVUSD":   "CRV",
	"X:STXUSD":   "STX",
	"X:ARUSD":    "AR",
	"X:FETUSD":   "FET",
	"X:COMPUSD":  "COMP",
	"X:SNXUSD":   "SNX",
	"X:ZECUSD":   "ZEC",
	"X:DASHUSD":  "DASH",
	"X:KAVAUSD":  "KAVA",
	"X:WAVESUSD": "WAVES",
	"X:RVNUSD":   "RVN",
	"X:1INCHUSD": "1INCH",
	"X:ANKRUSD":  "ANKR",
	"X:CELOUSD":  "CELO",
	"X:CHRUSD":   "CHR",
	"X:COTIUSD":  "COTI",
	"X:DYDXUSD":  "DYDX",
	"X:EGLDUSD":  "EGLD",
	"X:FTMUSD":   "FTM",
	"X:GNOUSD":   "GNO",
	"X:HNTUSD":   "HNT",
	"X:IOTAUSD":  "IOTA",
	"X:JASMYUSD": "JASMY",
	"X:KSMUSD":   "KSM",
	"X:LRCUSD":   "LRC",
	"X:MTLUSD":   "MTL",
	"X:OCEANUSD": "OCEAN",
	"X:OMGUSD":   "OMG",
	"X:PERPUSD":  "PERP",
	"X:PONDUSD":  "POND",
	"X:QTUMUSD":  "QTUM",
	"X:RAYUSD":   "RAY",
	"X:RENUSD":   "REN",
	"X:SKLUSD":   "SKL",
	"X:STORJUSD": "STORJ",
	"X:SUSHIUSD": "SUSHI",
	"X:UMAUSD":   "UMA",
	"X:YFIUSD":   "YFI",
	"X:ZILUSD":   "ZIL",
	"X:ZRXUSD":   "ZRX",
}
