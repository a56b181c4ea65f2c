// Package market provides simulated market data for NSE equities and indices.
package market

import "tradekaro/internal/models"

// DefaultCatalogue returns the instruments the simulator quotes.
func DefaultCatalogue() []models.Instrument {
	return []models.Instrument{
		// Indices trade in lots against margin.
		{Symbol: "NIFTY", Name: "Nifty 50", Exchange: models.NFO, Kind: models.KindIndex, BasePrice: 24000, LotSize: 75, MarginPerLot: 120000, TickSize: 0.05, Volatility: 0.13},
		{Symbol: "BANKNIFTY", Name: "Nifty Bank", Exchange: models.NFO, Kind: models.KindIndex, BasePrice: 51000, LotSize: 35, MarginPerLot: 110000, TickSize: 0.05, Volatility: 0.16},
		{Symbol: "FINNIFTY", Name: "Nifty Financial Services", Exchange: models.NFO, Kind: models.KindIndex, BasePrice: 23500, LotSize: 65, MarginPerLot: 100000, TickSize: 0.05, Volatility: 0.15},

		{Symbol: "RELIANCE", Name: "Reliance Industries", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 2450, LotSize: 1, TickSize: 0.05, Volatility: 0.22},
		{Symbol: "TCS", Name: "Tata Consultancy Services", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 3500, LotSize: 1, TickSize: 0.05, Volatility: 0.20},
		{Symbol: "HDFCBANK", Name: "HDFC Bank", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 1650, LotSize: 1, TickSize: 0.05, Volatility: 0.19},
		{Symbol: "INFY", Name: "Infosys", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 1500, LotSize: 1, TickSize: 0.05, Volatility: 0.24},
		{Symbol: "ICICIBANK", Name: "ICICI Bank", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 1100, LotSize: 1, TickSize: 0.05, Volatility: 0.21},
		{Symbol: "SBIN", Name: "State Bank of India", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 750, LotSize: 1, TickSize: 0.05, Volatility: 0.26},
		{Symbol: "ITC", Name: "ITC", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 450, LotSize: 1, TickSize: 0.05, Volatility: 0.18},
		{Symbol: "BHARTIARTL", Name: "Bharti Airtel", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 1200, LotSize: 1, TickSize: 0.05, Volatility: 0.23},
		{Symbol: "HINDUNILVR", Name: "Hindustan Unilever", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 2400, LotSize: 1, TickSize: 0.05, Volatility: 0.17},
		{Symbol: "LT", Name: "Larsen & Toubro", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 3400, LotSize: 1, TickSize: 0.05, Volatility: 0.22},
		{Symbol: "WIPRO", Name: "Wipro", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 480, LotSize: 1, TickSize: 0.05, Volatility: 0.25},
		{Symbol: "TATAMOTORS", Name: "Tata Motors", Exchange: models.NSE, Kind: models.KindEquity, BasePrice: 950, LotSize: 1, TickSize: 0.05, Volatility: 0.32},
	}
}
