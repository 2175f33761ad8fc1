package signal

import (
	talib "github.com/markcheno/go-talib"
)

const (
	rsiPeriod     = 14
	rsiOverbought = 70
	rsiOversold   = 30
	smaFastPeriod = 10
	smaSlowPeriod = 20
	macdFast      = 12
	macdSlow      = 26
	macdSignal    = 9
)

// deriveRegime 由 RSI/MACD/SMA 交叉推导技术面状态。
// 优先使用上游给出的 RSI；历史不足时退化为 neutral。
func deriveRegime(closes []float64, upstreamRSI *float64) TechnicalRegime {
	rsi, ok := resolveRSI(closes, upstreamRSI)
	if ok {
		if rsi >= rsiOverbought {
			return RegimeOverbought
		}
		if rsi <= rsiOversold {
			return RegimeOversold
		}
	}
	if len(closes) >= macdSlow+macdSignal {
		_, _, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		fast := talib.Sma(closes, smaFastPeriod)
		slow := talib.Sma(closes, smaSlowPeriod)
		if len(hist) > 0 && len(fast) > 0 && len(slow) > 0 {
			h := hist[len(hist)-1]
			f := fast[len(fast)-1]
			s := slow[len(slow)-1]
			if h > 0 && f > s {
				return RegimeTrendUp
			}
			if h < 0 && f < s {
				return RegimeTrendDown
			}
		}
	}
	return RegimeNeutral
}

func resolveRSI(closes []float64, upstream *float64) (float64, bool) {
	if upstream != nil {
		return *upstream, true
	}
	if len(closes) < rsiPeriod+1 {
		return 0, false
	}
	series := talib.Rsi(closes, rsiPeriod)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}
