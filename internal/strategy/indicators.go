package strategy

import "strategylab/internal/domain"

// Incremental indicators. Each consumes one candle at a time and exposes a
// Ready flag so callers can skip the warm-up period.

// EMA is an incremental exponential moving average.
type EMA struct {
	period int
	k      float64
	value  float64
	count  int
}

// NewEMA creates an EMA over the given period.
func NewEMA(period int) *EMA {
	return &EMA{period: period, k: 2.0 / float64(period+1)}
}

// Update feeds the next value and returns the current EMA.
func (e *EMA) Update(v float64) float64 {
	e.count++
	if e.count == 1 {
		e.value = v
		return e.value
	}
	e.value = v*e.k + e.value*(1-e.k)
	return e.value
}

// Value returns the current EMA.
func (e *EMA) Value() float64 { return e.value }

// Ready reports whether the warm-up period has passed.
func (e *EMA) Ready() bool { return e.count >= e.period }

// Reset clears the state.
func (e *EMA) Reset() { e.value = 0; e.count = 0 }

// SMA is a rolling simple moving average.
type SMA struct {
	period int
	window []float64
	sum    float64
}

// NewSMA creates an SMA over the given period.
func NewSMA(period int) *SMA {
	return &SMA{period: period, window: make([]float64, 0, period)}
}

// Update feeds the next value and returns the current SMA.
func (s *SMA) Update(v float64) float64 {
	s.window = append(s.window, v)
	s.sum += v
	if len(s.window) > s.period {
		s.sum -= s.window[0]
		s.window = s.window[1:]
	}
	return s.Value()
}

// Value returns the current SMA.
func (s *SMA) Value() float64 {
	if len(s.window) == 0 {
		return 0
	}
	return s.sum / float64(len(s.window))
}

// Ready reports whether a full window has been seen.
func (s *SMA) Ready() bool { return len(s.window) >= s.period }

// Reset clears the state.
func (s *SMA) Reset() {
	s.window = s.window[:0]
	s.sum = 0
}

// RSI is an incremental Wilder relative strength index.
type RSI struct {
	period    int
	avgGain   float64
	avgLoss   float64
	prevClose float64
	count     int
}

// NewRSI creates an RSI over the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update feeds the next close and returns the current RSI (0-100).
func (r *RSI) Update(close float64) float64 {
	r.count++
	if r.count == 1 {
		r.prevClose = close
		return 50
	}

	change := close - r.prevClose
	r.prevClose = close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if r.count <= r.period+1 {
		// Accumulate the initial averages.
		n := float64(r.count - 1)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	} else {
		// Wilder smoothing.
		p := float64(r.period)
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}
	return r.Value()
}

// Value returns the current RSI.
func (r *RSI) Value() float64 {
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// Ready reports whether the warm-up period has passed.
func (r *RSI) Ready() bool { return r.count > r.period }

// Reset clears the state.
func (r *RSI) Reset() { *r = RSI{period: r.period} }

// ATRIndicator is an incremental Wilder average true range.
type ATRIndicator struct {
	period    int
	value     float64
	prevClose float64
	count     int
}

// NewATR creates an ATR over the given period.
func NewATR(period int) *ATRIndicator {
	return &ATRIndicator{period: period}
}

// Update feeds the next candle and returns the current ATR.
func (a *ATRIndicator) Update(c domain.Candle) float64 {
	tr := c.High - c.Low
	if a.count > 0 {
		if d := abs(c.High - a.prevClose); d > tr {
			tr = d
		}
		if d := abs(c.Low - a.prevClose); d > tr {
			tr = d
		}
	}
	a.prevClose = c.Close
	a.count++

	if a.count <= a.period {
		n := float64(a.count)
		a.value = (a.value*(n-1) + tr) / n
	} else {
		p := float64(a.period)
		a.value = (a.value*(p-1) + tr) / p
	}
	return a.value
}

// Value returns the current ATR.
func (a *ATRIndicator) Value() float64 { return a.value }

// Ready reports whether the warm-up period has passed.
func (a *ATRIndicator) Ready() bool { return a.count >= a.period }

// Reset clears the state.
func (a *ATRIndicator) Reset() { *a = ATRIndicator{period: a.period} }

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
