package risk

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"trading-desk-go/internal/config"
	"trading-desk-go/internal/models"
)

// Gate names reported on rejected decisions.
const (
	GateConfidence   = "confidence"
	GateRisk         = "risk"
	GateDailyQuota   = "daily_quota"
	GateMaxPositions = "max_positions"
	GateCashReserve  = "cash_reserve"
	GateSector       = "sector_exposure"
	GateVaR          = "var"
	GateVolatility   = "volatility"
	GateNoPosition   = "no_position"
	GateZeroSize     = "zero_size"
)

// Decision is the outcome of evaluating one signal.
type Decision struct {
	Approved    bool
	Gate        string
	Reason      string
	Symbol      string
	Side        models.Direction
	Quantity    float64
	TargetPrice float64
	FillPrice   float64
	Slippage    float64
	Commission  float64
	Fraction    float64
}

// Notional is quantity times fill price.
func (d Decision) Notional() float64 {
	return d.Quantity * d.FillPrice
}

// Engine applies the risk gates, sizes approved trades and models their fills.
type Engine struct {
	cfg            config.Risk
	commissionRate float64
	priors         *PriorTable
	estimator      VaREstimator
	logger         *zap.Logger
}

// NewEngine creates a risk engine. A nil estimator uses constant-volatility VaR
// from the configured assumed volatility.
func NewEngine(cfg config.Risk, commissionRate float64, priors *PriorTable, estimator VaREstimator, logger *zap.Logger) *Engine {
	if estimator == nil {
		estimator = ConstantVolatilityVaR{DailyVolatility: cfg.AssumedVolatility, Z: Z95}
	}
	if priors == nil {
		priors = NewPriorTable(nil, cfg.PriorMinSamples)
	}
	return &Engine{
		cfg:            cfg,
		commissionRate: commissionRate,
		priors:         priors,
		estimator:      estimator,
		logger:         logger.Named("risk"),
	}
}

// Priors exposes the prior table for reflection updates.
func (e *Engine) Priors() *PriorTable {
	return e.priors
}

// Slippage is the fractional price impact for a symbol with the given
// annualized volatility.
func (e *Engine) Slippage(volatility float64) float64 {
	return e.cfg.BaseSlippageBps/1e4 + e.cfg.VolatilityImpact*volatility
}

// Evaluate runs the gates in order and sizes the trade. Approved decisions are
// reserved on book. A rejection never mutates book.
func (e *Engine) Evaluate(sig *models.Signal, volatility, markPrice float64, book *Book) Decision {
	d := Decision{Symbol: sig.Symbol, Side: sig.Direction, TargetPrice: sig.TargetPrice}
	if d.TargetPrice <= 0 {
		d.TargetPrice = markPrice
	}
	l := e.logger.With(zap.String("symbol", sig.Symbol), zap.String("side", string(sig.Direction)))

	reject := func(gate, format string, args ...any) Decision {
		d.Gate = gate
		d.Reason = fmt.Sprintf(format, args...)
		l.Debug("Trade rejected", zap.String("gate", gate), zap.String("reason", d.Reason))
		return d
	}

	if sig.Confidence < e.cfg.MinConfidence {
		return reject(GateConfidence, "confidence %.2f below minimum %.2f", sig.Confidence, e.cfg.MinConfidence)
	}
	if sig.RiskScore > e.cfg.MaxRisk {
		return reject(GateRisk, "risk score %.2f above maximum %.2f", sig.RiskScore, e.cfg.MaxRisk)
	}
	if sig.Strength < e.cfg.MinStrength {
		return reject(GateRisk, "strength %.2f below minimum %.2f", sig.Strength, e.cfg.MinStrength)
	}
	if book.TradesToday >= e.cfg.MaxDailyTrades {
		return reject(GateDailyQuota, "daily trade quota %d reached", e.cfg.MaxDailyTrades)
	}
	held, holding := book.Positions[sig.Symbol]
	if sig.Direction == models.Buy && !holding && len(book.Positions) >= e.cfg.MaxPositions {
		return reject(GateMaxPositions, "already holding %d positions", len(book.Positions))
	}
	if d.TargetPrice <= 0 {
		return reject(GateZeroSize, "no price for %s", sig.Symbol)
	}

	d.Slippage = e.Slippage(volatility)

	if sig.Direction == models.Sell {
		if !holding || held.Quantity <= 0 {
			return reject(GateNoPosition, "no position in %s to sell", sig.Symbol)
		}
		d.Quantity = math.Min(math.Ceil(held.Quantity*sig.Strength), held.Quantity)
		d.FillPrice = d.TargetPrice * (1 - d.Slippage)
		d.Commission = d.Notional() * e.commissionRate
		return e.approve(d, book, l)
	}

	d.Fraction = e.kellyFraction(sig)
	notional := d.Fraction * book.TotalValue
	remaining := e.cfg.MaxPositionFraction*book.TotalValue - held.MarketValue()
	notional = math.Min(notional, math.Max(remaining, 0))
	d.Quantity = math.Floor(notional / d.TargetPrice)
	d.FillPrice = d.TargetPrice * (1 + d.Slippage)
	d.Commission = d.Notional() * e.commissionRate
	if d.Quantity > 0 && d.Notional()+d.Commission > book.Cash {
		d.Quantity, d.Commission = 0, 0
	}

	// Post-trade gates only apply to a non-empty trade.
	if d.Quantity > 0 {
		if gate, reason := e.exposureGates(d, sig.Symbol, book); gate != "" {
			return reject(gate, "%s", reason)
		}
	}
	if volatility > e.cfg.MaxVolatility {
		return reject(GateVolatility, "volatility %.2f above cutoff %.2f", volatility, e.cfg.MaxVolatility)
	}
	if d.Quantity <= 0 {
		return reject(GateZeroSize, "sized to zero units (fraction %.4f)", d.Fraction)
	}
	return e.approve(d, book, l)
}

// exposureGates checks the cash reserve, sector and VaR limits of a sized BUY.
func (e *Engine) exposureGates(d Decision, symbol string, book *Book) (string, string) {
	cost := d.Notional() + d.Commission
	if (book.Cash-cost)/book.TotalValue < e.cfg.MinCashReserve {
		return GateCashReserve, fmt.Sprintf("post-trade cash %.2f below %.0f%% reserve", book.Cash-cost, e.cfg.MinCashReserve*100)
	}
	sector := e.sectorOf(symbol)
	exposure := d.Notional()
	for s, p := range book.Positions {
		if e.sectorOf(s) == sector {
			exposure += p.MarketValue()
		}
	}
	if exposure/book.TotalValue > e.cfg.MaxSectorExposure {
		return GateSector, fmt.Sprintf("sector %s exposure %.1f%% above %.1f%%", sector, exposure/book.TotalValue*100, e.cfg.MaxSectorExposure*100)
	}
	if v := e.estimator.VaR(book.PositionsValue() + d.Notional()); v > e.cfg.MaxVaRFraction*book.TotalValue {
		return GateVaR, fmt.Sprintf("VaR %.2f above %.2f", v, e.cfg.MaxVaRFraction*book.TotalValue)
	}
	return "", ""
}

func (e *Engine) approve(d Decision, book *Book, l *zap.Logger) Decision {
	d.Approved = true
	book.reserve(d)
	l.Info("Trade approved",
		zap.Float64("quantity", d.Quantity),
		zap.Float64("fill_price", d.FillPrice),
		zap.Float64("slippage", d.Slippage),
	)
	return d
}

// kellyFraction sizes a BUY as a fraction of portfolio value.
func (e *Engine) kellyFraction(sig *models.Signal) float64 {
	f := e.priors.Get(sig.Source).KellyFraction()
	f *= sig.Confidence * (1 - sig.RiskScore)
	f = math.Max(0, math.Min(f, e.cfg.MaxKellyFraction))
	f *= sig.Strength
	return math.Min(f, e.cfg.MaxPositionFraction)
}

func (e *Engine) sectorOf(symbol string) string {
	if s, ok := e.cfg.Sectors[symbol]; ok && s != "" {
		return s
	}
	return symbol
}
