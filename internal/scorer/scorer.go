// Package scorer turns per-pair snapshots into scored arbitrage
// opportunities. Scoring is pure computation: no I/O, no blocking, and the
// same snapshot with the same configuration always produces the same
// opportunities.
package scorer

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"flasharb/internal/domain"
)

// opportunityNamespace seeds deterministic (v5) opportunity IDs so a
// re-scored snapshot yields byte-identical opportunities.
var opportunityNamespace = uuid.MustParse("7c9a1f6e-2d43-4b8a-9f1d-3e5c8a70b412")

// ReliabilitySource reports a venue's recent failure rate in [0,1].
// Implemented by the ledger's in-memory reliability mirror.
type ReliabilitySource interface {
	VenueFailureRate(venueID string) float64
}

// VenueFees reports a venue's swap fee in basis points.
type VenueFees interface {
	VenueFeeBps(venueID string) float64
}

// FeeTable is a static VenueFees keyed by venue ID. Unknown venues quote
// a zero fee.
type FeeTable map[string]float64

// VenueFeeBps implements VenueFees.
func (t FeeTable) VenueFeeBps(venueID string) float64 { return t[venueID] }

// Config tunes the scorer. See ScoringConfig in internal/config for the
// operator-facing names.
type Config struct {
	// AmountMultipliers scale the pair's base unit into the candidate
	// input-amount ladder.
	AmountMultipliers []float64
	FlashLoanFeeBps   float64
	SlippageBufferPct float64
	GasCostUSD        float64
	MaxQuoteStaleness time.Duration

	// Confidence weights. Each term is monotonic: deeper liquidity never
	// lowers confidence, fresher quotes never lower it, and a less
	// reliable venue never raises it. Weights are normalized at use.
	LiquidityWeight   float64
	FreshnessWeight   float64
	ReliabilityWeight float64

	// Optional sweet-spot bonus (explicit opt-in): opportunities whose net
	// profit lands inside [SweetSpotMinUSD, SweetSpotMaxUSD] get a flat
	// confidence bonus. Net-profit maximization stays the amount
	// tie-break either way.
	SweetSpotEnabled bool
	SweetSpotMinUSD  float64
	SweetSpotMaxUSD  float64
	SweetSpotBonus   float64
}

// Scorer computes opportunities from snapshots.
type Scorer struct {
	cfg         Config
	fees        VenueFees
	reliability ReliabilitySource
	baseUnits   map[domain.Pair]float64
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Scorer. reliability may be nil, in which case every venue
// scores as fully reliable. baseUnits maps each tracked pair to its ladder
// base unit in base-asset terms.
func New(cfg Config, fees VenueFees, reliability ReliabilitySource, baseUnits map[domain.Pair]float64, logger *slog.Logger) *Scorer {
	return &Scorer{
		cfg:         cfg,
		fees:        fees,
		reliability: reliability,
		baseUnits:   baseUnits,
		logger:      logger.With(slog.String("component", "scorer")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the scorer's clock. Test hook.
func (s *Scorer) SetNow(now func() time.Time) { s.now = now }

// Score computes zero or more opportunities from one snapshot. Only
// strictly profitable candidates (net > 0) are returned; a snapshot with
// fewer than two venues yields none. For each ordered venue pair the single
// amount maximizing net profit wins.
func (s *Scorer) Score(snap domain.Snapshot) []domain.Opportunity {
	buys, sells := splitSides(snap)
	if len(buys) == 0 || len(sells) == 0 {
		return nil
	}

	baseUnit := s.baseUnits[snap.Pair]
	if baseUnit <= 0 {
		baseUnit = 1
	}

	var opportunities []domain.Opportunity
	for _, buy := range buys {
		for _, sell := range sells {
			if buy.VenueID == sell.VenueID {
				continue
			}
			if opp, ok := s.scoreVenuePair(snap, buy, sell, baseUnit); ok {
				opportunities = append(opportunities, opp)
			}
		}
	}

	if len(opportunities) > 0 {
		s.logger.Debug("opportunities scored",
			slog.String("pair", snap.Pair.String()),
			slog.Int("count", len(opportunities)),
		)
	}
	return opportunities
}

// scoreVenuePair sweeps the amount ladder for one (buy venue, sell venue)
// combination and returns the best strictly profitable candidate.
func (s *Scorer) scoreVenuePair(snap domain.Snapshot, buy, sell domain.Quote, baseUnit float64) (domain.Opportunity, bool) {
	if sell.Price <= buy.Price {
		return domain.Opportunity{}, false
	}

	// The trade cannot exceed either venue's reported depth.
	maxAmount := buy.Liquidity
	if sell.Liquidity < maxAmount {
		maxAmount = sell.Liquidity
	}

	var (
		best    domain.Opportunity
		haveOne bool
	)
	for _, mult := range s.cfg.AmountMultipliers {
		amount := baseUnit * mult
		if amount > maxAmount {
			continue
		}

		gross := (sell.Price - buy.Price) * amount

		// All percentage fees are charged on the borrowed principal: the
		// quote-asset notional drawn to fund the buy leg.
		principal := buy.Price * amount
		venueFees := (s.fees.VenueFeeBps(buy.VenueID) + s.fees.VenueFeeBps(sell.VenueID)) / 10_000 * principal
		flashFee := s.cfg.FlashLoanFeeBps / 10_000 * principal
		slippage := s.cfg.SlippageBufferPct / 100 * gross

		net := gross - venueFees - flashFee - s.cfg.GasCostUSD - slippage
		if net <= 0 {
			continue
		}

		// Tie-break on net profit, never gross.
		if haveOne && net <= best.NetProfit {
			continue
		}

		route := domain.Route{Hops: []domain.Hop{
			{VenueID: buy.VenueID, Pair: snap.Pair, Direction: domain.SwapQuoteForBase},
			{VenueID: sell.VenueID, Pair: snap.Pair, Direction: domain.SwapBaseForQuote},
		}}

		best = domain.Opportunity{
			ID:             s.opportunityID(snap, route, amount),
			Route:          route,
			Pair:           snap.Pair,
			InputAmount:    amount,
			Principal:      principal,
			GrossProfit:    gross,
			VenueFees:      venueFees,
			FlashLoanFee:   flashFee,
			EstGasCost:     s.cfg.GasCostUSD,
			SlippageBuffer: slippage,
			NetProfit:      net,
			SnapshotAt:     snap.CapturedAt,
			CreatedAt:      s.now(),
		}
		best.Confidence = s.confidence(buy, sell, amount, maxAmount, snap.CapturedAt, best.NetProfit)
		haveOne = true
	}

	return best, haveOne
}

// opportunityID derives a deterministic ID from the snapshot, route, and
// amount, so re-scoring the same inputs reproduces the same opportunity.
func (s *Scorer) opportunityID(snap domain.Snapshot, route domain.Route, amount float64) string {
	key := snap.Pair.String() + "|" + snap.CapturedAt.UTC().Format(time.RFC3339Nano) +
		"|" + route.String() + "|" + formatAmount(amount)
	return uuid.NewSHA1(opportunityNamespace, []byte(key)).String()
}

// splitSides separates a snapshot's quotes into buy-side and sell-side
// lists, each sorted by venue ID for deterministic iteration.
func splitSides(snap domain.Snapshot) (buys, sells []domain.Quote) {
	for _, q := range snap.Quotes {
		switch q.Side {
		case domain.QuoteSideBuy:
			buys = append(buys, q)
		case domain.QuoteSideSell:
			sells = append(sells, q)
		}
	}
	sort.Slice(buys, func(i, j int) bool { return buys[i].VenueID < buys[j].VenueID })
	sort.Slice(sells, func(i, j int) bool { return sells[i].VenueID < sells[j].VenueID })
	return buys, sells
}
