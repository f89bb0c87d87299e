package rewards

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var claimsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rankclaim_claims_total",
		Help: "claim attempts by outcome",
	}, []string{"outcome"})

var claimTierTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rankclaim_claim_tier_total",
		Help: "successful claims by resolved tier",
	}, []string{"tier"})

var disbursedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rankclaim_disbursed_total",
		Help: "reward units moved out of the pool",
	})

var bonusIssuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rankclaim_bonus_issued_total",
		Help: "bonus credentials issued",
	})

var poolBalance = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "rankclaim_pool_balance",
		Help: "reward pool balance after the last claim or funding",
	})

func init() {
	prometheus.MustRegister(claimsTotal, claimTierTotal, disbursedTotal, bonusIssuedTotal, poolBalance)
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrInsufficientPoolBalance):
		return "pool_empty"
	case errors.Is(err, ErrBonusIssuance):
		return "bonus_failed"
	case errors.Is(err, ErrInternalConsistency):
		return "inconsistent"
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrScheduleNotFound):
		return "not_found"
	}
	return "error"
}

func recordClaim(receipt *Receipt, err error) {

	claimsTotal.WithLabelValues(claimOutcome(err)).Inc()
	if err != nil {
		return
	}

	claimTierTotal.WithLabelValues(strconv.Itoa(receipt.Tier)).Inc()
	disbursedTotal.Add(float64(receipt.Amount))
	poolBalance.Set(float64(receipt.PoolBalance))

	if receipt.Credential != nil {
		bonusIssuedTotal.Inc()
	}
}
