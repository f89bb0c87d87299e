package rewards

import (
	"time"

	"rankclaim/authority"
	"rankclaim/bonus"
)

const (
	TOP_TIER = 0
)

// Schedule is the published reward table of a day. Tiers are thresholds in
// descending order, RewardPerTier is index-aligned with Tiers.
type Schedule struct {
	Day           uint64    `json:"day"           yaml:"day"`
	Tiers         []uint64  `json:"tiers"         yaml:"tiers"`
	RewardPerTier []uint64  `json:"rewardPerTier" yaml:"reward_per_tier"`
	PublishedAt   time.Time `json:"publishedAt"   yaml:"-"`
}

// Entry is one participant's record for one day
type Entry struct {
	Address       authority.Address `json:"a"` // Day-state address of (participant, day)
	Day           uint64            `json:"d"`
	Participant   authority.Address `json:"p"`
	Metric        uint64            `json:"m"` // Accumulated activity for the day
	Claimed       bool              `json:"c"`
	ClaimedTier   int               `json:"ct"`
	ClaimedAmount uint64            `json:"ca"`
	ClaimedAt     time.Time         `json:"cat"`
}

type ClaimRequest struct {
	Day         uint64            `json:"day"`
	Participant authority.Address `json:"participant"`

	// Required when the claim resolves to the top tier
	Bonus *bonus.Context `json:"bonus,omitempty"`
}

// Receipt describes a completed claim
type Receipt struct {
	Day              uint64            `json:"day"`
	Participant      authority.Address `json:"participant"`
	Metric           uint64            `json:"metric"`
	Tier             int               `json:"tier"`
	Amount           uint64            `json:"amount"`
	ReceivingAccount authority.Address `json:"receivingAccount"`
	PoolBalance      uint64            `json:"poolBalance"`
	Credential       *bonus.Credential `json:"credential,omitempty"`
	ClaimedAt        time.Time         `json:"claimedAt"`

	// Base58check capability token that authorized the pool transfer; empty
	// when the tier pays nothing
	Authorization string `json:"authorization,omitempty"`
}

// Preview is the outcome a claim would have right now
type Preview struct {
	Day         uint64            `json:"day"`
	Participant authority.Address `json:"participant"`
	Metric      uint64            `json:"metric"`
	Tier        int               `json:"tier"`
	Amount      uint64            `json:"amount"`
	Bonus       bool              `json:"bonus"`
}
