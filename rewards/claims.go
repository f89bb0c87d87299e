package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"rankclaim/authority"
	"rankclaim/bonus"
	"rankclaim/tokens"
)

// Notifier receives a message after a top-tier claim commits
type Notifier interface {
	Send(msg string)
}

type ClaimHandler struct {
	store      *Store
	ledger     *tokens.Ledger
	issuer     bonus.Issuer
	rewardMint authority.Address
	notifier   Notifier

	// Recorded on bonus credentials; the pool authority when unset
	treasury authority.Address
}

func NewClaimHandler(store *Store, ledger *tokens.Ledger, issuer bonus.Issuer, rewardMint authority.Address, notifier Notifier) *ClaimHandler {
	return &ClaimHandler{
		store:      store,
		ledger:     ledger,
		issuer:     issuer,
		rewardMint: rewardMint,
		notifier:   notifier,
	}
}

// SetTreasury sets the treasury recorded on bonus credentials
func (h *ClaimHandler) SetTreasury(treasury authority.Address) {
	h.treasury = treasury
}

// Pool returns the program identity controlling the pool and the pool's account address
func (h *ClaimHandler) Pool() (authority.Address, authority.Address, error) {

	owner, _, err := h.store.program.GlobalState()
	if err != nil {
		return authority.Address{}, authority.Address{}, errors.Wrap(err, "Unable to derive pool authority")
	}

	acct, err := tokens.AssociatedAddress(owner, h.rewardMint)
	if err != nil {
		return authority.Address{}, authority.Address{}, err
	}

	return owner, acct, nil
}

// Claim settles the participant's reward for a day. Everything happens in one
// write transaction: any failure leaves ledger, pool and bonus state untouched.
func (h *ClaimHandler) Claim(ctx context.Context, req ClaimRequest) (*Receipt, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var receipt *Receipt

	err := h.store.db.Update(func(tx *bolt.Tx) error {
		var err error
		receipt, err = h.claim(tx, req)
		return err
	})

	recordClaim(receipt, err)

	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"Day": req.Day, "Participant": req.Participant,
		}).Warn("Claim rejected")

		return nil, err
	}

	log.WithFields(log.Fields{
		"Day": receipt.Day, "Participant": receipt.Participant,
		"Tier": receipt.Tier, "Amount": receipt.Amount, "Pool": receipt.PoolBalance,
		"Authorization": receipt.Authorization,
	}).Info("Claim settled")

	if receipt.Credential != nil && h.notifier != nil {
		h.notifier.Send(fmt.Sprintf("Day %d top rank claimed by %s; bonus fragment %d minted as %s",
			receipt.Day, receipt.Participant, receipt.Credential.FragmentID, receipt.Credential.Mint))
	}

	return receipt, nil
}

func (h *ClaimHandler) claim(tx *bolt.Tx, req ClaimRequest) (*Receipt, error) {

	addr, err := h.store.EntryAddress(req.Day, req.Participant)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to derive day-state address")
	}

	entry, err := getEntryAt(tx, req.Day, addr)
	if err != nil {
		return nil, err
	}

	schedule, err := getSchedule(tx, req.Day)
	if err != nil {
		return nil, err
	}

	if err := ValidateClaim(entry, schedule); err != nil {
		return nil, err
	}

	tier, amount, err := ResolveTier(entry.Metric, schedule)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"Metric": entry.Metric, "RewardPerTier": schedule.RewardPerTier,
		"RewardAmount": amount, "Tier": tier,
	}).Info("Resolved claim")

	poolOwner, poolAcct, err := h.Pool()
	if err != nil {
		return nil, err
	}

	dst, created, err := h.ledger.EnsureAccount(tx, req.Participant, h.rewardMint)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to provision receiving account")
	}
	if created {
		log.WithField("Account", dst.Address).Debug("Provisioned receiving account")
	}

	var token string

	// A zero reward still closes the entry
	if amount > 0 {
		auth, err := h.disburse(tx, poolOwner, poolAcct, dst.Address, amount)
		if err != nil {
			return nil, err
		}
		token = auth.Token()
	}

	var cred *bonus.Credential

	if tier == TOP_TIER {
		treasury := h.treasury
		if treasury.IsZero() {
			treasury = poolOwner
		}

		cred, err = h.issuer.Issue(tx, bonus.IssueRequest{
			Day:        req.Day,
			Recipient:  req.Participant,
			Treasury:   treasury,
			Context:    req.Bonus,
			Category:   bonus.CATEGORY_TOP_DAILY,
			FragmentID: bonus.TOP_DAILY_FRAGMENT_ID,
		})
		if err != nil {
			return nil, &bonusError{cause: err}
		}
	}

	entry.Claimed = true
	entry.ClaimedTier = tier
	entry.ClaimedAmount = amount
	entry.ClaimedAt = time.Now().UTC()

	if err := putEntry(tx, entry); err != nil {
		return nil, errors.Wrap(err, "Unable to save entry")
	}

	var remaining uint64
	if pool, err := h.ledger.GetAccount(tx, poolAcct); err == nil {
		remaining = pool.Balance
	}

	return &Receipt{
		Day:              req.Day,
		Participant:      req.Participant,
		Metric:           entry.Metric,
		Tier:             tier,
		Amount:           amount,
		ReceivingAccount: dst.Address,
		PoolBalance:      remaining,
		Credential:       cred,
		ClaimedAt:        entry.ClaimedAt,
		Authorization:    token,
	}, nil
}

func (h *ClaimHandler) disburse(tx *bolt.Tx, poolOwner, from, to authority.Address, amount uint64) (*authority.Authorization, error) {

	digest, err := tokens.TransferDigest(from, to, amount)
	if err != nil {
		return nil, err
	}

	auth, err := h.store.program.Authorize(digest, h.ledger.NextNonce(tx, poolOwner), []byte(authority.GLOBAL_STATE_SEED))
	if err != nil {
		return nil, errors.Wrap(err, "Unable to authorize disbursement")
	}

	err = h.ledger.Transfer(tx, from, to, amount, auth)
	switch {
	case err == nil:
		return auth, nil
	case errors.Is(err, tokens.ErrInsufficientFunds):
		return nil, errors.Wrap(ErrInsufficientPoolBalance, err.Error())
	case errors.Is(err, tokens.ErrAccountNotFound):
		// Pool was never funded
		return nil, errors.Wrap(ErrInsufficientPoolBalance, err.Error())
	}

	return nil, errors.Wrap(err, "Disbursement failed")
}

// Preview evaluates a claim without changing anything
func (h *ClaimHandler) Preview(ctx context.Context, day uint64, participant authority.Address) (*Preview, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr, err := h.store.EntryAddress(day, participant)
	if err != nil {
		return nil, err
	}

	var preview *Preview

	err = h.store.db.View(func(tx *bolt.Tx) error {

		entry, err := getEntryAt(tx, day, addr)
		if err != nil {
			return err
		}

		schedule, err := getSchedule(tx, day)
		if err != nil {
			return err
		}

		if err := ValidateClaim(entry, schedule); err != nil {
			return err
		}

		tier, amount, err := ResolveTier(entry.Metric, schedule)
		if err != nil {
			return err
		}

		preview = &Preview{
			Day:         day,
			Participant: participant,
			Metric:      entry.Metric,
			Tier:        tier,
			Amount:      amount,
			Bonus:       tier == TOP_TIER,
		}

		return nil
	})

	return preview, err
}

// Fund mints amount new reward units into the pool, creating the reward mint
// and the pool account on first use
func (h *ClaimHandler) Fund(ctx context.Context, amount uint64) (*tokens.Account, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	poolOwner, _, err := h.Pool()
	if err != nil {
		return nil, err
	}

	var pool *tokens.Account

	err = h.store.db.Update(func(tx *bolt.Tx) error {

		if _, err := h.ledger.GetMint(tx, h.rewardMint); errors.Is(err, tokens.ErrMintNotFound) {
			if _, err := h.ledger.CreateMint(tx, h.rewardMint, poolOwner); err != nil {
				return err
			}
			log.WithField("Mint", h.rewardMint).Info("Created reward mint")
		} else if err != nil {
			return err
		}

		acct, _, err := h.ledger.EnsureAccount(tx, poolOwner, h.rewardMint)
		if err != nil {
			return err
		}

		digest, err := tokens.MintToDigest(h.rewardMint, acct.Address, amount)
		if err != nil {
			return err
		}

		auth, err := h.store.program.Authorize(digest, h.ledger.NextNonce(tx, poolOwner), []byte(authority.GLOBAL_STATE_SEED))
		if err != nil {
			return errors.Wrap(err, "Unable to authorize pool funding")
		}

		if err := h.ledger.MintTo(tx, h.rewardMint, acct.Address, amount, auth); err != nil {
			return errors.Wrap(err, "Unable to fund pool")
		}

		pool, err = h.ledger.GetAccount(tx, acct.Address)
		return err
	})
	if err != nil {
		return nil, err
	}

	poolBalance.Set(float64(pool.Balance))

	log.WithFields(log.Fields{
		"Amount": amount, "Balance": pool.Balance,
	}).Info("Funded reward pool")

	return pool, nil
}

// PoolAccount returns the pool's account; an unfunded pool reports a zero balance
func (h *ClaimHandler) PoolAccount(ctx context.Context) (*tokens.Account, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	poolOwner, poolAcct, err := h.Pool()
	if err != nil {
		return nil, err
	}

	var pool *tokens.Account

	err = h.store.db.View(func(tx *bolt.Tx) error {
		var err error
		pool, err = h.ledger.GetAccount(tx, poolAcct)
		if errors.Is(err, tokens.ErrAccountNotFound) {
			pool = &tokens.Account{Address: poolAcct, Owner: poolOwner, Mint: h.rewardMint}
			return nil
		}
		return err
	})

	return pool, err
}

// Credentials lists the bonus credentials held by participant
func (h *ClaimHandler) Credentials(participant authority.Address) ([]bonus.Credential, error) {

	var creds []bonus.Credential

	err := h.store.db.View(func(tx *bolt.Tx) error {
		var err error
		creds, err = bonus.ListCredentials(tx, participant)
		return err
	})

	return creds, err
}

// Balance returns participant's reward balance
func (h *ClaimHandler) Balance(participant authority.Address) (uint64, error) {

	addr, err := tokens.AssociatedAddress(participant, h.rewardMint)
	if err != nil {
		return 0, err
	}

	var balance uint64

	err = h.store.db.View(func(tx *bolt.Tx) error {
		acct, err := h.ledger.GetAccount(tx, addr)
		if errors.Is(err, tokens.ErrAccountNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})

	return balance, err
}
