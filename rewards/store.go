package rewards

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"rankclaim/authority"
	"rankclaim/storage"
	"rankclaim/util"
)

// Store reads and writes schedules and ledger entries. Schedules live in the
// schedules bucket keyed by day; entries live in a per-day sub-bucket of the
// ledger bucket keyed by their day-state address.
type Store struct {
	db      *storage.Storage
	program *authority.Program
}

func NewStore(db *storage.Storage, p *authority.Program) *Store {
	return &Store{
		db:      db,
		program: p,
	}
}

// EntryAddress is the day-state address of (participant, day)
func (s *Store) EntryAddress(day uint64, participant authority.Address) (authority.Address, error) {
	addr, _, err := s.program.FindProgramAddress([]byte(authority.DAY_STATE_SEED), participant[:], util.DayBytes(day))
	return addr, err
}

// PublishSchedule stores the schedule of a day. A day's schedule can only be published once.
func (s *Store) PublishSchedule(schedule Schedule) (*Schedule, error) {

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	schedule.PublishedAt = time.Now().UTC()

	err := s.db.Update(func(tx *bolt.Tx) error {

		b := tx.Bucket([]byte(storage.SCHEDULES_BUCKET))
		if b == nil {
			return errors.New("Unable to locate schedules bucket")
		}

		if b.Get(storage.Itob(schedule.Day)) != nil {
			return errors.Wrapf(ErrSchedulePublished, "day %d", schedule.Day)
		}

		scheduleBytes, err := json.Marshal(schedule)
		if err != nil {
			return errors.Wrap(err, "Unable to encode schedule")
		}

		return b.Put(storage.Itob(schedule.Day), scheduleBytes)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"Day": schedule.Day, "Tiers": schedule.Tiers, "RewardPerTier": schedule.RewardPerTier,
	}).Info("Published schedule")

	return &schedule, nil
}

func (s *Store) GetSchedule(day uint64) (*Schedule, error) {

	var schedule *Schedule

	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		schedule, err = getSchedule(tx, day)
		return err
	})

	return schedule, err
}

func getSchedule(tx *bolt.Tx, day uint64) (*Schedule, error) {

	b := tx.Bucket([]byte(storage.SCHEDULES_BUCKET))
	if b == nil {
		return nil, errors.New("Unable to locate schedules bucket")
	}

	scheduleBytes := b.Get(storage.Itob(day))
	if scheduleBytes == nil {
		return nil, errors.Wrapf(ErrScheduleNotFound, "day %d", day)
	}

	schedule := new(Schedule)
	if err := json.Unmarshal(scheduleBytes, schedule); err != nil {
		return nil, errors.Wrap(err, "Unable to decode schedule")
	}

	return schedule, nil
}

// RecordActivity adds amount to the participant's metric for day, creating the
// entry on first activity. A claimed entry no longer accepts activity.
func (s *Store) RecordActivity(day uint64, participant authority.Address, amount uint64) (*Entry, error) {

	if amount == 0 {
		return nil, errors.Wrap(ErrInvalidActivity, "amount must be positive")
	}

	addr, err := s.EntryAddress(day, participant)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to derive day-state address")
	}

	var entry *Entry

	err = s.db.Update(func(tx *bolt.Tx) error {

		var err error

		entry, err = getEntryAt(tx, day, addr)
		switch {
		case errors.Is(err, ErrEntryNotFound):
			entry = &Entry{
				Address:     addr,
				Day:         day,
				Participant: participant,
			}
		case err != nil:
			return err
		}

		if entry.Claimed {
			return errors.Wrap(ErrAlreadyClaimed, "day is closed for participant")
		}

		if entry.Metric+amount < entry.Metric {
			return errors.Wrap(ErrInvalidActivity, "metric overflow")
		}
		entry.Metric += amount

		return putEntry(tx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"Day": day, "Participant": participant, "Amount": amount, "Metric": entry.Metric,
	}).Debug("Recorded activity")

	return entry, nil
}

func (s *Store) GetEntry(day uint64, participant authority.Address) (*Entry, error) {

	addr, err := s.EntryAddress(day, participant)
	if err != nil {
		return nil, err
	}

	var entry *Entry

	err = s.db.View(func(tx *bolt.Tx) error {
		var err error
		entry, err = getEntryAt(tx, day, addr)
		return err
	})

	return entry, err
}

// ListEntries returns every entry recorded for day
func (s *Store) ListEntries(day uint64) ([]Entry, error) {

	entries := make([]Entry, 0)

	err := s.db.View(func(tx *bolt.Tx) error {

		b := tx.Bucket([]byte(storage.LEDGER_BUCKET)).Bucket(storage.Itob(day))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return errors.Wrap(err, "Unable to decode entry")
			}
			entries = append(entries, e)
			return nil
		})
	})

	return entries, err
}

func getEntryAt(tx *bolt.Tx, day uint64, addr authority.Address) (*Entry, error) {

	b := tx.Bucket([]byte(storage.LEDGER_BUCKET))
	if b == nil {
		return nil, errors.New("Unable to locate ledger bucket")
	}

	dayBkt := b.Bucket(storage.Itob(day))
	if dayBkt == nil {
		return nil, errors.Wrapf(ErrEntryNotFound, "day %d", day)
	}

	entryBytes := dayBkt.Get(addr[:])
	if entryBytes == nil {
		return nil, errors.Wrapf(ErrEntryNotFound, "day %d", day)
	}

	entry := new(Entry)
	if err := json.Unmarshal(entryBytes, entry); err != nil {
		return nil, errors.Wrap(err, "Unable to decode entry")
	}

	return entry, nil
}

func putEntry(tx *bolt.Tx, entry *Entry) error {

	dayBkt, err := tx.Bucket([]byte(storage.LEDGER_BUCKET)).CreateBucketIfNotExists(storage.Itob(entry.Day))
	if err != nil {
		return errors.Wrapf(err, "Cannot create ledger bucket for day %d", entry.Day)
	}

	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "Unable to encode entry")
	}

	return dayBkt.Put(entry.Address[:], entryBytes)
}
