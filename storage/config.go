package storage

import (
	"crypto/rand"

	"github.com/pkg/errors"

	bolt "go.etcd.io/bbolt"
)

const (
	PROGRAM_ID  = "programid"
	REWARD_MINT = "rewardmint"
	TREASURY    = "treasury"

	keyLength = 32
)

var ErrInvalidConfig = errors.New("Invalid config value")

// GetProgramKeys returns the program id and the reward mint address. Both are
// nil if InitProgramKeys has never run against this database.
func (s *Storage) GetProgramKeys() ([]byte, []byte, error) {

	var programID, rewardMint []byte

	err := s.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET))
		if b == nil {
			return errors.New("Unable to locate config bucket")
		}

		// Values from Get are only valid inside the transaction
		if v := b.Get([]byte(PROGRAM_ID)); v != nil {
			programID = append([]byte{}, v...)
		}
		if v := b.Get([]byte(REWARD_MINT)); v != nil {
			rewardMint = append([]byte{}, v...)
		}

		return nil
	})

	return programID, rewardMint, err
}

// InitProgramKeys generates and saves the program id and reward mint on first
// start. Existing values are never replaced.
func (s *Storage) InitProgramKeys() ([]byte, []byte, error) {

	var programID, rewardMint []byte

	err := s.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET))
		if b == nil {
			return errors.New("Unable to locate config bucket")
		}

		var err error

		programID, err = getOrCreateKey(b, PROGRAM_ID)
		if err != nil {
			return errors.Wrap(err, "Unable to init program id")
		}

		rewardMint, err = getOrCreateKey(b, REWARD_MINT)
		if err != nil {
			return errors.Wrap(err, "Unable to init reward mint")
		}

		return nil
	})

	return programID, rewardMint, err
}

func getOrCreateKey(b *bolt.Bucket, name string) ([]byte, error) {

	if v := b.Get([]byte(name)); v != nil {
		return append([]byte{}, v...), nil
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	if err := b.Put([]byte(name), key); err != nil {
		return nil, err
	}

	return key, nil
}

// GetTreasury returns the configured treasury address, or nil when none was set
func (s *Storage) GetTreasury() ([]byte, error) {
	return s.getConfigValue(TREASURY)
}

func (s *Storage) SaveTreasury(treasury []byte) error {

	if len(treasury) != keyLength {
		return errors.Wrapf(ErrInvalidConfig, "treasury must be %d bytes, got %d", keyLength, len(treasury))
	}

	return s.putConfigValue(TREASURY, treasury)
}

// getConfigValue reads key from the config bucket, or from the nested bucket
// named by path
func (s *Storage) getConfigValue(key string, path ...string) ([]byte, error) {

	var value []byte

	err := s.View(func(tx *bolt.Tx) error {
		b, err := configBucket(tx, path)
		if err != nil {
			return err
		}

		// Values from Get are only valid inside the transaction
		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte{}, v...)
		}

		return nil
	})

	return value, err
}

func (s *Storage) putConfigValue(key string, value []byte, path ...string) error {

	return s.Update(func(tx *bolt.Tx) error {
		b, err := configBucket(tx, path)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), value)
	})
}

func configBucket(tx *bolt.Tx, path []string) (*bolt.Bucket, error) {

	b := tx.Bucket([]byte(CONFIG_BUCKET))
	if b == nil {
		return nil, errors.New("Unable to locate config bucket")
	}

	for _, name := range path {
		if b = b.Bucket([]byte(name)); b == nil {
			return nil, errors.Errorf("Unable to locate %s bucket", name)
		}
	}

	return b, nil
}
