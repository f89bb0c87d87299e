package storage

import (
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	DATABASE_FILE = "rankclaim.db"

	CONFIG_BUCKET        = "config"
	NOTIFICATIONS_BUCKET = "notifications"
	SCHEDULES_BUCKET     = "schedules"
	LEDGER_BUCKET        = "ledger"
	ACCOUNTS_BUCKET      = "accounts"
	MINTS_BUCKET         = "mints"
	AUTHORITY_BUCKET     = "authority"
	BONUS_BUCKET         = "bonus"
)

type Storage struct {
	*bolt.DB
}

// InitStorage opens (or creates) the database inside dataDir and makes sure
// every top-level bucket exists
func InitStorage(dataDir string) (*Storage, error) {

	dbFile := filepath.Join(dataDir, DATABASE_FILE)

	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to init db")
	}

	// Ensure some buckets exist, and migrations
	err = db.Update(func(tx *bolt.Tx) error {

		for _, name := range []string{
			SCHEDULES_BUCKET, LEDGER_BUCKET, ACCOUNTS_BUCKET,
			MINTS_BUCKET, AUTHORITY_BUCKET, BONUS_BUCKET,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "Cannot create %s bucket", name)
			}
		}

		// Config bucket, with nested notifications bucket
		cfgBkt, err := tx.CreateBucketIfNotExists([]byte(CONFIG_BUCKET))
		if err != nil {
			return errors.Wrap(err, "Cannot create config bucket")
		}

		if _, err := cfgBkt.CreateBucketIfNotExists([]byte(NOTIFICATIONS_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create notifications bucket")
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.WithField("File", dbFile).Debug("Database opened")

	return &Storage{db}, nil
}

func (s *Storage) Close() {
	if err := s.DB.Close(); err != nil {
		log.WithError(err).Error("Unable to close database")
		return
	}
	log.Info("Database closed")
}

// Itob returns an 8-byte big endian representation of v.
func Itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Btoi returns the uint64 stored in an 8-byte big endian slice
func Btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
