package series

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"
)

var bucketSeries = []byte("series")

// Store caches snapshot entries per account so a restart can serve stale but
// structurally valid data before the first refresh completes.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (and migrates) the BoltDB-backed cache at path.
func OpenStore(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("open series store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSeries)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init series store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func accountPrefix(account *common.Address) []byte {
	if account == nil {
		return []byte("anon/")
	}
	return []byte(strings.ToLower(account.Hex()) + "/")
}

func seriesKey(account *common.Address, maturity int64) []byte {
	prefix := accountPrefix(account)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(maturity))
	return key
}

// Save writes entries for account.
func (s *Store) Save(account *common.Address, entries ...Series) error {
	if s == nil || len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSeries)
		for _, entry := range entries {
			raw, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("encode series %d: %w", entry.Maturity, err)
			}
			if err := bucket.Put(seriesKey(account, entry.Maturity), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns every cached entry for account keyed by maturity.
func (s *Store) Load(account *common.Address) (map[int64]Series, error) {
	out := make(map[int64]Series)
	if s == nil {
		return out, nil
	}
	prefix := accountPrefix(account)
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketSeries).Cursor()
		for k, v := cursor.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = cursor.Next() {
			var entry Series
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("decode series %x: %w", k, err)
			}
			out[entry.Maturity] = entry
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
