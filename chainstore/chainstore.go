// Package chainstore keeps the sampled chains and the run summary in
// a bolt database.
//
// Every chain has its own bucket. Snapshots are stored as JSON under
// the big-endian iteration number, so a cursor returns them in
// sampling order.
package chainstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/zinbmrf/mcmc"
)

// log is the global logging variable.
var log = logging.MustGetLogger("chainstore")

// META is the bucket name for the summary.
var META = []byte("meta")

// summaryKey is the key of the run summary.
var summaryKey = []byte("summary")

const chainPrefix = "chain-"

// DefaultBatch is the number of snapshots buffered before writing.
const DefaultBatch = 100

// Store is a chain database. It implements mcmc.Recorder and
// mcmc.Discarder and is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	db      *bolt.DB
	pending map[int][]*mcmc.Snapshot
	npend   int
	batch   int
	last    time.Time
	seconds float64
}

// Open opens (creates) a database. Buffered snapshots are written when
// there are at least DefaultBatch of them, or when the last write was
// more than seconds ago.
func Open(path string, seconds float64) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening chain database %s: %w", path, err)
	}
	return &Store{
		db:      db,
		pending: make(map[int][]*mcmc.Snapshot),
		batch:   DefaultBatch,
		last:    time.Now(),
		seconds: seconds,
	}, nil
}

// OpenReadOnly opens an existing database for reading.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bolt.Open(path, 0400, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("opening chain database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// bucket returns the bucket name of a chain.
func bucket(chain int) []byte {
	return []byte(chainPrefix + strconv.Itoa(chain))
}

// key encodes an iteration.
func key(iter int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(iter))
	return k
}

// Record buffers a snapshot.
func (s *Store) Record(chain int, sn *mcmc.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[chain] = append(s.pending[chain], sn)
	s.npend++
	if s.npend >= s.batch || s.old() {
		return s.flush()
	}
	return nil
}

// old returns true if the last write was too long ago.
func (s *Store) old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// Flush writes the buffered snapshots.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *Store) flush() error {
	// Even if writing fails, we do not want to retry on every
	// snapshot.
	s.last = time.Now()
	if s.npend == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		for chain, sns := range s.pending {
			b, err := tx.CreateBucketIfNotExists(bucket(chain))
			if err != nil {
				return err
			}
			for _, sn := range sns {
				data, err := json.Marshal(sn)
				if err != nil {
					return err
				}
				if err := b.Put(key(sn.Iteration), data); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Error("Error saving snapshots:", err)
		return err
	}
	log.Debugf("Saved %d snapshots", s.npend)
	for chain := range s.pending {
		delete(s.pending, chain)
	}
	s.npend = 0
	return nil
}

// Discard drops the buffered and the stored snapshots of a chain.
func (s *Store) Discard(chain int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.npend -= len(s.pending[chain])
	delete(s.pending, chain)
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucket(chain)) == nil {
			return nil
		}
		return tx.DeleteBucket(bucket(chain))
	})
	if err != nil {
		return fmt.Errorf("discarding chain %d: %w", chain, err)
	}
	log.Infof("Discarded chain %d", chain)
	return nil
}

// SaveSummary stores the run summary as JSON.
func (s *Store) SaveSummary(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Error serializing summary:", err)
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(META)
		if err != nil {
			return err
		}
		return b.Put(summaryKey, data)
	})
}

// Summary loads the run summary into v. It returns false if there is
// no summary.
func (s *Store) Summary(v interface{}) (found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(META)
		if b == nil {
			return nil
		}
		data := b.Get(summaryKey)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return
}

// Chains returns the indices of the stored chains.
func (s *Store) Chains() (chains []int, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			n := string(name)
			if !strings.HasPrefix(n, chainPrefix) {
				return nil
			}
			k, err := strconv.Atoi(strings.TrimPrefix(n, chainPrefix))
			if err != nil {
				return fmt.Errorf("invalid chain bucket %q", n)
			}
			chains = append(chains, k)
			return nil
		})
	})
	return
}

// Snapshots calls fn for every stored snapshot of a chain in
// iteration order. Iteration stops at the first error.
func (s *Store) Snapshots(chain int, fn func(*mcmc.Snapshot) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket(chain))
		if b == nil {
			return fmt.Errorf("no chain %d in the database", chain)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			sn := &mcmc.Snapshot{}
			if err := json.Unmarshal(v, sn); err != nil {
				return fmt.Errorf("snapshot %d of chain %d: %w", binary.BigEndian.Uint64(k), chain, err)
			}
			if err := fn(sn); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close writes the buffered snapshots and closes the database.
func (s *Store) Close() error {
	var err error
	if s.pending != nil {
		err = s.Flush()
	}
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
