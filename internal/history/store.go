// Package history keeps a journal of finished dispatch passes in BoltDB.
package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Record is one finished pass
type Record struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	CampaignName string    `json:"campaign_name,omitempty"`
	Total        int       `json:"total"`
	Sent         int       `json:"sent"`
	Failed       int       `json:"failed"`
	Halt         string    `json:"halt"`
	Completed    bool      `json:"completed"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration returns how long the pass ran
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is a bounded journal of run records
type Store struct {
	db         *bolt.DB
	maxRecords int
}

// Open opens or creates the journal at path. maxRecords <= 0 keeps everything.
func Open(path string, maxRecords int) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}

	return &Store{db: db, maxRecords: maxRecords}, nil
}

// Append stores a record and drops the oldest ones beyond the limit
func (s *Store) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to store run record: %w", err)
		}
		return s.trim(b)
	})
}

func (s *Store) trim(b *bolt.Bucket) error {
	if s.maxRecords <= 0 {
		return nil
	}
	c := b.Cursor()
	count := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	excess := count - s.maxRecords
	for k, _ := c.First(); k != nil && excess > 0; k, _ = c.First() {
		if err := b.Delete(k); err != nil {
			return err
		}
		excess--
	}
	return nil
}

// List returns up to limit records, newest first. campaignID filters when set.
func (s *Store) List(ctx context.Context, campaignID string, limit int) ([]Record, error) {
	records := []Record{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip invalid entries
			}
			if campaignID != "" && rec.CampaignID != campaignID {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Last returns the newest record of a campaign, or nil
func (s *Store) Last(ctx context.Context, campaignID string) (*Record, error) {
	records, err := s.List(ctx, campaignID, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// Close closes the journal
func (s *Store) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
