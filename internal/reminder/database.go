package reminder

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "subscriptions"

// Store persists subscriptions across restarts
type Store interface {
	// SaveSubscription inserts or replaces a subscription
	SaveSubscription(sub *Subscription) error

	// DeleteSubscription removes a subscription; missing ids are not an error
	DeleteSubscription(conversationID string) error

	// ListSubscriptions returns all stored subscriptions
	ListSubscriptions() ([]*Subscription, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the Store interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveSubscription saves a subscription to the database
func (b *BoltDB) SaveSubscription(sub *Subscription) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("marshaling subscription: %w", err)
		}
		return bucket.Put([]byte(sub.ConversationID), data)
	})
}

// DeleteSubscription removes a subscription from the database
func (b *BoltDB) DeleteSubscription(conversationID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.Delete([]byte(conversationID))
	})
}

// ListSubscriptions returns all subscriptions
func (b *BoltDB) ListSubscriptions() ([]*Subscription, error) {
	subs := make([]*Subscription, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var sub Subscription
			if err := json.Unmarshal(v, &sub); err != nil {
				return fmt.Errorf("unmarshaling subscription: %w", err)
			}
			subs = append(subs, &sub)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
