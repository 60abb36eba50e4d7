package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"tangled.org/booru.social/booru/internal/moderation"
)

// ContentItem is the moderation-relevant view of one piece of content.
type ContentItem struct {
	ID         int64                 `json:"id"`
	OwnerID    int64                 `json:"owner_id"`
	Visibility moderation.Visibility `json:"visibility"`
	Tags       []int64               `json:"tags"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// VisibilityEvent is one entry of a content item's visibility history.
type VisibilityEvent struct {
	ContentID int64                 `json:"content_id"`
	From      moderation.Visibility `json:"from"`
	To        moderation.Visibility `json:"to"`
	At        time.Time             `json:"at"`
}

// ContentStore implements moderation.ContentStore on top of BoltDB.
type ContentStore struct {
	db *bolt.DB
}

var _ moderation.ContentStore = (*ContentStore)(nil)

func contentKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func eventKey(id int64, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key, uint64(id))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func getItem(bucket *bolt.Bucket, id int64) (*ContentItem, error) {
	data := bucket.Get(contentKey(id))
	if data == nil {
		return nil, fmt.Errorf("content %d: %w", id, moderation.ErrNotFound)
	}
	var item ContentItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content %d: %w", id, err)
	}
	return &item, nil
}

func putItem(bucket *bolt.Bucket, item *ContentItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal content %d: %w", item.ID, err)
	}
	return bucket.Put(contentKey(item.ID), data)
}

// Put registers or replaces a content item.
func (s *ContentStore) Put(ctx context.Context, item ContentItem) error {
	if item.Visibility == "" {
		item.Visibility = moderation.VisibilityActive
	}
	if !item.Visibility.Valid() {
		return fmt.Errorf("invalid visibility %q", item.Visibility)
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	item.Tags = normalizeTags(item.Tags)
	return s.db.Update(func(tx *bolt.Tx) error {
		return putItem(tx.Bucket(BucketContent), &item)
	})
}

// Get returns a content item.
func (s *ContentStore) Get(ctx context.Context, id int64) (*ContentItem, error) {
	var item *ContentItem
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		item, err = getItem(tx.Bucket(BucketContent), id)
		return err
	})
	return item, err
}

// Delete removes a content item and its history.
func (s *ContentStore) Delete(ctx context.Context, id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(BucketContent).Delete(contentKey(id)); err != nil {
			return err
		}
		events := tx.Bucket(BucketContentEvents)
		c := events.Cursor()
		prefix := contentKey(id)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
			if err := events.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Exists reports whether the content item is registered.
func (s *ContentStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(BucketContent).Get(contentKey(id)) != nil
		return nil
	})
	return exists, err
}

// Visibility returns the content item's current status.
func (s *ContentStore) Visibility(ctx context.Context, id int64) (moderation.Visibility, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return item.Visibility, nil
}

// SetVisibility changes the content item's status and appends the change to
// its history. Setting the current status again is a no-op.
func (s *ContentStore) SetVisibility(ctx context.Context, id int64, status moderation.Visibility) error {
	if !status.Valid() {
		return fmt.Errorf("invalid visibility %q", status)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketContent)
		item, err := getItem(bucket, id)
		if err != nil {
			return err
		}
		if item.Visibility == status {
			return nil
		}

		events := tx.Bucket(BucketContentEvents)
		seq, err := events.NextSequence()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		data, err := json.Marshal(VisibilityEvent{ContentID: id, From: item.Visibility, To: status, At: now})
		if err != nil {
			return fmt.Errorf("failed to marshal visibility event: %w", err)
		}
		if err := events.Put(eventKey(id, seq), data); err != nil {
			return err
		}

		item.Visibility = status
		item.UpdatedAt = now
		return putItem(bucket, item)
	})
}

// History returns the visibility changes of a content item, oldest first.
func (s *ContentStore) History(ctx context.Context, id int64) ([]VisibilityEvent, error) {
	var out []VisibilityEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(BucketContentEvents).Cursor()
		prefix := contentKey(id)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var ev VisibilityEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("failed to unmarshal visibility event: %w", err)
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// Tags returns the content item's tag ids in ascending order.
func (s *ContentStore) Tags(ctx context.Context, id int64) ([]int64, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return item.Tags, nil
}

// MutateTags adds and removes tags in one update. Adding a present tag or
// removing an absent one is not an error.
func (s *ContentStore) MutateTags(ctx context.Context, id int64, add, remove []int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketContent)
		item, err := getItem(bucket, id)
		if err != nil {
			return err
		}
		tags := slices.DeleteFunc(slices.Clone(item.Tags), func(t int64) bool {
			return slices.Contains(remove, t)
		})
		item.Tags = normalizeTags(append(tags, add...))
		item.UpdatedAt = time.Now().UTC()
		return putItem(bucket, item)
	})
}

func normalizeTags(tags []int64) []int64 {
	out := slices.Clone(tags)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []int64{}
	}
	return out
}
