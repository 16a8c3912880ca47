package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"maskwatch/internal/mask"
)

const (
	bucketMasks   = "masks"
	bucketChanges = "changes"
	bucketReasons = "reasons"
)

// Catalog is the durable mask catalog, reason template table, and change
// log, backed by a single embedded bbolt database file. All exported
// methods are safe for concurrent use; hit counter updates are additionally
// serialized per mask id so concurrent hits never lose an increment.
type Catalog struct {
	db *bolt.DB

	hitMu sync.Mutex // serializes per-id read-modify-write of Hits/LastHit
}

// Open opens (or creates) the bbolt database at path and ensures all three
// top-level buckets exist.
func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketMasks, bucketChanges, bucketReasons} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close releases the underlying database file handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func maskKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func changeKey(id, seq uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], id)
	binary.BigEndian.PutUint64(b[8:], seq)
	return b
}

// Add inserts a new mask row with the given raw source, type, reason and
// enabled=true, and appends a Change("add") record, atomically. Returns the
// newly assigned id.
func (c *Catalog) Add(raw string, typ mask.Type, reason string, now int64, actor Actor) (uint64, error) {
	var id uint64
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMasks))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = seq

		row := Mask{ID: id, Raw: raw, Type: typ, Enabled: true, Reason: reason}
		if err := putMask(b, row); err != nil {
			return err
		}
		return appendChange(tx, id, now, actor, "add")
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns the mask row for id, or ErrNotFound.
func (c *Catalog) Get(id uint64) (Mask, error) {
	var row Mask
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMasks))
		v := b.Get(maskKey(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &row)
	})
	return row, err
}

// HasID reports whether id exists in the catalog.
func (c *Catalog) HasID(id uint64) bool {
	_, err := c.Get(id)
	return err == nil
}

// ListEnabled returns all rows with Enabled=true, in ascending id order.
func (c *Catalog) ListEnabled() ([]Mask, error) {
	var out []Mask
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMasks))
		return b.ForEach(func(k, v []byte) error {
			var row Mask
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if row.Enabled {
				out = append(out, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Toggle flips the Enabled bit of id and appends a Change record describing
// the new state. Returns the new Enabled value.
func (c *Catalog) Toggle(id uint64, now int64, actor Actor) (bool, error) {
	var newEnabled bool
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMasks))
		row, err := getMask(b, id)
		if err != nil {
			return err
		}
		row.Enabled = !row.Enabled
		newEnabled = row.Enabled
		if err := putMask(b, row); err != nil {
			return err
		}
		desc := fmt.Sprintf("enabled %t", row.Enabled)
		return appendChange(tx, id, now, actor, desc)
	})
	if err != nil {
		return false, err
	}
	return newEnabled, nil
}

// SetType updates the enforcement type of id. Rejects a no-op with
// ErrAlreadyType rather than silently accepting it.
func (c *Catalog) SetType(id uint64, newType mask.Type, now int64, actor Actor) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMasks))
		row, err := getMask(b, id)
		if err != nil {
			return err
		}
		if row.Type == newType {
			return ErrAlreadyType
		}
		row.Type = newType
		if err := putMask(b, row); err != nil {
			return err
		}
		desc := fmt.Sprintf("type %s", newType)
		return appendChange(tx, id, now, actor, desc)
	})
}

// SetExpire updates the expiry of id. A positive value is an absolute unix
// deadline, a negative value is an offset added to LastHit at check time, a
// zero value (hasExpire=false) means "never".
func (c *Catalog) SetExpire(id uint64, newExpire int64, hasExpire bool, now int64, actor Actor) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMasks))
		row, err := getMask(b, id)
		if err != nil {
			return err
		}
		row.Expire = newExpire
		row.HasExpire = hasExpire
		if err := putMask(b, row); err != nil {
			return err
		}
		desc := "expire none"
		if hasExpire {
			desc = fmt.Sprintf("expire %d", newExpire)
		}
		return appendChange(tx, id, now, actor, desc)
	})
}

// Hit atomically increments the hit counter and sets LastHit=now. Serialized
// per-process by hitMu in addition to the bbolt transaction, so concurrent
// callers never race on the read-modify-write even though bbolt itself
// already serializes writers.
func (c *Catalog) Hit(id uint64, now int64) error {
	c.hitMu.Lock()
	defer c.hitMu.Unlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMasks))
		row, err := getMask(b, id)
		if err != nil {
			return err
		}
		row.Hits++
		row.LastHit = now
		return putMask(b, row)
	})
}

// Changes returns the Change log for id, ordered by timestamp ascending
// (equivalently, append order, since change-seq is monotonic per id).
func (c *Catalog) Changes(id uint64) ([]Change, error) {
	var out []Change
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketChanges))
		cur := b.Cursor()
		prefix := maskKey(id)
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var ch Change
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			out = append(out, ch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func getMask(b *bolt.Bucket, id uint64) (Mask, error) {
	var row Mask
	v := b.Get(maskKey(id))
	if v == nil {
		return row, ErrNotFound
	}
	if err := json.Unmarshal(v, &row); err != nil {
		return row, err
	}
	return row, nil
}

func putMask(b *bolt.Bucket, row Mask) error {
	v, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return b.Put(maskKey(row.ID), v)
}

// appendChange writes one Change row under a composite (mask id, change
// seq) key inside the caller's transaction, so it commits atomically with
// whatever catalog mutation produced it (invariant 3: exactly one Change
// per mutation).
func appendChange(tx *bolt.Tx, id uint64, now int64, actor Actor, description string) error {
	cb := tx.Bucket([]byte(bucketChanges))
	seq, err := cb.NextSequence()
	if err != nil {
		return err
	}
	ch := Change{
		MaskID:      id,
		ActorSource: actor.Source,
		ActorOper:   actor.Oper,
		Timestamp:   now,
		Description: description,
	}
	v, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return cb.Put(changeKey(id, seq), v)
}
