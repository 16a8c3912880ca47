package store

import (
	"encoding/json"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

const maxExpansionPasses = 10

// AddReason inserts or overwrites the template for alias (lowercased).
func (c *Catalog) AddReason(alias, text string) error {
	alias = strings.ToLower(alias)
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReasons))
		v, err := json.Marshal(Reason{Alias: alias, Text: text})
		if err != nil {
			return err
		}
		return b.Put([]byte(alias), v)
	})
}

// DeleteReason removes alias. No error if it did not exist.
func (c *Catalog) DeleteReason(alias string) error {
	alias = strings.ToLower(alias)
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketReasons)).Delete([]byte(alias))
	})
}

// HasReason reports whether alias exists.
func (c *Catalog) HasReason(alias string) bool {
	alias = strings.ToLower(alias)
	var ok bool
	c.db.View(func(tx *bolt.Tx) error { //nolint:errcheck // View never fails on a read-only lookup
		ok = tx.Bucket([]byte(bucketReasons)).Get([]byte(alias)) != nil
		return nil
	})
	return ok
}

// ListReasons returns every template row, sorted by alias.
func (c *Catalog) ListReasons() ([]Reason, error) {
	var out []Reason
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReasons))
		return b.ForEach(func(k, v []byte) error {
			var r Reason
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

// ExpandReason applies up to maxExpansionPasses substitution passes of
// "$alias" tokens against the template table, longest alias first within
// each pass so "$user_reason" is tried before "$user". Stops early once a
// pass changes nothing, which both bounds the cost and tolerates
// self-referential templates without erroring. The returned string is then
// split on the first "|" by the caller into user-visible/operator-visible
// halves.
func (c *Catalog) ExpandReason(reason string) (string, error) {
	templates, err := c.ListReasons()
	if err != nil {
		return "", err
	}

	sort.Slice(templates, func(i, j int) bool {
		return len(templates[i].Alias) > len(templates[j].Alias)
	})

	current := reason
	for pass := 0; pass < maxExpansionPasses; pass++ {
		next := current
		for _, t := range templates {
			next = strings.ReplaceAll(next, "$"+t.Alias, t.Text)
		}
		if next == current {
			break
		}
		current = next
	}
	return current, nil
}

// SplitReason splits an expanded reason string on the first "|" into
// user-visible and operator-visible halves. If there is no "|", the whole
// string is user-visible and the operator half is empty.
func SplitReason(expanded string) (userVisible, operatorVisible string) {
	if i := strings.IndexByte(expanded, '|'); i != -1 {
		return expanded[:i], expanded[i+1:]
	}
	return expanded, ""
}
