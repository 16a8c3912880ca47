package scheduler

import (
	"fmt"
	"time"

	"maskwatch/internal/mask"
	"maskwatch/internal/maskset"
	"maskwatch/internal/store"
)

const maxExpiryWake = 60 * time.Second

// ExpiryResult is the outcome of one expiry sweep.
type ExpiryResult struct {
	ReportLines []string
	NextWake    time.Duration
}

// RunExpiry walks the active set per spec §4.J: masks with no expiry are
// skipped; expired KILL/LETHAL masks are downgraded to WARN in place;
// expired masks of any other action are disabled and dropped from the
// active set. now is the current instant; actor is used as the Change
// actor for any resulting catalog write (the engine's own identity, per
// spec — "writes a change record with actor source = bot's own
// nick!user@host, actor oper = empty").
func RunExpiry(set *maskset.Set, catalog *store.Catalog, now time.Time, actor store.Actor) (ExpiryResult, error) {
	result := ExpiryResult{NextWake: maxExpiryWake}

	var ids []uint64
	set.Each(func(e maskset.Entry) bool {
		ids = append(ids, e.Row.ID)
		return true
	})

	for _, id := range ids {
		entry, ok := set.Get(id)
		if !ok {
			continue
		}
		row := entry.Row
		if !row.HasExpire {
			continue
		}

		var deadline int64
		if row.Expire < 0 {
			if row.LastHit == 0 {
				continue
			}
			deadline = row.LastHit + (-row.Expire)
		} else {
			deadline = row.Expire
		}

		if deadline > now.Unix() {
			remaining := time.Duration(deadline-now.Unix()) * time.Second
			if remaining < result.NextWake {
				result.NextWake = remaining
			}
			continue
		}

		action := row.Type.Action()
		if action == mask.ActionKill || action == mask.ActionLethal {
			newType := mask.Type(mask.ActionWarn) | mask.Type(row.Type&0xf0)
			if err := catalog.SetType(id, newType, now.Unix(), actor); err != nil && err != store.ErrAlreadyType {
				return result, fmt.Errorf("scheduler: downgrade mask %d: %w", id, err)
			}
			set.Insert(store.Mask{
				ID: row.ID, Raw: row.Raw, Type: newType, Enabled: row.Enabled,
				Reason: row.Reason, Hits: row.Hits, LastHit: row.LastHit,
				Expire: row.Expire, HasExpire: row.HasExpire,
			}) //nolint:errcheck // Raw already compiled once; recompiling the same source cannot newly fail
			result.ReportLines = append(result.ReportLines,
				fmt.Sprintf("MASK:EXPIRE: %s %s -> WARN", row.Raw, row.Type))
			continue
		}

		if err := catalog.SetExpire(id, 0, false, now.Unix(), actor); err != nil {
			return result, fmt.Errorf("scheduler: clear expire on mask %d: %w", id, err)
		}
		if _, err := catalog.Toggle(id, now.Unix(), actor); err != nil {
			return result, fmt.Errorf("scheduler: disable mask %d: %w", id, err)
		}
		set.Remove(id)
		result.ReportLines = append(result.ReportLines,
			fmt.Sprintf("MASK:EXPIRE: %s %s", row.Raw, row.Type))
	}

	return result, nil
}
