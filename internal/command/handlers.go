package command

import (
	"fmt"
	"strings"
	"time"

	"maskwatch/internal/mask"
	"maskwatch/internal/maskset"
	"maskwatch/internal/store"
)

func handleGetMask(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return Reply{}, Usagef("GETMASK requires a mask id")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return Reply{}, Usagef("%s", err)
	}
	all := len(fields) > 1 && fields[1] == "-all"

	row, err := ctx.Catalog.Get(id)
	if err != nil {
		return Reply{}, fmt.Errorf("mask %d: %s", id, err)
	}
	changes, err := ctx.Catalog.Changes(id)
	if err != nil {
		return Reply{}, err
	}
	if !all && len(changes) > 10 {
		changes = changes[len(changes)-10:]
	}

	notices := []string{fmt.Sprintf("%d: %s type=%s enabled=%t reason=%q hits=%d", row.ID, row.Raw, row.Type, row.Enabled, row.Reason, row.Hits)}
	for _, c := range changes {
		notices = append(notices, fmt.Sprintf("  %d %s %s: %s", c.Timestamp, c.ActorSource, c.ActorOper, c.Description))
	}
	return Reply{Notices: notices}, nil
}

func handleAddMask(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	raw, reason, err := ExtractMaskToken(args)
	if err != nil {
		return Reply{}, Usagef("%s", err)
	}
	if reason == "" {
		return Reply{}, Usagef("ADDMASK requires a reason")
	}

	compiled, err := mask.Compile(raw)
	if err != nil {
		return Reply{}, fmt.Errorf("compile %q: %s", raw, err)
	}

	id, err := ctx.Catalog.Add(raw, mask.Type(mask.ActionWarn), reason, now.Unix(), actor)
	if err != nil {
		return Reply{}, err
	}
	if err := ctx.Set.Insert(store.Mask{ID: id, Raw: raw, Type: mask.Type(mask.ActionWarn), Enabled: true, Reason: reason}); err != nil {
		return Reply{}, err
	}

	hits := 0
	for _, g := range ctx.Recent.Snapshot() {
		for _, ref := range g.Refs {
			if compiled.Match(ref) {
				hits++
				break
			}
		}
	}

	return Reply{Notices: []string{fmt.Sprintf("added %d (hits %d out of last %d users)", id, hits, ctx.Recent.Cap())}}, nil
}

func handleToggleMask(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return Reply{}, Usagef("TOGGLEMASK requires exactly one mask id")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return Reply{}, Usagef("%s", err)
	}

	enabled, err := ctx.Catalog.Toggle(id, now.Unix(), actor)
	if err != nil {
		return Reply{}, err
	}

	row, err := ctx.Catalog.Get(id)
	if err != nil {
		return Reply{}, err
	}
	if enabled {
		if err := ctx.Set.Insert(row); err != nil {
			return Reply{}, err
		}
	} else {
		ctx.Set.Remove(id)
	}

	line := fmt.Sprintf("MASK:TOGGLE: %d %s enabled=%t", id, row.Raw, enabled)
	return Reply{Notices: []string{line}, Broadcast: line}, nil
}

func handleSetMask(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return Reply{}, Usagef("SETMASK requires a mask id")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return Reply{}, Usagef("%s", err)
	}

	var notices []string
	for _, arg := range fields[1:] {
		if arg != "" && (arg[0] == '+' || arg[0] == '~') {
			expire, hasExpire, err := ExpireSpec(arg, now.Unix())
			if err != nil {
				return Reply{}, Usagef("%s", err)
			}
			if err := ctx.Catalog.SetExpire(id, expire, hasExpire, now.Unix(), actor); err != nil {
				return Reply{}, err
			}
			notices = append(notices, fmt.Sprintf("mask %d expire set", id))
			continue
		}

		newType, err := mask.ParseType(arg)
		if err != nil {
			return Reply{}, Usagef("invalid type %q: %s", arg, err)
		}
		if err := ctx.Catalog.SetType(id, newType, now.Unix(), actor); err != nil {
			if err == store.ErrAlreadyType {
				return Reply{}, Usagef("mask %d already has type %s", id, newType)
			}
			return Reply{}, err
		}
		row, err := ctx.Catalog.Get(id)
		if err != nil {
			return Reply{}, err
		}
		if row.Enabled {
			if err := ctx.Set.Insert(row); err != nil {
				return Reply{}, err
			}
		}
		notices = append(notices, fmt.Sprintf("mask %d type set to %s", id, newType))
	}

	line := fmt.Sprintf("MASK:SET: %d %s", id, strings.Join(fields[1:], " "))
	return Reply{Notices: notices, Broadcast: line}, nil
}

func handleListMask(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	var notices []string
	ctx.Set.Each(func(e maskset.Entry) bool {
		notices = append(notices, fmt.Sprintf("%d: %s type=%s", e.Row.ID, e.Row.Raw, e.Row.Type))
		return true
	})
	if len(notices) == 0 {
		notices = []string{"no active masks"}
	}
	return Reply{Notices: notices}, nil
}

func handleAddReason(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	parts := splitN(args, 2)
	if len(parts) < 2 {
		return Reply{}, Usagef("ADDREASON requires an alias and text")
	}
	if err := ctx.Catalog.AddReason(parts[0], parts[1]); err != nil {
		return Reply{}, err
	}
	return Reply{Notices: []string{fmt.Sprintf("reason %q added", strings.ToLower(parts[0]))}}, nil
}

func handleDelReason(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return Reply{}, Usagef("DELREASON requires exactly one alias")
	}
	if err := ctx.Catalog.DeleteReason(fields[0]); err != nil {
		return Reply{}, err
	}
	return Reply{Notices: []string{fmt.Sprintf("reason %q removed", strings.ToLower(fields[0]))}}, nil
}

func handleListReason(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	reasons, err := ctx.Catalog.ListReasons()
	if err != nil {
		return Reply{}, err
	}
	var notices []string
	for _, r := range reasons {
		notices = append(notices, fmt.Sprintf("%s: %s", r.Alias, r.Text))
	}
	if len(notices) == 0 {
		notices = []string{"no reason templates"}
	}
	return Reply{Notices: notices}, nil
}

func handleTestMask(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	raw, rest, err := ExtractMaskToken(args)
	if err != nil {
		return Reply{}, Usagef("%s", err)
	}
	all := strings.TrimSpace(rest) == "-all"

	compiled, err := compileCached(ctx, raw)
	if err != nil {
		return Reply{}, fmt.Errorf("compile %q: %s", raw, err)
	}

	var matchedNicks []string
	for _, g := range ctx.Recent.Snapshot() {
		for _, ref := range g.Refs {
			if compiled.Match(ref) {
				matchedNicks = append(matchedNicks, g.Nick)
				break
			}
		}
	}

	notices := []string{fmt.Sprintf("would match %d of %d recent observations", len(matchedNicks), ctx.Recent.Len())}
	if all {
		notices = append(notices, matchedNicks...)
	}
	return Reply{Notices: notices}, nil
}

func handleCompileMask(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error) {
	raw := strings.TrimSpace(args)
	if raw == "" {
		return Reply{}, Usagef("COMPILEMASK requires a mask")
	}
	compiled, err := compileCached(ctx, raw)
	if err != nil {
		return Reply{}, fmt.Errorf("compile %q: %s", raw, err)
	}
	return Reply{Notices: []string{compiled.Pattern.String()}}, nil
}

// compileCached compiles raw through ctx.Compiled when the context carries a
// cache, falling back to a direct compile otherwise (e.g. in tests that
// build a bare Context).
func compileCached(ctx *Context, raw string) (*mask.Compiled, error) {
	if ctx.Compiled != nil {
		return ctx.Compiled.Compile(raw)
	}
	return mask.Compile(raw)
}
