// Package dispatch decides what action to take once the matcher reports
// one or more matched mask ids, and formats the resulting network command
// and operator report line.
package dispatch

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"maskwatch/internal/mask"
	"maskwatch/internal/observer"
	"maskwatch/internal/store"
)

// Decision is the outcome of dispatching a set of matched ids: the chosen
// mask, the network command to send (empty for WARN/EXCLUDE), when to send
// it, and how to report it.
type Decision struct {
	MaskID      uint64
	Type        mask.Type
	Command     string // empty: nothing to send
	SendAt      time.Time
	Immediate   bool
	ExcludeOnly bool   // suppress all reporting
	Quiet       bool   // verbose channel only
	Silent      bool   // no reporting at all
	ReportLine  string // "" when nothing should be reported
}

// Target is what Decide needs about the subject of the match beyond the
// catalog row: the nick and connection details to fill into ban commands
// and report lines.
type Target struct {
	Nick  string
	Ident string
	Host  string
	IP    string
	Real  string
}

// BanTarget computes (ban_ident, ban_host) per §4.H.6: an ident without
// identd (leading "~") is replaced with "*"; a known ip is preferred over
// host.
func BanTarget(t Target) (banIdent, banHost string) {
	banIdent = t.Ident
	if strings.HasPrefix(t.Ident, "~") {
		banIdent = "*"
	}
	banHost = t.Host
	if t.IP != "" {
		banHost = t.IP
	}
	return banIdent, banHost
}

// BanTimeMinutes returns a uniformly random ban duration in [160, 320]
// minutes.
func BanTimeMinutes() int {
	return 160 + rand.Intn(320-160+1)
}

// Matched bundles one matched id with its catalog row, for ranking.
type Matched struct {
	ID  uint64
	Row store.Mask
}

// Decide ranks matched by dispatch weight (§4.H.3), picks the top-ranked
// mask, computes its effective reason and network command, and fills in
// the reporting decision. catalog is used to hit() the matched ids and
// expand the chosen mask's reason template. banCmdTemplate is the
// configured LETHAL ban command template (substitution map per §6.3).
func Decide(target Target, matched []Matched, catalog *store.Catalog, now time.Time, banCmdTemplate string) (Decision, error) {
	for _, m := range matched {
		if err := catalog.Hit(m.ID, now.Unix()); err != nil {
			return Decision{}, fmt.Errorf("dispatch: hit mask %d: %w", m.ID, err)
		}
	}

	sorted := make([]Matched, len(matched))
	copy(sorted, matched)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Row.Type.Weight() > sorted[j].Row.Type.Weight()
	})
	top := sorted[0]

	actions := map[mask.Action]bool{}
	for _, m := range matched {
		actions[m.Row.Type.Action()] = true
	}
	excludeOnly := len(actions) == 1 && actions[mask.ActionExclude]

	expanded, err := catalog.ExpandReason(top.Row.Reason)
	if err != nil {
		return Decision{}, fmt.Errorf("dispatch: expand reason: %w", err)
	}
	userReason, operReason := store.SplitReason(expanded)

	banIdent, banHost := BanTarget(target)
	banTime := BanTimeMinutes()

	d := Decision{MaskID: top.ID, Type: top.Row.Type, ExcludeOnly: excludeOnly}

	switch top.Row.Type.Action() {
	case mask.ActionLethal:
		d.Command = expandBanCommand(banCmdTemplate, map[string]string{
			"mask_id":     strconv.FormatUint(top.ID, 10),
			"nick":        target.Nick,
			"user":        target.Ident,
			"host":        target.Host,
			"ip":          target.IP,
			"ban_user":    banIdent,
			"ban_host":    banHost,
			"ban_time":    strconv.Itoa(banTime),
			"reason":      expanded,
			"user_reason": userReason,
			"oper_reason": operReason,
		})
	case mask.ActionKill:
		d.Command = fmt.Sprintf("KILL %s :%s", target.Nick, userReason)
	case mask.ActionResv:
		d.Command = fmt.Sprintf("RESV 60 %s ON * :mask %d %s", target.Nick, top.ID, userReason)
	case mask.ActionWarn, mask.ActionExclude:
		// No network command; WARN is still reported, EXCLUDE only
		// suppresses reporting when it was the sole action present.
	}

	if top.Row.Type.Has(mask.ModifierDelay) {
		d.Immediate = false
		delay := 3 * time.Second
		if !top.Row.Type.Has(mask.ModifierQuick) {
			delay = time.Duration(1+rand.Intn(10-1+1)) * time.Second
		}
		d.SendAt = now.Add(delay)
	} else {
		d.Immediate = true
		d.SendAt = now
	}

	if excludeOnly {
		return d, nil
	}

	// §4.H.9's elif chain checks QUIET before SILENT, so a mask carrying
	// both reports verbose-only rather than not at all.
	d.Quiet = top.Row.Type.Has(mask.ModifierQuiet)
	d.Silent = top.Row.Type.Has(mask.ModifierSilent) && !d.Quiet
	if !d.Silent {
		d.ReportLine = fmt.Sprintf("MASK: %s mask %d %s!%s@%s %s [%s]",
			top.Row.Type, top.ID, target.Nick, target.Ident, target.Host, target.Real, operReason)
	}

	return d, nil
}

// expandBanCommand substitutes {key} tokens in template with vars.
func expandBanCommand(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// TargetFromUser builds a Target from an observer.User snapshot.
func TargetFromUser(nick string, u *observer.User) Target {
	return Target{Nick: nick, Ident: u.Ident, Host: u.Host, IP: u.IP, Real: u.Real}
}
