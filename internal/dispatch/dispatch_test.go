package dispatch

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"maskwatch/internal/mask"
	"maskwatch/internal/store"
)

func newCatalog(t *testing.T) *store.Catalog {
	t.Helper()
	c, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func addMask(t *testing.T, c *store.Catalog, raw, typeStr, reason string) store.Mask {
	t.Helper()
	ty, err := mask.ParseType(typeStr)
	if err != nil {
		t.Fatal(err)
	}
	id, err := c.Add(raw, ty, reason, 1000, store.Actor{Source: "bot"})
	if err != nil {
		t.Fatal(err)
	}
	row, err := c.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return row
}

func TestBanTarget_NoIdentdUsesStar(t *testing.T) {
	ident, host := BanTarget(Target{Ident: "~user", Host: "host.example"})
	if ident != "*" {
		t.Errorf("got %q, want *", ident)
	}
	if host != "host.example" {
		t.Errorf("got %q, want host.example", host)
	}
}

func TestBanTarget_IPPreferredOverHost(t *testing.T) {
	_, host := BanTarget(Target{Ident: "user", Host: "host.example", IP: "1.2.3.4"})
	if host != "1.2.3.4" {
		t.Errorf("got %q, want 1.2.3.4", host)
	}
}

func TestBanTimeMinutes_WithinRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := BanTimeMinutes()
		if v < 160 || v > 320 {
			t.Fatalf("got %d, want in [160,320]", v)
		}
	}
}

func TestDecide_KillCommand(t *testing.T) {
	c := newCatalog(t)
	row := addMask(t, c, `"bad"`, "KILL", "you are banned|spam ticket 1")
	matched := []Matched{{ID: row.ID, Row: row}}

	d, err := Decide(Target{Nick: "evil", Ident: "ident", Host: "host"}, matched, c, time.Unix(2000, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	want := "KILL evil :you are banned"
	if d.Command != want {
		t.Errorf("got %q, want %q", d.Command, want)
	}
	if !d.Immediate {
		t.Error("expected immediate send (no DELAY modifier)")
	}
	if d.ReportLine == "" {
		t.Error("expected a report line for KILL")
	}
}

func TestDecide_HitIncrementsCounter(t *testing.T) {
	c := newCatalog(t)
	row := addMask(t, c, `"bad"`, "WARN", "spam")
	matched := []Matched{{ID: row.ID, Row: row}}

	if _, err := Decide(Target{Nick: "evil"}, matched, c, time.Unix(2000, 0), ""); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(row.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hits != 1 {
		t.Errorf("got hits=%d, want 1", got.Hits)
	}
}

func TestDecide_TopRankedWins(t *testing.T) {
	c := newCatalog(t)
	warn := addMask(t, c, `"a"`, "WARN", "r1")
	kill := addMask(t, c, `"b"`, "KILL", "r2")
	matched := []Matched{{ID: warn.ID, Row: warn}, {ID: kill.ID, Row: kill}}

	d, err := Decide(Target{Nick: "evil", Ident: "ident", Host: "host"}, matched, c, time.Unix(2000, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	if d.MaskID != kill.ID {
		t.Errorf("got mask id %d, want the KILL mask %d to win", d.MaskID, kill.ID)
	}
}

func TestDecide_ExcludeOnly_SuppressesReporting(t *testing.T) {
	c := newCatalog(t)
	row := addMask(t, c, `"a"`, "EXCLUDE", "trusted bot")
	matched := []Matched{{ID: row.ID, Row: row}}

	d, err := Decide(Target{Nick: "trustedbot"}, matched, c, time.Unix(2000, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	if !d.ExcludeOnly {
		t.Error("expected ExcludeOnly=true")
	}
	if d.ReportLine != "" {
		t.Error("expected no report line when EXCLUDE is the sole action")
	}
}

func TestDecide_ExcludeNotSole_StillReports(t *testing.T) {
	c := newCatalog(t)
	excl := addMask(t, c, `"a"`, "EXCLUDE", "r1")
	kill := addMask(t, c, `"b"`, "KILL", "r2")
	matched := []Matched{{ID: excl.ID, Row: excl}, {ID: kill.ID, Row: kill}}

	d, err := Decide(Target{Nick: "evil", Ident: "ident", Host: "host"}, matched, c, time.Unix(2000, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	if d.ExcludeOnly {
		t.Error("EXCLUDE alongside KILL must not suppress reporting")
	}
	if d.ReportLine == "" {
		t.Error("expected a report line")
	}
}

func TestDecide_SilentModifier_NoReportLine(t *testing.T) {
	c := newCatalog(t)
	row := addMask(t, c, `"a"`, "KILL|SILENT", "r1")
	matched := []Matched{{ID: row.ID, Row: row}}

	d, err := Decide(Target{Nick: "evil", Ident: "ident", Host: "host"}, matched, c, time.Unix(2000, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	if d.ReportLine != "" {
		t.Error("SILENT modifier must suppress the report line")
	}
}

func TestDecide_QuietModifier_SetsFlagNotSilence(t *testing.T) {
	c := newCatalog(t)
	row := addMask(t, c, `"a"`, "KILL|QUIET", "r1")
	matched := []Matched{{ID: row.ID, Row: row}}

	d, err := Decide(Target{Nick: "evil", Ident: "ident", Host: "host"}, matched, c, time.Unix(2000, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Quiet {
		t.Error("expected Quiet=true")
	}
	if d.ReportLine == "" {
		t.Error("QUIET still reports, just to the verbose channel")
	}
}

func TestDecide_QuietAndSilent_QuietWins(t *testing.T) {
	c := newCatalog(t)
	row := addMask(t, c, `"a"`, "KILL|QUIET|SILENT", "r1")
	matched := []Matched{{ID: row.ID, Row: row}}

	d, err := Decide(Target{Nick: "evil", Ident: "ident", Host: "host"}, matched, c, time.Unix(2000, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Silent {
		t.Error("QUIET must take priority over SILENT per the §4.H.9 elif chain")
	}
	if d.ReportLine == "" {
		t.Error("expected a report line routed to the verbose channel")
	}
}

func TestDecide_DelayModifier_SchedulesFutureSend(t *testing.T) {
	c := newCatalog(t)
	row := addMask(t, c, `"a"`, "KILL|DELAY|QUICK", "r1")
	matched := []Matched{{ID: row.ID, Row: row}}

	now := time.Unix(2000, 0)
	d, err := Decide(Target{Nick: "evil", Ident: "ident", Host: "host"}, matched, c, now, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Immediate {
		t.Error("expected Immediate=false for a DELAY mask")
	}
	if d.SendAt != now.Add(3*time.Second) {
		t.Errorf("got SendAt=%v, want now+3s for QUICK delay", d.SendAt)
	}
}

func TestDecide_LethalExpandsBanTemplate(t *testing.T) {
	c := newCatalog(t)
	row := addMask(t, c, `"a"`, "LETHAL", "be gone|repeat offender")
	matched := []Matched{{ID: row.ID, Row: row}}

	tmpl := "KLINE {ban_time} {ban_user}@{ban_host} :{oper_reason}"
	d, err := Decide(Target{Nick: "evil", Ident: "~evil", Host: "host.example"}, matched, c, time.Unix(2000, 0), tmpl)
	if err != nil {
		t.Fatal(err)
	}
	want := "KLINE"
	if d.Command[:len(want)] != want {
		t.Errorf("got %q", d.Command)
	}
	if !strings.Contains(d.Command, "*@host.example") {
		t.Errorf("got %q, want ban_user=* (no identd) and ban_host=host.example", d.Command)
	}
	if !strings.Contains(d.Command, "repeat offender") {
		t.Errorf("got %q, want oper_reason substituted", d.Command)
	}
}
