package mask

import "testing"

func TestParseType_ActionOnly(t *testing.T) {
	ty, err := ParseType("KILL")
	if err != nil {
		t.Fatal(err)
	}
	if ty.Action() != ActionKill {
		t.Errorf("got %v, want KILL", ty.Action())
	}
	if ty.Has(ModifierDelay) {
		t.Error("expected no modifiers set")
	}
}

func TestParseType_WithModifiers(t *testing.T) {
	ty, err := ParseType("lethal|quick|quiet")
	if err != nil {
		t.Fatal(err)
	}
	if ty.Action() != ActionLethal {
		t.Errorf("got %v, want LETHAL", ty.Action())
	}
	if !ty.Has(ModifierQuick) || !ty.Has(ModifierQuiet) {
		t.Error("expected QUICK and QUIET set")
	}
	if ty.Has(ModifierSilent) || ty.Has(ModifierDelay) {
		t.Error("expected SILENT and DELAY unset")
	}
}

func TestParseType_UnknownAction(t *testing.T) {
	if _, err := ParseType("NUKE"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestParseType_UnknownModifier(t *testing.T) {
	if _, err := ParseType("WARN|FOO"); err == nil {
		t.Error("expected error for unknown modifier")
	}
}

func TestParseType_Empty(t *testing.T) {
	if _, err := ParseType(""); err == nil {
		t.Error("expected error for empty type string")
	}
}

func TestType_String_RoundTrips(t *testing.T) {
	ty, err := ParseType("RESV|DELAY|SILENT")
	if err != nil {
		t.Fatal(err)
	}
	got := ty.String()
	want := "RESV|DELAY|SILENT"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWeight_HigherActionAlwaysWins(t *testing.T) {
	low, _ := ParseType("EXCLUDE")
	high, _ := ParseType("WARN|DELAY|QUICK|SILENT|QUIET")
	if high.Weight() >= low.Weight() {
		t.Errorf("WARN with all modifiers (weight %d) must not outrank bare EXCLUDE (weight %d)",
			high.Weight(), low.Weight())
	}
}

func TestWeight_MoreModifiersWinsWithinSameAction(t *testing.T) {
	bare, _ := ParseType("KILL")
	withMods, _ := ParseType("KILL|DELAY|QUICK")
	if withMods.Weight() <= bare.Weight() {
		t.Errorf("KILL with modifiers (weight %d) must outrank bare KILL (weight %d)",
			withMods.Weight(), bare.Weight())
	}
}

func TestWeight_ActionOrdering(t *testing.T) {
	order := []string{"WARN", "KILL", "LETHAL", "RESV", "EXCLUDE"}
	var prev int = -1
	for _, name := range order {
		ty, err := ParseType(name)
		if err != nil {
			t.Fatal(err)
		}
		if ty.Weight() <= prev {
			t.Errorf("%s weight %d did not exceed previous weight %d", name, ty.Weight(), prev)
		}
		prev = ty.Weight()
	}
}
