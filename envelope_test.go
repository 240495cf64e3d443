package usersync

import (
	"encoding/json"
	"testing"
)

func TestParseSyncDataRoundTrip(t *testing.T) {
	machineID := "machine-a"
	data := SyncData{Version: 1, MachineID: &machineID, Content: `{"a":1}`}

	raw, err := data.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	parsed, err := ParseSyncData(raw)
	if err != nil {
		t.Fatalf("ParseSyncData: %v", err)
	}
	if parsed.Version != data.Version || parsed.Content != data.Content {
		t.Fatalf("parsed = %+v, want %+v", parsed, data)
	}
	if parsed.MachineID == nil || *parsed.MachineID != machineID {
		t.Fatalf("parsed.MachineID = %v, want %q", parsed.MachineID, machineID)
	}
}

func TestParseSyncDataRejectsUnrecognizedKey(t *testing.T) {
	_, err := ParseSyncData([]byte(`{"version":1,"content":"x","extra":true}`))
	if err == nil {
		t.Fatalf("expected an error for an unrecognized envelope key")
	}
}

func TestParseSyncDataRejectsMissingRequiredKey(t *testing.T) {
	_, err := ParseSyncData([]byte(`{"version":1}`))
	if err == nil {
		t.Fatalf("expected an error for a missing content key")
	}
}

// TestLastSyncUserDataRoundTripPreservesUnknownKeys is the spec.md §8
// property 7 / §9 forward-compat-bag guarantee: parse(serialize(x)) == x,
// including keys this engine version does not recognize.
func TestLastSyncUserDataRoundTripPreservesUnknownKeys(t *testing.T) {
	content := `{"version":1,"content":"hello"}`
	original := LastSyncUserData{
		Ref:     "ref-1",
		Content: &content,
		Extras: map[string]json.RawMessage{
			"strategyHint": json.RawMessage(`"merge-v2"`),
		},
	}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var roundTripped LastSyncUserData
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if roundTripped.Ref != original.Ref {
		t.Fatalf("Ref = %q, want %q", roundTripped.Ref, original.Ref)
	}
	if roundTripped.Content == nil || *roundTripped.Content != *original.Content {
		t.Fatalf("Content = %v, want %v", roundTripped.Content, original.Content)
	}
	if string(roundTripped.Extras["strategyHint"]) != `"merge-v2"` {
		t.Fatalf("Extras[strategyHint] = %s, want \"merge-v2\"", roundTripped.Extras["strategyHint"])
	}
}

func TestLastSyncUserDataRoundTripWithNilContent(t *testing.T) {
	original := LastSyncUserData{Ref: "ref-2", Content: nil}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var roundTripped LastSyncUserData
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if roundTripped.Content != nil {
		t.Fatalf("Content = %v, want nil (remote absent at last sync)", roundTripped.Content)
	}
	if len(roundTripped.Extras) != 0 {
		t.Fatalf("Extras = %v, want none", roundTripped.Extras)
	}
}
