package azure

import "testing"

func TestIsWorkItemID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"12345", true},
		{"ADO-12345", true},
		{"ADO-", true},
		{"PROJ-1", false},
		{"12a45", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsWorkItemID(c.id); got != c.want {
			t.Errorf("IsWorkItemID(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestNumericID(t *testing.T) {
	if NumericID("ADO-42") != "42" {
		t.Fatalf("NumericID(ADO-42) = %q", NumericID("ADO-42"))
	}
	if NumericID("42") != "42" {
		t.Fatalf("NumericID(42) = %q", NumericID("42"))
	}
}

func TestStripHTML(t *testing.T) {
	in := `<div>As a user<br/>I want to <b>log in</b>&nbsp;&amp; out</div>`
	want := "As a user\nI want to log in & out"
	if got := stripHTML(in); got != want {
		t.Fatalf("stripHTML = %q, want %q", got, want)
	}
}

func TestFieldExtraction(t *testing.T) {
	fields := map[string]any{
		"System.Title":      "Work item",
		"System.AssignedTo": map[string]any{"displayName": "Sam", "id": "u1"},
		"System.Weird":      42,
	}
	if field(fields, "System.Title") != "Work item" {
		t.Fatal("plain string field")
	}
	if field(fields, "System.AssignedTo") != "Sam" {
		t.Fatal("identity field")
	}
	if field(fields, "System.Weird") != "" {
		t.Fatal("non-string field should be empty")
	}
	if field(fields, "System.Missing") != "" {
		t.Fatal("missing field should be empty")
	}
}
