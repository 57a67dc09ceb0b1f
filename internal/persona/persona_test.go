package persona

import (
	"strings"
	"testing"
)

func TestSystemInstruction(t *testing.T) {
	if got := SystemInstruction("tutor"); !strings.HasPrefix(got, "You are an AI Tutor.") {
		t.Errorf("tutor instruction = %q", got)
	}
	def := SystemInstruction(DefaultID)
	if def == "" {
		t.Fatal("default persona has no instruction")
	}
	for _, id := range []string{"", "unknown"} {
		if got := SystemInstruction(id); got != def {
			t.Errorf("SystemInstruction(%q) did not fall back to default", id)
		}
	}
}

func TestListIsCopy(t *testing.T) {
	list := List()
	if len(list) != 6 {
		t.Fatalf("len(List()) = %d, want 6", len(list))
	}
	list[0].Name = "changed"
	if Get(list[0].ID).Name == "changed" {
		t.Error("List exposes the catalog")
	}
}
