package utils

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	id, err := GenerateRandomID(16)
	if err != nil {
		t.Fatalf("GenerateRandomID: %v", err)
	}
	if len(id) != 16 {
		t.Errorf("length = %d, want 16", len(id))
	}

	other, _ := GenerateRandomID(16)
	if id == other {
		t.Error("two generated IDs should not collide")
	}
}

func TestGenerateUUID(t *testing.T) {
	uuid, err := GenerateUUID()
	if err != nil {
		t.Fatalf("GenerateUUID: %v", err)
	}
	if len(uuid) != 36 {
		t.Errorf("length = %d, want 36", len(uuid))
	}
	if uuid[14] != '4' {
		t.Errorf("version nibble = %c, want 4", uuid[14])
	}
}

func TestGenerateRunID(t *testing.T) {
	id, err := GenerateRunID()
	if err != nil {
		t.Fatalf("GenerateRunID: %v", err)
	}
	if !strings.HasPrefix(id, "run-") {
		t.Errorf("run ID %q should have run- prefix", id)
	}

	other := MustGenerateRunID()
	if id == other {
		t.Error("two run IDs should not collide")
	}
}
