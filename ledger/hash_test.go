package ledger

import "testing"

func TestHash(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"", "67ABAAAAAAAAAA2A"},
		{"txn-1", "AB3C9AA8B40401AE"},
		{"txn-2", "1AE844535FAFABD8"},
		{"GPA.1234-5678-9012-34567", "F11E905EEEDB39A0"},
		{"é", "B0263A8EE3388E63"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := Hash(tt.id); got != tt.want {
				t.Errorf("Hash(%q) = %s, want %s", tt.id, got, tt.want)
			}
		})
	}
}

func TestHashIsStable(t *testing.T) {
	a := Hash("order-42")
	b := Hash("order-42")
	if a != b {
		t.Errorf("Expected same id to hash the same, got %s and %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("Expected 16 hex chars, got %d", len(a))
	}
}
