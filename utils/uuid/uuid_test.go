package uuid_test

import (
	"testing"

	"github.com/jrife/placement/utils/uuid"
)

func TestUnique(t *testing.T) {
	seen := map[string]bool{}

	for i := 0; i < 100; i++ {
		id := uuid.MustUUID()

		if len(id) != 36 || seen[id] {
			t.Fatalf("expected a fresh 36 character uuid, got %s", id)
		}

		seen[id] = true
	}

	if len(uuid.Short()) != 8 {
		t.Fatalf("expected an 8 character short id")
	}
}
