package auth

import (
	"errors"
	"testing"
)

type ownedByID int64

func (o ownedByID) OwnerID() int64 { return int64(o) }

func TestAssertOwner(t *testing.T) {
	owner := Principal{ID: 3}
	if err := AssertOwner(ownedByID(3), owner); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	for _, other := range []Principal{{ID: 4}, {ID: 0}, {ID: -3}} {
		if err := AssertOwner(ownedByID(3), other); !errors.Is(err, ErrForbidden) {
			t.Fatalf("principal %d: expected ErrForbidden, got %v", other.ID, err)
		}
	}
	if err := AssertOwner(nil, owner); !errors.Is(err, ErrForbidden) {
		t.Fatalf("nil resource: expected ErrForbidden, got %v", err)
	}
}
