package core

import (
	"errors"
	"testing"
)

func TestLiquidTakeRespectsBalanceAndScale(t *testing.T) {
	liq := &LiquidFungibleSubstate{Amount: NewDecimal(10)}
	if err := liquidTakeByAmount(liq, NewDecimal(4), 18); err != nil {
		t.Fatalf("take: %v", err)
	}
	if liq.Amount.String() != "6" {
		t.Fatalf("balance=%s want 6", liq.Amount)
	}
	if err := liquidTakeByAmount(liq, NewDecimal(7), 18); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := liquidTakeByAmount(liq, MustDecimal("0.5"), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected scale violation, got %v", err)
	}
	if err := liquidTakeByAmount(liq, MustDecimal("-1"), 18); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected negative amount refusal, got %v", err)
	}
}

func TestFungibleLockSharingDoesNotMintResource(t *testing.T) {
	liq := &LiquidFungibleSubstate{Amount: NewDecimal(10)}
	locked := &LockedFungibleSubstate{}

	// First proof pins 5: liquid drops by 5.
	if err := lockFungibleAmount(liq, locked, NewDecimal(5), 18); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if liq.Amount.String() != "5" {
		t.Fatalf("liquid=%s want 5", liq.Amount)
	}
	// A shared proof of 3 draws nothing extra.
	if err := lockFungibleAmount(liq, locked, NewDecimal(3), 18); err != nil {
		t.Fatalf("shared lock: %v", err)
	}
	if liq.Amount.String() != "5" {
		t.Fatalf("liquid=%s after shared lock, want 5", liq.Amount)
	}
	// Dropping the 3-lock releases nothing (5 still pinned).
	if err := unlockFungibleAmount(liq, locked, NewDecimal(3)); err != nil {
		t.Fatalf("unlock 3: %v", err)
	}
	if liq.Amount.String() != "5" {
		t.Fatalf("liquid=%s after unlock 3, want 5", liq.Amount)
	}
	// Dropping the 5-lock returns the full pin.
	if err := unlockFungibleAmount(liq, locked, NewDecimal(5)); err != nil {
		t.Fatalf("unlock 5: %v", err)
	}
	if liq.Amount.String() != "10" {
		t.Fatalf("liquid=%s after unlock 5, want 10", liq.Amount)
	}
	if len(locked.Amounts) != 0 {
		t.Fatalf("lock table not empty: %v", locked.Amounts)
	}
}

func TestNonFungibleLiquidLockedDisjoint(t *testing.T) {
	liq := &LiquidNonFungibleSubstate{}
	liquidPutIDs(liq, []NonFungibleLocalID{IntegerID(1), IntegerID(2), IntegerID(3)})
	locked := &LockedNonFungibleSubstate{}

	if err := lockNonFungibleIDs(liq, locked, []NonFungibleLocalID{IntegerID(1)}); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if liq.IDs[IntegerID(1).String()] {
		t.Fatalf("locked id still liquid")
	}
	// Locking again shares the lock.
	if err := lockNonFungibleIDs(liq, locked, []NonFungibleLocalID{IntegerID(1)}); err != nil {
		t.Fatalf("shared lock: %v", err)
	}
	if locked.IDs[IntegerID(1).String()] != 2 {
		t.Fatalf("lock count=%d want 2", locked.IDs[IntegerID(1).String()])
	}
	unlockNonFungibleIDs(liq, locked, []NonFungibleLocalID{IntegerID(1)})
	if liq.IDs[IntegerID(1).String()] {
		t.Fatalf("id returned to liquid while still locked")
	}
	unlockNonFungibleIDs(liq, locked, []NonFungibleLocalID{IntegerID(1)})
	if !liq.IDs[IntegerID(1).String()] {
		t.Fatalf("id not returned to liquid after final unlock")
	}
}

func TestLiquidTakeUnknownID(t *testing.T) {
	liq := &LiquidNonFungibleSubstate{}
	liquidPutIDs(liq, []NonFungibleLocalID{IntegerID(1)})
	if err := liquidTakeIDs(liq, []NonFungibleLocalID{IntegerID(2)}); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected unknown id, got %v", err)
	}
	// Failed takes must not mutate the set.
	if !liq.IDs[IntegerID(1).String()] {
		t.Fatalf("failed take mutated liquid set")
	}
}

func TestNonFungibleIDTextRoundTrip(t *testing.T) {
	for _, id := range []NonFungibleLocalID{
		IntegerID(42),
		StringID("hello"),
		BytesID([]byte{0xde, 0xad}),
		NewRUID(),
	} {
		back, err := ParseNonFungibleLocalID(id.String())
		if err != nil {
			t.Fatalf("parse %s: %v", id, err)
		}
		if back.String() != id.String() {
			t.Fatalf("round trip %s != %s", back, id)
		}
	}
}
