package core

import (
	"errors"
	"testing"
)

func newTestInterpreter(t *testing.T) (*Kernel, *Interpreter) {
	t.Helper()
	k := newTestKernel(t)
	ip, err := NewInterpreter(k)
	if err != nil {
		t.Fatalf("interpreter: %v", err)
	}
	return k, ip
}

func TestInterpreterUnboundBucketName(t *testing.T) {
	_, ip := newTestInterpreter(t)
	_, err := ip.Run([]Instruction{{Op: OpReturnToWorktop, BucketName: "missing"}})
	var ne *NameResolverError
	if !errors.As(err, &ne) || ne.Kind != "bucket" || ne.Name != "missing" {
		t.Fatalf("expected bucket name resolver error, got %v", err)
	}
}

func TestInterpreterBucketNameConsumedOnce(t *testing.T) {
	k, ip := newTestInterpreter(t)

	funding, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(10))
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := k.WorktopPut(ip.Worktop(), funding); err != nil {
		t.Fatalf("seed worktop: %v", err)
	}
	amount := NewDecimal(10)
	idx, err := ip.Run([]Instruction{
		{Op: OpTakeFromWorktop, Resource: XRDAddress, Amount: &amount, NewBucketName: "b"},
		{Op: OpReturnToWorktop, BucketName: "b"},
		{Op: OpReturnToWorktop, BucketName: "b"},
	})
	var ne *NameResolverError
	if !errors.As(err, &ne) {
		t.Fatalf("expected name resolver error on reuse, got %v", err)
	}
	if idx != 2 {
		t.Fatalf("failing index=%d want 2", idx)
	}
}

func TestInterpreterTakeReturnLeavesWorktopUnchanged(t *testing.T) {
	k, ip := newTestInterpreter(t)
	funding, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(25))
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := k.WorktopPut(ip.Worktop(), funding); err != nil {
		t.Fatalf("seed worktop: %v", err)
	}
	amount := NewDecimal(25)
	ten := NewDecimal(10)
	if _, err := ip.Run([]Instruction{
		{Op: OpTakeFromWorktop, Resource: XRDAddress, Amount: &ten, NewBucketName: "b"},
		{Op: OpReturnToWorktop, BucketName: "b"},
		{Op: OpAssertWorktopContains, Resource: XRDAddress, Amount: &amount},
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestInterpreterTracksInstructionIndexInTrace(t *testing.T) {
	k, ip := newTestInterpreter(t)
	funding, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(5))
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := k.WorktopPut(ip.Worktop(), funding); err != nil {
		t.Fatalf("seed worktop: %v", err)
	}
	five := NewDecimal(5)
	if _, err := ip.Run([]Instruction{
		{Op: OpTakeFromWorktop, Resource: XRDAddress, Amount: &five, NewBucketName: "b"},
		{Op: OpReturnToWorktop, BucketName: "b"},
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	entries := k.Trace().Entries()
	if len(entries) == 0 {
		t.Fatalf("no trace entries")
	}
	sawTake := false
	for _, e := range entries {
		if e.Op == "worktop_take" && e.Instruction == 0 {
			sawTake = true
		}
	}
	if !sawTake {
		t.Fatalf("worktop_take not attributed to instruction 0: %+v", entries)
	}
}
