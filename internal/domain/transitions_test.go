package domain

import "testing"

func TestFeeStructureTransitions(t *testing.T) {
	tests := []struct {
		name string
		from FeeStructureStatus
		to   FeeStructureStatus
		want bool
	}{
		{"draft submits for approval", FeeStructureDraft, FeeStructurePendingApproval, true},
		{"draft cannot activate directly", FeeStructureDraft, FeeStructureActive, false},
		{"pending approves", FeeStructurePendingApproval, FeeStructureApproved, true},
		{"pending rejects", FeeStructurePendingApproval, FeeStructureRejected, true},
		{"approved activates", FeeStructureApproved, FeeStructureActive, true},
		{"active supersedes", FeeStructureActive, FeeStructureSuperseded, true},
		{"rejected is terminal", FeeStructureRejected, FeeStructureDraft, false},
		{"superseded is terminal", FeeStructureSuperseded, FeeStructureActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s -> %s) = %t, want %t", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCycleTransitions(t *testing.T) {
	tests := []struct {
		name string
		from CycleStatus
		to   CycleStatus
		want bool
	}{
		{"draft opens", CycleDraft, CycleActive, true},
		{"draft cancels", CycleDraft, CycleCancelled, true},
		{"active closes", CycleActive, CycleClosed, true},
		{"active enters processing", CycleActive, CycleProcessing, true},
		{"processing closes", CycleProcessing, CycleClosed, true},
		{"processing returns to active", CycleProcessing, CycleActive, true},
		{"closed never reopens", CycleClosed, CycleActive, false},
		{"cancelled is terminal", CycleCancelled, CycleActive, false},
		{"error is terminal", CycleError, CycleActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s -> %s) = %t, want %t", tt.from, tt.to, got, tt.want)
			}
		})
	}
	if !CycleClosed.Terminal() || !CycleCancelled.Terminal() || !CycleError.Terminal() {
		t.Fatal("expected closed, cancelled and error to be terminal")
	}
}

func TestFineTransitions(t *testing.T) {
	tests := []struct {
		name string
		from FineStatus
		to   FineStatus
		want bool
	}{
		{"new notifies", FineNew, FineNotified, true},
		{"new cannot be paid before notification", FineNew, FinePaid, false},
		{"notified pays", FineNotified, FinePaid, true},
		{"notified disputes", FineNotified, FineDisputed, true},
		{"notified goes overdue", FineNotified, FineOverdue, true},
		{"dispute upheld goes overdue", FineDisputed, FineOverdue, true},
		{"dispute reduced pays", FineDisputed, FinePaid, true},
		{"dispute overturned voids", FineDisputed, FineVoid, true},
		{"overdue pays", FineOverdue, FinePaid, true},
		{"paid is terminal", FinePaid, FineOverdue, false},
		{"void is terminal", FineVoid, FineNotified, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s -> %s) = %t, want %t", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPaymentTransitions(t *testing.T) {
	tests := []struct {
		name string
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{"pending processes", PaymentPending, PaymentProcessed, true},
		{"pending enters reconciling", PaymentPending, PaymentReconciling, true},
		{"reconciling processes after resolution", PaymentReconciling, PaymentProcessed, true},
		{"reconciling fails on SLA breach", PaymentReconciling, PaymentFailed, true},
		{"failed re-queues to pending", PaymentFailed, PaymentPending, true},
		{"processed refunds", PaymentProcessed, PaymentRefunded, true},
		{"processed never fails", PaymentProcessed, PaymentFailed, false},
		{"rejected is terminal", PaymentRejected, PaymentPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s -> %s) = %t, want %t", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestBudgetTransitions(t *testing.T) {
	tests := []struct {
		name string
		from BudgetStatus
		to   BudgetStatus
		want bool
	}{
		{"draft submits", BudgetDraft, BudgetInReview, true},
		{"review approves", BudgetInReview, BudgetApproved, true},
		{"review returns to draft", BudgetInReview, BudgetDraft, true},
		{"approved activates", BudgetApproved, BudgetActive, true},
		{"active closes", BudgetActive, BudgetClosed, true},
		{"closed is terminal", BudgetClosed, BudgetActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s -> %s) = %t, want %t", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestAccountTransitions(t *testing.T) {
	if !AccountActive.CanTransition(AccountSuspended) {
		t.Fatal("active account should suspend")
	}
	if !AccountSuspended.CanTransition(AccountActive) {
		t.Fatal("suspended account should resume")
	}
	if AccountClosed.CanTransition(AccountActive) {
		t.Fatal("closed account must not reopen")
	}
}
