package concurrent

import "testing"

func TestMailboxSendReceiveTakeIf(t *testing.T) {
	mb := NewTaggedMailbox[int, *string](128)

	pending := (*string)(nil)
	if !mb.Send(1, pending) {
		t.Fatal("expected send to succeed")
	}

	v, ok := mb.Receive(1)
	if !ok || v != nil {
		t.Fatalf("expected pending nil value, got %v ok=%v", v, ok)
	}

	done := "done"
	if !mb.Send(1, &done) {
		t.Fatal("expected replace send to succeed")
	}

	taken, ok := mb.TakeIf(1, func(v *string) bool { return v != nil })
	if !ok || taken == nil || *taken != "done" {
		t.Fatalf("expected take-if-finished to return done, got %v ok=%v", taken, ok)
	}

	if _, ok := mb.TakeIf(1, func(v *string) bool { return true }); ok {
		t.Fatal("expected second take to fail, entry already removed")
	}
}

func TestMailboxTakeIfRequiresPredicate(t *testing.T) {
	mb := NewTaggedMailbox[int, *string](128)
	mb.Send(1, (*string)(nil))

	if _, ok := mb.TakeIf(1, func(v *string) bool { return v != nil }); ok {
		t.Fatal("expected take-if-finished to fail while pending")
	}
	if _, ok := mb.Receive(1); !ok {
		t.Fatal("expected entry still present")
	}
}

func TestMailboxCapacityAndEviction(t *testing.T) {
	mb := NewTaggedMailbox[int, int](2)

	if !mb.Send(1, 1) {
		t.Fatal("expected send 1 to succeed")
	}
	if !mb.Send(2, 2) {
		t.Fatal("expected send 2 to succeed")
	}
	// full, all unread: a third distinct tag must fail.
	if mb.Send(3, 3) {
		t.Fatal("expected send 3 to fail: mailbox full and all entries unread")
	}

	// read tag 1, making it evictable.
	mb.Receive(1)
	if !mb.Send(3, 3) {
		t.Fatal("expected send 3 to succeed after tag 1 became evictable")
	}
	if mb.Len() != 2 {
		t.Fatalf("expected 2 live entries, got %d", mb.Len())
	}
	if _, ok := mb.Receive(1); ok {
		t.Fatal("expected tag 1 to have been evicted")
	}
}

func TestMailboxPeekDoesNotMarkEvictable(t *testing.T) {
	mb := NewTaggedMailbox[int, int](2)
	mb.Send(1, 1)
	mb.Send(2, 2)

	if v, ok := mb.Peek(1); !ok || v != 1 {
		t.Fatalf("expected peek to return 1, got %v ok=%v", v, ok)
	}
	// full, tag 1 only peeked (not Receive'd): must still refuse a new tag.
	if mb.Send(3, 3) {
		t.Fatal("expected send 3 to fail: peek must not make tag 1 evictable")
	}
}

func TestMailboxSendResetsReadOnReplace(t *testing.T) {
	mb := NewTaggedMailbox[int, int](2)
	mb.Send(1, 1)
	mb.Send(2, 2)
	mb.Receive(1) // mark tag 1 evictable

	// replacing tag 1 with fresh data must clear its evictable bit.
	mb.Send(1, 10)
	if mb.Send(3, 3) {
		t.Fatal("expected send 3 to fail: replaced tag 1 must no longer be evictable")
	}
	if v, ok := mb.Peek(1); !ok || v != 10 {
		t.Fatalf("expected tag 1 to hold replaced value 10, got %v ok=%v", v, ok)
	}
}

func TestMailboxListAndClear(t *testing.T) {
	mb := NewTaggedMailbox[int, int](8)
	mb.Send(1, 1)
	mb.Send(2, 2)
	if len(mb.List()) != 2 {
		t.Fatalf("expected 2 tags listed")
	}
	mb.Clear()
	if mb.Len() != 0 {
		t.Fatalf("expected empty mailbox after Clear")
	}
}
