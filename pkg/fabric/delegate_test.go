package fabric

import "testing"

func TestDelegateList_NotifiesInRegistrationOrder(t *testing.T) {
	var l delegateList
	var calls []string
	l.add(newRecordingDelegate("a", &calls))
	l.add(newRecordingDelegate("b", &calls))

	l.onUpdated(nil, 1)

	want := []string{"b:OnUpdated:FabricIndex(1)", "a:OnUpdated:FabricIndex(1)"}
	if len(calls) != len(want) {
		t.Fatalf("got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestDelegateList_AllFourCallbacksFire(t *testing.T) {
	var l delegateList
	var calls []string
	l.add(newRecordingDelegate("d", &calls))

	l.willRemove(nil, 5)
	l.onRemoved(nil, 5)
	l.onUpdated(nil, 5)
	l.onCommitted(nil, 5)

	want := []string{
		"d:WillRemove:FabricIndex(5)",
		"d:OnRemoved:FabricIndex(5)",
		"d:OnUpdated:FabricIndex(5)",
		"d:OnCommitted:FabricIndex(5)",
	}
	if len(calls) != len(want) {
		t.Fatalf("got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, calls[i], want[i])
		}
	}
}

// Three delegates are registered; the middle one removes itself while
// handling OnRemoved. The third delegate (the first one added, which is
// notified last since add prepends) must still receive OnRemoved exactly
// once, proving iteration captures "next" before invoking the callback.
func TestDelegateList_SelfRemovalDuringNotificationIsSafe(t *testing.T) {
	var l delegateList
	var calls []string

	first := newRecordingDelegate("first", &calls)
	middle := newRecordingDelegate("middle", &calls)
	last := newRecordingDelegate("last", &calls)

	l.add(first)
	l.add(middle)
	l.add(last)

	middle.onRemovedFn = func(table *Table, index FabricIndex) {
		l.remove(middle)
	}

	l.onRemoved(nil, 9)

	firstCount, middleCount, lastCount := 0, 0, 0
	for _, c := range calls {
		switch c {
		case "first:OnRemoved:FabricIndex(9)":
			firstCount++
		case "middle:OnRemoved:FabricIndex(9)":
			middleCount++
		case "last:OnRemoved:FabricIndex(9)":
			lastCount++
		}
	}
	if firstCount != 1 {
		t.Errorf("expected first to be notified exactly once, got %d", firstCount)
	}
	if middleCount != 1 {
		t.Errorf("expected middle to be notified exactly once before removing itself, got %d", middleCount)
	}
	if lastCount != 1 {
		t.Errorf("expected last to still be notified exactly once, got %d", lastCount)
	}

	// middle is now unregistered.
	calls = nil
	l.onRemoved(nil, 9)
	for _, c := range calls {
		if c == "middle:OnRemoved:FabricIndex(9)" {
			t.Error("middle should no longer receive notifications after self-removal")
		}
	}
}

func TestDelegateList_RemoveUnregisteredDelegateIsNoop(t *testing.T) {
	var l delegateList
	var calls []string
	d := newRecordingDelegate("solo", &calls)
	other := newRecordingDelegate("other", &calls)

	l.add(d)
	l.remove(other)

	l.onUpdated(nil, 1)
	if len(calls) != 1 {
		t.Errorf("expected the still-registered delegate to fire, got %v", calls)
	}
}
