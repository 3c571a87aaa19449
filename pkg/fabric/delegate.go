package fabric

// Delegate receives Fabric Table lifecycle notifications.
// Implementations may register or deregister further delegates from
// within a callback; delegateList's iteration is safe against that (it
// captures the next node before invoking).
type Delegate interface {
	// WillRemove is called before any persistent state for index is
	// removed.
	WillRemove(table *Table, index FabricIndex)

	// OnRemoved is called after removal completes.
	OnRemoved(table *Table, index FabricIndex)

	// OnUpdated is called for transient updates, including mid-Add, and
	// again on the Commit path. Non-final: OnCommitted is authoritative.
	OnUpdated(table *Table, index FabricIndex)

	// OnCommitted is called only on a successful Commit.
	OnCommitted(table *Table, index FabricIndex)
}

// delegateNode is one link in the intrusive singly-linked delegate
// list.
type delegateNode struct {
	delegate Delegate
	next     *delegateNode
}

// delegateList is a singly-linked list of registered delegates.
// Notifications run synchronously inside the notifying call and must
// tolerate a delegate unregistering itself (or another delegate) during
// its own callback: each step captures "next" before invoking.
type delegateList struct {
	head *delegateNode
}

func (l *delegateList) add(d Delegate) {
	l.head = &delegateNode{delegate: d, next: l.head}
}

// remove unlinks the first node whose delegate == d. Safe to call from
// within a notification callback.
func (l *delegateList) remove(d Delegate) {
	var prev *delegateNode
	cur := l.head
	for cur != nil {
		if cur.delegate == d {
			if prev == nil {
				l.head = cur.next
			} else {
				prev.next = cur.next
			}
			return
		}
		prev = cur
		cur = cur.next
	}
}

func (l *delegateList) willRemove(table *Table, index FabricIndex) {
	for cur := l.head; cur != nil; {
		next := cur.next
		cur.delegate.WillRemove(table, index)
		cur = next
	}
}

func (l *delegateList) onRemoved(table *Table, index FabricIndex) {
	for cur := l.head; cur != nil; {
		next := cur.next
		cur.delegate.OnRemoved(table, index)
		cur = next
	}
}

func (l *delegateList) onUpdated(table *Table, index FabricIndex) {
	for cur := l.head; cur != nil; {
		next := cur.next
		cur.delegate.OnUpdated(table, index)
		cur = next
	}
}

func (l *delegateList) onCommitted(table *Table, index FabricIndex) {
	for cur := l.head; cur != nil; {
		next := cur.next
		cur.delegate.OnCommitted(table, index)
		cur = next
	}
}
