package heap

// freeList is the process-global doubly-linked list of free blocks.
// It is ownership-neutral plumbing only: callers hold the heap's mutex
// for the duration of any mutation.
type freeList struct {
	head *blockHeader
	len  int
}

// insert places h at the head of the list, O(1).
func (l *freeList) insert(h *blockHeader) {
	h.isFree = 1
	h.prevFree = nil
	h.nextFree = l.head
	if l.head != nil {
		l.head.prevFree = h
	}
	l.head = h
	h.writeFooter()
	l.len++
}

// remove splices h out of the list, O(1). h must currently be a member.
func (l *freeList) remove(h *blockHeader) {
	switch {
	case h.prevFree == nil && h.nextFree == nil:
		l.head = nil
	case h.prevFree == nil:
		l.head = h.nextFree
		h.nextFree.prevFree = nil
	case h.nextFree == nil:
		h.prevFree.nextFree = nil
	default:
		h.prevFree.nextFree = h.nextFree
		h.nextFree.prevFree = h.prevFree
	}
	h.prevFree = nil
	h.nextFree = nil
	l.len--
}

// firstFit walks from head, returning the first block whose size is
// large enough to satisfy e. Ties break by reverse insertion order (the
// most recently inserted block wins), since insert is head-first and the
// scan always runs head to tail.
func (l *freeList) firstFit(e int) *blockHeader {
	for n := l.head; n != nil; n = n.nextFree {
		if n.size >= int64(e) {
			return n
		}
	}
	return nil
}

// totalFree sums the size field of every block currently on the list;
// used to cross-check the total-free statistic against the live list.
func (l *freeList) totalFree() int64 {
	var sum int64
	for n := l.head; n != nil; n = n.nextFree {
		sum += n.size
	}
	return sum
}
