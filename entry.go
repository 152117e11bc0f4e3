package docsession

// State is where a document stands relative to the store within a session.
type State int

const (
	StateClean State = iota
	StateDirty
	StateCreated
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateCreated:
		return "created"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

type entry struct {
	id       string
	seq      uint64
	state    State
	rev      string
	pristine Fields
	current  Fields
	// detached is set once the entry leaves the cache; its handle then rejects writes.
	detached bool
	owner    *cache
	handle   *Tracked
}

func (e *entry) writable(op string) error {
	if e.owner.flushing {
		return docErr(op, e.id, ErrSessionBusy)
	}
	if e.detached || e.state == StateDeleted {
		return docErr(op, e.id, ErrInvalidOperation)
	}
	return nil
}

// modified is called after every top-level mutation of current.
func (e *entry) modified() {
	if e.state == StateClean {
		e.state = StateDirty
	}
}

func (e *entry) committed(rev string) {
	e.rev = rev
	e.state = StateClean
	e.pristine = e.current.Clone()
}

func (e *entry) operation() Operation {
	if e.state == StateDeleted {
		return Operation{Kind: OpDelete, ID: e.id, Rev: e.rev}
	}
	return Operation{Kind: OpPut, ID: e.id, Rev: e.rev, Fields: e.current.Clone()}
}
