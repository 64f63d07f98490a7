package vm

// upvalue is a captured variable cell. While the owning frame is live it
// points at the frame's local slot; once closed it holds the value itself
// and is shared by every closure that captured it.
type upvalue struct {
	location *Value
	closed   Value
	owner    *frame
	slot     int
}

func (uv *upvalue) get() Value {
	if uv == nil {
		return Nil()
	}
	if uv.location != nil {
		return *uv.location
	}
	return uv.closed
}

func (uv *upvalue) set(v Value) {
	if uv == nil {
		return
	}
	if uv.location != nil {
		*uv.location = v
		return
	}
	uv.closed = v
}

func (uv *upvalue) close() {
	if uv.location != nil {
		uv.closed = *uv.location
		uv.location = nil
		uv.owner = nil
	}
}

// captureUpvalue returns the open cell for a frame slot, creating it on the
// first capture.
func (th *thread) captureUpvalue(fr *frame, slot int) *upvalue {
	for _, uv := range th.open {
		if uv.owner == fr && uv.slot == slot {
			return uv
		}
	}
	uv := &upvalue{location: &fr.locals[slot], owner: fr, slot: slot}
	th.open = append(th.open, uv)
	return uv
}

// closeUpvalues closes the cells of fr at or above slot.
func (th *thread) closeUpvalues(fr *frame, slot int) {
	if len(th.open) == 0 {
		return
	}
	kept := th.open[:0]
	for _, uv := range th.open {
		if uv.owner == fr && uv.slot >= slot {
			uv.close()
			continue
		}
		kept = append(kept, uv)
	}
	for i := len(kept); i < len(th.open); i++ {
		th.open[i] = nil
	}
	th.open = kept
}
