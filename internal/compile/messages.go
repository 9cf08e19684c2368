package compile

// Events delivered to the scheduler's single-consumer loop. Workers produce
// exactly one terminal unitDone; the handshake messages may occur any number
// of times while a unit compiles.

type event interface{ isEvent() }

// unitDone is a worker's terminal message: success carries the produced
// container names, failure carries the original fault unchanged.
type unitDone struct {
	id     int64
	path   string
	result UnitResult
	err    error
}

// containerAvailable is a pure liveness announcement: a container has been
// declared structurally before its unit finished compiling. It is always
// acknowledged; it is not a dependency gate.
type containerAvailable struct {
	name string
	ack  chan struct{}
}

// structAvailable is informational only; the scheduler takes no action.
type structAvailable struct {
	name string
}

// structWait declares that a worker must block pending a struct's finalized
// layout. The broker releases it immediately rather than queuing it.
type structWait struct {
	name  string
	reply chan struct{}
}

func (unitDone) isEvent()           {}
func (containerAvailable) isEvent() {}
func (structAvailable) isEvent()    {}
func (structWait) isEvent()         {}

// Handshake is the workers' side of the dependency broker. All methods route
// through the scheduler's event loop; the broker itself is stateless.
type Handshake struct {
	events chan<- event
}

// ContainerDeclared announces a structurally declared container and waits
// for the scheduler's acknowledgement before letting the worker proceed.
func (h *Handshake) ContainerDeclared(name string) {
	ack := make(chan struct{})
	h.events <- containerAvailable{name: name, ack: ack}
	<-ack
}

// StructDeclared announces a finalized struct layout.
func (h *Handshake) StructDeclared(name string) {
	h.events <- structAvailable{name: name}
}

// AwaitStruct blocks until the scheduler releases the wait. The release is
// unconditional: real ordering is guaranteed by the unit-completion path,
// not by broker-mediated waiting.
func (h *Handshake) AwaitStruct(name string) {
	reply := make(chan struct{})
	h.events <- structWait{name: name, reply: reply}
	<-reply
}
