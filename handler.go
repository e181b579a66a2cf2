package connpool

// ErrorHandler decides what happens to an address once one of its
// connections failed in a way that points at the address itself.
type ErrorHandler interface {
	OnFailure(addr Address)
}

// DirectErrorHandler is used when talking to a single server. There is no
// other address to fall back to, so failures are left to surface to the
// caller as ErrServiceUnavailable.
type DirectErrorHandler struct{}

func (DirectErrorHandler) OnFailure(Address) {}

// RoutingTable is the part of a cluster routing table the pool escalates to.
type RoutingTable interface {
	// Deactivate takes addr out of future address selection.
	Deactivate(addr Address)
}

// RoutingErrorHandler forwards address failures to a routing table. Existing
// connections are left alone; they get evicted lazily on acquire or release.
type RoutingErrorHandler struct {
	table RoutingTable
}

func NewRoutingErrorHandler(table RoutingTable) *RoutingErrorHandler {
	return &RoutingErrorHandler{table: table}
}

func (h *RoutingErrorHandler) OnFailure(addr Address) {
	if h.table != nil {
		h.table.Deactivate(addr)
	}
}
