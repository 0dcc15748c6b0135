package logic

// Route computes the target position of every gate in the network.
//
// A gate is OPEN when at least one active tool (ON or SPINDOWN) lists it in
// its gate preferences, and CLOSED otherwise. Contested gates stay open: there
// is no priority between tools. Preferences naming gates outside gateIDs are
// ignored.
func Route(tools []ToolSnapshot, gateIDs []string) map[string]GatePosition {
	want := make(map[string]bool)
	for _, t := range tools {
		if !t.Status.Active() {
			continue
		}
		for _, g := range t.Gates {
			want[g] = true
		}
	}

	out := make(map[string]GatePosition, len(gateIDs))
	for _, id := range gateIDs {
		if want[id] {
			out[id] = GateOpen
		} else {
			out[id] = GateClosed
		}
	}
	return out
}

// OpenGates returns the ids of gates that Route would open, in gateIDs order.
func OpenGates(tools []ToolSnapshot, gateIDs []string) []string {
	routes := Route(tools, gateIDs)
	var open []string
	for _, id := range gateIDs {
		if routes[id] == GateOpen {
			open = append(open, id)
		}
	}
	return open
}
