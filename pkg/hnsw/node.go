package hnsw

// node (C4) is identified purely by its arena index; nodes never hold
// pointers to one another. maxLayer is sampled once at insert time and
// never changes. A removed node keeps its id and maxLayer until a later
// insert reuses its id and replaces it with a fresh node, and has every
// connection list cleared down to length zero.
type node struct {
	id            int
	maxLayer      int
	connections   [][]int // connections[layer] = outgoing neighbor ids
	inConnections [][]int // inConnections[layer] = incoming neighbor ids
	removed       bool
}

func newNode(id, maxLayer int) *node {
	n := &node{
		id:            id,
		maxLayer:      maxLayer,
		connections:   make([][]int, maxLayer+1),
		inConnections: make([][]int, maxLayer+1),
	}
	for l := range n.connections {
		n.connections[l] = nil
		n.inConnections[l] = nil
	}
	return n
}

func removeID(ids []int, id int) []int {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func containsID(ids []int, id int) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// clearAdjacency empties every connection list, used when a node is
// tombstoned by RemoveItem. Each list is truncated to zero length, keeping
// its backing array, rather than set to nil as newNode does.
func (n *node) clearAdjacency() {
	for l := range n.connections {
		n.connections[l] = n.connections[l][:0]
		n.inConnections[l] = n.inConnections[l][:0]
	}
}
