package hnsw

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"math/rand"
)

// Each serialized section is wrapped in its own
// [Magic(1)][OpCode(1)][Length(4) LE][CRC32(4) LE][Payload] frame, the wire
// format grounded on the teacher's persistence layer, generalized here to
// wrap a sequence of sections (header, parameters, core) rather than a
// single command.
const (
	frameMagic   byte = 0xA5
	opHeader     byte = 0x01
	opParameters byte = 0x02
	opNodes      byte = 0x03
)

const formatHeader = "HNSW"

func writeFrame(w io.Writer, opcode byte, payload []byte) error {
	header := make([]byte, 10)
	header[0] = frameMagic
	header[1] = opcode
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (opcode byte, payload []byte, err error) {
	header := make([]byte, 10)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if header[0] != frameMagic {
		return 0, nil, fmt.Errorf("%w: bad frame magic", ErrInvalidData)
	}
	length := binary.LittleEndian.Uint32(header[2:6])
	wantCRC := binary.LittleEndian.Uint32(header[6:10])
	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return 0, nil, fmt.Errorf("%w: frame checksum mismatch", ErrInvalidData)
	}
	return header[1], payload, nil
}

// serializedNode captures one arena slot. inConnections is not written: it
// is fully determined by connections under invariant 2 (symmetry), so
// DeserializeGraph rebuilds it rather than duplicating it on the wire.
type serializedNode struct {
	MaxLayer    int     `json:"max_layer"`
	Removed     bool    `json:"removed"`
	Connections [][]int `json:"connections,omitempty"`
}

type serializedCore struct {
	NodeCount  int              `json:"node_count"`
	EntryPoint int              `json:"entry_point"`
	MaxLayer   int              `json:"max_layer"`
	Nodes      []serializedNode `json:"nodes"`
}

// SerializeGraph writes the graph's topology to w: a format header, the
// Parameters the graph was built with, and the node arena in id order.
// Items themselves are never serialized (§6.3); the caller must supply them
// again, in the same id order, to DeserializeGraph.
func (g *Graph[T, D]) SerializeGraph(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if err := writeFrame(w, opHeader, []byte(formatHeader)); err != nil {
		return err
	}

	paramPayload, err := json.Marshal(g.params)
	if err != nil {
		return fmt.Errorf("hnsw: encode parameters: %w", err)
	}
	if err := writeFrame(w, opParameters, paramPayload); err != nil {
		return err
	}

	sc := serializedCore{
		NodeCount:  len(g.core.nodes),
		EntryPoint: g.engine.entryPoint,
		MaxLayer:   g.engine.maxLayer,
		Nodes:      make([]serializedNode, len(g.core.nodes)),
	}
	for id, n := range g.core.nodes {
		if n == nil || n.removed {
			sc.Nodes[id] = serializedNode{Removed: true}
			continue
		}
		sc.Nodes[id] = serializedNode{MaxLayer: n.maxLayer, Connections: n.connections}
	}
	corePayload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("hnsw: encode core: %w", err)
	}
	return writeFrame(w, opNodes, corePayload)
}

// DeserializeGraph rebuilds a Graph from a stream written by SerializeGraph.
// items must hold exactly the same number of entries as the original arena,
// in the same id order; the value at a tombstoned id is never read. rng
// defaults to a fixed-seed source if nil, matching New. If the header frame
// cannot be read or is not an hnsw header and r is an io.Seeker, r is
// seeked back to where it stood on entry; errors in later sections leave r
// where reading stopped.
func DeserializeGraph[T any, D cmp.Ordered](items []T, distance DistanceFunc[T, D], rng *rand.Rand, r io.Reader) (*Graph[T, D], error) {
	seeker, _ := r.(io.Seeker)
	start := int64(-1)
	if seeker != nil {
		if pos, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			start = pos
		}
	}
	opcode, payload, err := readFrame(r)
	if err == nil && (opcode != opHeader || string(payload) != formatHeader) {
		err = fmt.Errorf("%w: not an hnsw graph stream", ErrInvalidData)
	}
	if err != nil {
		if start >= 0 {
			seeker.Seek(start, io.SeekStart)
		}
		return nil, err
	}

	opcode, payload, err = readFrame(r)
	if err != nil {
		return nil, err
	}
	if opcode != opParameters {
		return nil, fmt.Errorf("%w: expected parameters frame", ErrInvalidData)
	}
	var params Parameters
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, fmt.Errorf("%w: decode parameters: %v", ErrInvalidData, err)
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	opcode, payload, err = readFrame(r)
	if err != nil {
		return nil, err
	}
	if opcode != opNodes {
		return nil, fmt.Errorf("%w: expected core frame", ErrInvalidData)
	}
	var sc serializedCore
	if err := json.Unmarshal(payload, &sc); err != nil {
		return nil, fmt.Errorf("%w: decode core: %v", ErrInvalidData, err)
	}
	if len(items) != sc.NodeCount {
		return nil, fmt.Errorf("%w: expected %d items, got %d", ErrInvalidData, sc.NodeCount, len(items))
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	c := newCore(distance, params)
	c.items = append([]T(nil), items...)
	c.nodes = make([]*node, sc.NodeCount)
	for id, sn := range sc.Nodes {
		n := newNode(id, sn.MaxLayer)
		if sn.Removed {
			n.removed = true
			c.removed.Set(id)
			var zero T
			c.items[id] = zero
		} else {
			n.connections = sn.Connections
		}
		c.nodes[id] = n
	}
	for id, n := range c.nodes {
		if n.removed {
			continue
		}
		for l, conns := range n.connections {
			for _, nb := range conns {
				c.nodes[nb].inConnections[l] = append(c.nodes[nb].inConnections[l], id)
			}
		}
	}

	e := newEngine(c, rng)
	e.entryPoint = sc.EntryPoint
	e.maxLayer = sc.MaxLayer

	return &Graph[T, D]{
		core:     c,
		engine:   e,
		reporter: noopReporter{},
		params:   params,
	}, nil
}
