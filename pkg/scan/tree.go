// Package scan models the scan-chain hierarchy of a system under test:
// system → chip → chain → subchain.
//
// Nodes live in an arena owned by Tree and are addressed by NodeID. Children
// are owned through the arena; the parent link is a lookup aid only. Every
// chain node owns five bit vectors sized to the chain's length, which is the
// sum of its subchains' lengths. Changing the structure below a chain
// reallocates those vectors and discards their contents.
package scan

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/bitvec"
)

var (
	// ErrNotFound reports a path or ID that does not name a node.
	ErrNotFound = errors.New("scan: node not found")
	// ErrWrongKind reports a node whose kind does not suit the operation.
	ErrWrongKind = errors.New("scan: wrong node kind")
	// ErrStructure reports an edit that would break the tree's shape.
	ErrStructure = errors.New("scan: invalid structure")
)

// Tree is the arena holding every node. The zero value is not usable; call
// New.
type Tree struct {
	nodes []*Node
}

// New returns a tree containing only the system root.
func New(name string) *Tree {
	root := &Node{ID: 0, Kind: KindSystem, Name: name, parent: NoNode}
	return &Tree{nodes: []*Node{root}}
}

// Root returns the system node's ID.
func (t *Tree) Root() NodeID { return 0 }

// Node returns the node for id, or nil if id is unknown.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

func (t *Tree) node(id NodeID) (*Node, error) {
	n := t.Node(id)
	if n == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return n, nil
}

func (t *Tree) nodeOfKind(id NodeID, kinds ...Kind) (*Node, error) {
	n, err := t.node(id)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if n.Kind == k {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, t.Path(id), n.Kind)
}

// allowedParents lists the kinds each node kind may hang below.
var allowedParents = map[Kind][]Kind{
	KindChip:     {KindSystem},
	KindChain:    {KindChip},
	KindSubchain: {KindChain, KindSubchain},
}

// Add appends a node described by d to parent and returns its ID.
func (t *Tree) Add(parent NodeID, d Desc) (NodeID, error) {
	p, err := t.nodeOfKind(parent, allowedParents[d.Kind]...)
	if err != nil {
		return NoNode, fmt.Errorf("scan: add %s %q: %w", d.Kind, d.Name, err)
	}
	if d.Name == "" || strings.Contains(d.Name, ".") {
		return NoNode, fmt.Errorf("%w: bad %s name %q", ErrStructure, d.Kind, d.Name)
	}
	if d.Length < 0 || d.IRLength < 0 {
		return NoNode, fmt.Errorf("%w: negative length for %q", ErrStructure, d.Name)
	}
	for _, c := range p.children {
		if t.nodes[c].Name == d.Name {
			return NoNode, fmt.Errorf("%w: duplicate name %q below %q", ErrStructure, d.Name, t.Path(parent))
		}
	}

	id := NodeID(len(t.nodes))
	n := &Node{
		ID:      id,
		Kind:    d.Kind,
		Name:    d.Name,
		Comment: d.Comment,
		Access:  d.Access,
		Clears:  d.Clears,
		parent:  parent,
	}
	switch d.Kind {
	case KindChip:
		n.IRLength = d.IRLength
	case KindChain:
		n.length = d.Length
		n.Chain = &Chain{Opcode: d.Opcode}
	case KindSubchain:
		n.length = d.Length
		n.Pin = d.Pin
		n.DataNet = d.DataNet
		n.DataNet2 = d.DataNet2
	}
	t.nodes = append(t.nodes, n)
	p.children = append(p.children, id)

	if n.Kind == KindChain {
		n.Chain.allocate(n.length, t.Path(id))
	}
	t.lengthChanged(parent)
	return id, nil
}

// AddChip adds a chip below the system root.
func (t *Tree) AddChip(name string, irLength int, comment string) (NodeID, error) {
	return t.Add(t.Root(), Desc{Kind: KindChip, Name: name, IRLength: irLength, Comment: comment})
}

// AddChain adds a chain of the given declared length below chip.
func (t *Tree) AddChain(chip NodeID, name, opcode string, length int, access Access, clears ClearBehavior) (NodeID, error) {
	return t.Add(chip, Desc{
		Kind:   KindChain,
		Name:   name,
		Opcode: opcode,
		Length: length,
		Access: access,
		Clears: clears,
	})
}

// AddSubchain adds a subchain leaf of the given length below a chain or
// subchain.
func (t *Tree) AddSubchain(parent NodeID, name string, length int, access Access, clears ClearBehavior) (NodeID, error) {
	return t.Add(parent, Desc{
		Kind:   KindSubchain,
		Name:   name,
		Length: length,
		Access: access,
		Clears: clears,
	})
}

// SetLength changes the declared length of a leaf chain or subchain and
// propagates the change to the enclosing chain.
func (t *Tree) SetLength(id NodeID, length int) error {
	n, err := t.nodeOfKind(id, KindChain, KindSubchain)
	if err != nil {
		return err
	}
	if !n.IsLeaf() {
		return fmt.Errorf("%w: %s has children, its length is derived", ErrStructure, t.Path(id))
	}
	if length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrStructure, length)
	}
	n.length = length
	t.lengthChanged(id)
	return nil
}

// lengthChanged recomputes lengths from id upwards. It stops after
// reallocating the enclosing chain's vectors since chain lengths do not
// contribute to chips.
func (t *Tree) lengthChanged(id NodeID) {
	for id != NoNode {
		n := t.nodes[id]
		if n.Kind == KindChip || n.Kind == KindSystem {
			return
		}
		if !n.IsLeaf() {
			sum := 0
			for _, c := range n.children {
				sum += t.nodes[c].length
			}
			n.length = sum
		}
		if n.Kind == KindChain {
			n.Chain.allocate(n.length, t.Path(id))
			return
		}
		id = n.parent
	}
}

// BitIndex returns the offset of a chain or subchain within its chain. A
// chain starts at 0; a subchain starts where its parent does plus the
// lengths of its preceding siblings.
func (t *Tree) BitIndex(id NodeID) (int, error) {
	n, err := t.nodeOfKind(id, KindChain, KindSubchain)
	if err != nil {
		return 0, err
	}
	if n.Kind == KindChain {
		return 0, nil
	}
	index, err := t.BitIndex(n.parent)
	if err != nil {
		return 0, err
	}
	for _, sib := range t.nodes[n.parent].children {
		if sib == id {
			break
		}
		index += t.nodes[sib].length
	}
	return index, nil
}

// FindElementAtIndex returns the leaf of chain that owns bit index.
func (t *Tree) FindElementAtIndex(chain NodeID, index int) (NodeID, error) {
	n, err := t.nodeOfKind(chain, KindChain)
	if err != nil {
		return NoNode, err
	}
	if index < 0 || index >= n.length {
		return NoNode, pkgerrors.Wrapf(bitvec.ErrIndex, "scan: bit %d outside chain %s of length %d", index, t.Path(chain), n.length)
	}
	for !n.IsLeaf() {
		next := NoNode
		for _, c := range n.children {
			child := t.nodes[c]
			if index < child.length {
				next = c
				break
			}
			index -= child.length
		}
		if next == NoNode {
			return NoNode, fmt.Errorf("%w: children of %s do not cover bit %d", ErrStructure, t.Path(n.ID), index)
		}
		n = t.nodes[next]
	}
	return n.ID, nil
}

// Elements maps every bit of chain to the leaf owning it, in bit order.
func (t *Tree) Elements(chain NodeID) ([]*Node, error) {
	n, err := t.nodeOfKind(chain, KindChain)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, 0, n.length)
	var walk func(*Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			for i := 0; i < n.length; i++ {
				out = append(out, n)
			}
			return
		}
		for _, c := range n.children {
			walk(t.nodes[c])
		}
	}
	walk(n)
	return out, nil
}

// ResetInBits loads chain's InBits with the master-clear state of each
// element when useMasterClearState is set (true only for ClearsHigh), and
// with all zeros otherwise.
func (t *Tree) ResetInBits(chain NodeID, useMasterClearState bool) error {
	elems, err := t.Elements(chain)
	if err != nil {
		return err
	}
	in := t.nodes[chain].Chain.InBits
	for i, e := range elems {
		in.SetTo(i, useMasterClearState && e.Clears == ClearsHigh)
	}
	return nil
}
