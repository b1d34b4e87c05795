package scan

import (
	"fmt"
	"strings"
)

// Path returns the dotted path of id, starting at the chip. The system root
// has the empty path.
func (t *Tree) Path(id NodeID) string {
	var parts []string
	for n := t.Node(id); n != nil && n.Kind != KindSystem; n = t.Node(n.parent) {
		parts = append(parts, n.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Find resolves a dotted, case-sensitive path such as "chip.chain.sub".
func (t *Tree) Find(path string) (NodeID, error) {
	if path == "" {
		return NoNode, fmt.Errorf("%w: empty path", ErrNotFound)
	}
	id := t.Root()
	for _, seg := range strings.Split(path, ".") {
		next := NoNode
		for _, c := range t.nodes[id].children {
			if t.nodes[c].Name == seg {
				next = c
				break
			}
		}
		if next == NoNode {
			where := t.Path(id)
			if where == "" {
				where = "system " + t.nodes[id].Name
			}
			return NoNode, fmt.Errorf("%w: no %q below %s while resolving %q", ErrNotFound, seg, where, path)
		}
		id = next
	}
	return id, nil
}

// FindKind resolves path and requires the node to be of kind k.
func (t *Tree) FindKind(path string, k Kind) (NodeID, error) {
	id, err := t.Find(path)
	if err != nil {
		return NoNode, err
	}
	if got := t.nodes[id].Kind; got != k {
		return NoNode, fmt.Errorf("%w: %q is a %s, want %s", ErrWrongKind, path, got, k)
	}
	return id, nil
}

// FindChip resolves a chip name.
func (t *Tree) FindChip(path string) (NodeID, error) {
	return t.FindKind(path, KindChip)
}

// FindChain resolves a "chip.chain" path.
func (t *Tree) FindChain(path string) (NodeID, error) {
	return t.FindKind(path, KindChain)
}

// FindScannable resolves a path to a chain or subchain.
func (t *Tree) FindScannable(path string) (NodeID, error) {
	id, err := t.Find(path)
	if err != nil {
		return NoNode, err
	}
	if _, err := t.nodeOfKind(id, KindChain, KindSubchain); err != nil {
		return NoNode, err
	}
	return id, nil
}

// ParentChain walks up from id to the nearest chain, id included.
func (t *Tree) ParentChain(id NodeID) (NodeID, error) {
	return t.ancestor(id, KindChain)
}

// ParentChip walks up from id to the nearest chip, id included.
func (t *Tree) ParentChip(id NodeID) (NodeID, error) {
	return t.ancestor(id, KindChip)
}

func (t *Tree) ancestor(id NodeID, k Kind) (NodeID, error) {
	if t.Node(id) == nil {
		return NoNode, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	for n := t.Node(id); n != nil; n = t.Node(n.parent) {
		if n.Kind == k {
			return n.ID, nil
		}
	}
	return NoNode, fmt.Errorf("%w: %q has no enclosing %s", ErrWrongKind, t.Path(id), k)
}

// Chips returns the chips in daisy-chain order.
func (t *Tree) Chips() []NodeID {
	return t.nodes[t.Root()].Children()
}

// ChipPosition returns the zero-based daisy-chain position of chip.
func (t *Tree) ChipPosition(chip NodeID) (int, error) {
	if _, err := t.nodeOfKind(chip, KindChip); err != nil {
		return 0, err
	}
	for i, c := range t.nodes[t.Root()].children {
		if c == chip {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: chip %d is not attached", ErrStructure, chip)
}

// IRLength returns the instruction register length of chip.
func (t *Tree) IRLength(chip NodeID) (int, error) {
	n, err := t.nodeOfKind(chip, KindChip)
	if err != nil {
		return 0, err
	}
	return n.IRLength, nil
}

// TotalIRLength sums the IR lengths of every chip on the daisy chain.
func (t *Tree) TotalIRLength() int {
	total := 0
	for _, c := range t.nodes[t.Root()].children {
		total += t.nodes[c].IRLength
	}
	return total
}

// ChainPaths lists the paths of the chains of chip.
func (t *Tree) ChainPaths(chip NodeID) ([]string, error) {
	n, err := t.nodeOfKind(chip, KindChip)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, t.Path(c))
	}
	return out, nil
}

// AllChainPaths lists the paths of every chain of every chip.
func (t *Tree) AllChainPaths() []string {
	var out []string
	for _, chip := range t.Chips() {
		paths, _ := t.ChainPaths(chip)
		out = append(out, paths...)
	}
	return out
}

// Descendants lists the paths of every node below path, depth first.
func (t *Tree) Descendants(path string) ([]string, error) {
	id, err := t.Find(path)
	if err != nil {
		return nil, err
	}
	var out []string
	var walk func(NodeID)
	walk = func(id NodeID) {
		for _, c := range t.nodes[id].children {
			out = append(out, t.Path(c))
			walk(c)
		}
	}
	walk(id)
	return out, nil
}
