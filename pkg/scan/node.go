package scan

import "fmt"

// NodeID identifies a node inside a Tree. IDs are stable for the lifetime of
// the tree.
type NodeID int

// NoNode is returned where no node applies, such as the parent of the root.
const NoNode NodeID = -1

// Kind tags the variant a Node carries.
type Kind uint8

const (
	KindSystem Kind = iota
	KindChip
	KindChain
	KindSubchain
)

var kindNames = map[Kind]string{
	KindSystem:   "system",
	KindChip:     "chip",
	KindChain:    "chain",
	KindSubchain: "subchain",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Access holds the electrical attributes of a scan element.
type Access struct {
	Readable             bool
	Writeable            bool
	Unpredictable        bool
	UsesShadow           bool
	UsesDualPortedShadow bool
}

// AnyShadow reports whether the element is backed by a shadow register of
// either kind.
func (a Access) AnyShadow() bool {
	return a.UsesShadow || a.UsesDualPortedShadow
}

// Code renders the access attributes in the description-file notation.
func (a Access) Code() string {
	switch {
	case a.Unpredictable:
		return "U"
	case !a.Readable && !a.Writeable && !a.AnyShadow():
		return "-"
	}
	code := ""
	if a.Readable {
		code += "R"
	}
	if a.Writeable {
		code += "W"
	}
	if a.UsesShadow {
		code += "S"
	}
	if a.UsesDualPortedShadow {
		code += "D"
	}
	return code
}

// ClearBehavior describes what master clear does to an element's shadow
// register.
type ClearBehavior uint8

const (
	ClearsUnknown ClearBehavior = iota
	ClearsHigh
	ClearsLow
	ClearsNot
)

func (c ClearBehavior) String() string {
	switch c {
	case ClearsHigh:
		return "H"
	case ClearsLow:
		return "L"
	case ClearsNot:
		return "-"
	default:
		return "?"
	}
}

// DataNet names a simulation net that mirrors a subchain's shadow data.
type DataNet struct {
	Name      string
	Readable  bool
	Writeable bool
	Inverted  bool
}

// Desc describes a node to add to a Tree. Fields that do not apply to Kind
// are ignored.
type Desc struct {
	Kind    Kind
	Name    string
	Comment string

	// Length is the declared bit count of a leaf. Nodes with children take
	// the sum of their children instead.
	Length int

	Access Access
	Clears ClearBehavior

	IRLength int    // chip
	Opcode   string // chain

	Pin      string   // subchain
	DataNet  *DataNet // subchain
	DataNet2 *DataNet // subchain
}

// Node is one entry of the tree arena. Kind selects which payload fields are
// meaningful: IRLength for chips, Chain for chains, Pin and the data nets for
// subchains.
type Node struct {
	ID      NodeID
	Kind    Kind
	Name    string
	Comment string
	Access  Access
	Clears  ClearBehavior

	IRLength int
	Chain    *Chain
	Pin      string
	DataNet  *DataNet
	DataNet2 *DataNet

	length   int
	parent   NodeID
	children []NodeID
}

// Length returns the node's bit count.
func (n *Node) Length() int { return n.length }

// Parent returns the parent ID, or NoNode for the system root.
func (n *Node) Parent() NodeID { return n.parent }

// Children returns a copy of the child IDs in order.
func (n *Node) Children() []NodeID {
	return append([]NodeID(nil), n.children...)
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }
