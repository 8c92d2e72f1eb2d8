package descriptor

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/coinvault/btcdescriptor/bip32util"
	"github.com/pkg/errors"
)

// NodeType discriminates the three kinds of AST node a descriptor
// expression parses into.
type NodeType int

const (
	// NodeTypeNull is the zero value of an uninitialized node.
	NodeTypeNull NodeType = iota

	// NodeTypeScript is a script expression, name(args).
	NodeTypeScript

	// NodeTypeKey is a key literal.
	NodeTypeKey

	// NodeTypeNumber is a multisig threshold.
	NodeTypeNumber
)

// ScriptType enumerates the script forms a descriptor may contain.
type ScriptType int

const (
	// ScriptNull is the zero value of an uninitialized script node.
	ScriptNull ScriptType = iota

	// ScriptSh is sh(...)
	ScriptSh

	// ScriptWsh is wsh(...)
	ScriptWsh

	// ScriptPk is pk(KEY)
	ScriptPk

	// ScriptPkh is pkh(KEY)
	ScriptPkh

	// ScriptWpkh is wpkh(KEY)
	ScriptWpkh

	// ScriptCombo is combo(KEY)
	ScriptCombo

	// ScriptMulti is multi(k,KEY,...)
	ScriptMulti

	// ScriptSortedMulti is sortedmulti(k,KEY,...)
	ScriptSortedMulti

	// ScriptAddr is addr(ADDRESS)
	ScriptAddr

	// ScriptRaw is raw(HEX)
	ScriptRaw

	// ScriptTaproot is tr(KEY) or tr(KEY,TREE)
	ScriptTaproot

	// ScriptMiniscript is an expression delegated to the external
	// miniscript compiler.
	ScriptMiniscript
)

// String returns the descriptor name of the script form.
func (t ScriptType) String() string {
	switch t {
	case ScriptSh:
		return "sh"
	case ScriptWsh:
		return "wsh"
	case ScriptPk:
		return "pk"
	case ScriptPkh:
		return "pkh"
	case ScriptWpkh:
		return "wpkh"
	case ScriptCombo:
		return "combo"
	case ScriptMulti:
		return "multi"
	case ScriptSortedMulti:
		return "sortedmulti"
	case ScriptAddr:
		return "addr"
	case ScriptRaw:
		return "raw"
	case ScriptTaproot:
		return "tr"
	case ScriptMiniscript:
		return "miniscript"
	default:
		return "null"
	}
}

// KeyType enumerates the key encodings a key literal may use.
type KeyType int

const (
	// KeyNull is the zero value for non-key nodes.
	KeyNull KeyType = iota

	// KeyPublic is a raw public key, or the public key behind a
	// WIF private key.
	KeyPublic

	// KeyBip32 is an extended public key with optional path.
	KeyBip32

	// KeyBip32Priv is an extended private key with optional path.
	KeyBip32Priv

	// KeySchnorr is a 32-byte x-only key (taproot context only).
	KeySchnorr
)

// Node is one node of a parsed descriptor AST. Nodes are produced by
// Parse, analyzed immediately and immutable afterwards.
type Node struct {
	name       string
	value      string
	keyInfo    string
	originInfo string
	baseExtKey string
	baseKey    *bip32util.Key

	// derivedExtKey carries the extkey with the fixed path prefix
	// already applied, so wildcard materialization continues from
	// it instead of re-deriving the prefix.
	derivedExtKey  *bip32util.Key
	keyPath        *bip32util.Path
	wif            *btcutil.WIF
	isUncompressed bool

	number     int64
	children   []*Node
	treeNodes  map[string]*Node
	checksum   string
	depth      uint32
	needArgNum uint32

	nodeType   NodeType
	scriptType ScriptType
	keyType    KeyType
	parentKind string
	params     *chaincfg.Params
}

func newNode(params *chaincfg.Params) *Node {
	return &Node{params: params}
}

// parseChild scans one script expression in a single pass, tracking
// parenthesis depth. Children are split on commas at this node's own
// nesting level; anything deeper is left for the recursive call (or,
// for unknown names, the miniscript fallback).
func (n *Node) parseChild(descriptor string, depth uint32) error {
	isTerminated := false
	offset := 0
	depthWork := int(depth)
	existChildNode := false
	n.depth = depth
	var body string
	log.Tracef("parseChild %s", descriptor)

	for idx := 0; idx < len(descriptor); idx++ {
		switch descriptor[idx] {
		case '#':
			if !isTerminated {
				return errors.New("illegal checksum data")
			}
			n.checksum = descriptor[idx+1:]
			body = descriptor[:idx]
			if strings.Contains(n.checksum, "#") {
				return errors.New("multiple '#' symbols")
			}
		case ',':
			if existChildNode {
				// belongs to a nested child
			} else if n.name == "multi" || n.name == "sortedmulti" {
				child := newNode(n.params)
				child.value = descriptor[offset:idx]
				if len(n.children) == 0 {
					child.nodeType = NodeTypeNumber
					num, err := strconv.ParseInt(child.value, 10, 32)
					if err == nil {
						child.number = num
					}
				} else {
					child.nodeType = NodeTypeKey
				}
				child.depth = depth + 1
				child.parentKind = n.parentKind
				n.children = append(n.children, child)
				offset = idx + 1
			} else if n.name == "tr" {
				if len(n.children) == 0 {
					child := newNode(n.params)
					child.value = descriptor[offset:idx]
					child.nodeType = NodeTypeKey
					child.depth = depth + 1
					child.parentKind = n.parentKind
					n.children = append(n.children, child)
					offset = idx + 1
				}
			}
			// other commas pass through for miniscript analysis
		case ' ':
			offset++
		case '(':
			if depthWork == int(depth) {
				n.name = descriptor[offset:idx]
				offset = idx + 1
			} else {
				existChildNode = true
			}
			depthWork++
		case ')':
			depthWork--
			if depthWork == int(depth) {
				n.value = descriptor[offset:idx]
				isTerminated = true
				offset = idx + 1
				if n.name == "addr" || n.name == "raw" {
					// literal body, no child parsing
				} else {
					child := newNode(n.params)
					if n.name == "tr" {
						child.nodeType = NodeTypeScript
						child.value = n.value
						child.depth = depth + 1
						existChildNode = false
					} else if existChildNode {
						child.nodeType = NodeTypeScript
						if err := child.parseChild(n.value, depth+1); err != nil {
							return err
						}
						existChildNode = false
					} else {
						child.nodeType = NodeTypeKey
						child.value = n.value
						child.depth = depth + 1
					}
					child.parentKind = n.parentKind
					n.children = append(n.children, child)
				}
			}
		}
	}

	if n.name == "" || n.name == "addr" || n.name == "raw" {
		// no children required
	} else if len(n.children) == 0 {
		return errors.New("failed to parse descriptor, child node empty")
	}

	if body != "" {
		return n.checkChecksum(body)
	}
	return nil
}

// checkChecksum verifies the attached checksum against the body.
func (n *Node) checkChecksum(body string) error {
	if len(n.checksum) != 8 {
		return errors.Errorf("expected 8 character checksum, not %d characters", len(n.checksum))
	}
	checksum := Checksum(body)
	if checksum == "" {
		return errors.New("invalid characters in payload")
	}
	if n.checksum != checksum {
		return errors.Errorf("provided checksum '%s' does not match computed checksum '%s'", n.checksum, checksum)
	}
	return nil
}

// GetNeedArgumentNum returns the argument count the subtree consumes
// at materialization, one per wildcard (plus wildcard-bearing
// miniscript expressions).
func (n *Node) GetNeedArgumentNum() uint32 {
	result := n.needArgNum
	for _, child := range n.children {
		result += child.GetNeedArgumentNum()
	}
	return result
}

// NodeType returns the node kind.
func (n *Node) NodeType() NodeType {
	return n.nodeType
}

// ScriptType returns the script form of a script node.
func (n *Node) ScriptType() ScriptType {
	return n.scriptType
}

// KeyType returns the key encoding of a key node.
func (n *Node) KeyType() KeyType {
	return n.keyType
}

// Checksum returns the checksum attached to the parsed text, if any.
// Only the root node carries one.
func (n *Node) Checksum() string {
	return n.checksum
}

// toString regenerates the canonical descriptor text of the subtree.
// Key and literal nodes reproduce their original text verbatim, so a
// canonical input round-trips unchanged.
func (n *Node) toString(appendChecksum bool) string {
	var result string
	switch {
	case n.name == "" || n.name == "miniscript":
		result = n.value
	case len(n.children) == 0:
		result = n.name + "(" + n.value + ")"
	default:
		parts := make([]string, 0, len(n.children))
		for _, child := range n.children {
			parts = append(parts, child.toString(false))
		}
		result = n.name + "(" + strings.Join(parts, ",") + ")"
	}

	if n.depth == 0 && appendChecksum {
		if checksum := Checksum(result); checksum != "" {
			result += "#" + checksum
		}
	}
	return result
}

// existUncompressedKey reports whether any key in the subtree was
// written uncompressed. Witness and taproot scopes refuse those.
func (n *Node) existUncompressedKey() bool {
	if n.isUncompressed {
		return true
	}
	for _, child := range n.children {
		if child.existUncompressedKey() {
			return true
		}
	}
	return false
}
