package descriptor

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/pkg/errors"
)

// analyzeScriptTree parses the optional second argument of tr(...):
// a brace-nested tree whose leaves are x-only pubkeys or script
// sub-descriptors. Each leaf is analyzed in taproot scope, recorded
// under its canonical string and appended to the children.
func (n *Node) analyzeScriptTree() error {
	desc := n.value
	scriptDepth := 0
	offset := 0
	var tempName string
	n.treeNodes = make(map[string]*Node)

	addLeaf := func(tapscript string, nodeType NodeType) error {
		node := newNode(n.params)
		node.name = tempName
		node.nodeType = nodeType
		node.value = tapscript
		node.depth = 1
		node.parentKind = "tr"
		if tempName != "" {
			if err := node.parseChild(tapscript, 2); err != nil {
				return err
			}
		}
		if err := node.analyzeAll("tr"); err != nil {
			return err
		}
		n.treeNodes[tapscript] = node
		n.children = append(n.children, node)
		tempName = ""
		log.Tracef("tapscript leaf %s", tapscript)
		return nil
	}

	for idx := 0; idx < len(desc); idx++ {
		switch desc[idx] {
		case ' ', '{':
			if scriptDepth == 0 {
				offset++
			}
		case ',', '}':
			if scriptDepth == 0 {
				tapscript := desc[offset:idx]
				if len(tapscript) >= schnorrPubkeyLen*2 {
					offset = idx + 1
					if err := addLeaf(tapscript, NodeTypeKey); err != nil {
						return err
					}
				} else {
					offset++
				}
			}
		case '(':
			if scriptDepth == 0 {
				tempName = desc[offset:idx]
			}
			scriptDepth++
		case ')':
			scriptDepth--
			if scriptDepth == 0 {
				tapscript := desc[offset : idx+1]
				offset = idx + 1
				if err := addLeaf(tapscript, NodeTypeScript); err != nil {
					return err
				}
			}
		}
	}

	if len(n.treeNodes) == 0 {
		if len(n.value) >= schnorrPubkeyLen*2 {
			if err := addLeaf(n.value, NodeTypeKey); err != nil {
				return err
			}
		} else {
			return errors.New("taproot tree is empty")
		}
	}
	return nil
}

// getTapBranch materializes every leaf, substitutes its canonical
// output into the tree string (`tl(<script>)` for script leaves, the
// x-only hex for key leaves) and parses the substituted string into
// the final branch shape. Leaves materialize in tree order, so wildcard
// arguments are consumed left to right. Longer leaf strings substitute
// first so a leaf embedded in another's text cannot corrupt it.
func (n *Node) getTapBranch(args *[]string) (*TapBranch, error) {
	keyList := make([]string, 0, len(n.treeNodes))
	for key := range n.treeNodes {
		keyList = append(keyList, key)
	}
	sort.Slice(keyList, func(i, j int) bool {
		if len(keyList[i]) != len(keyList[j]) {
			return len(keyList[i]) > len(keyList[j])
		}
		return keyList[i] < keyList[j]
	})

	leafKeys := make(map[*Node]string, len(n.treeNodes))
	for key, node := range n.treeNodes {
		leafKeys[node] = key
	}
	targets := make(map[string]string, len(n.treeNodes))
	for _, node := range n.children {
		scriptStr, ok := leafKeys[node]
		if !ok {
			continue
		}
		var target string
		if node.nodeType == NodeTypeKey {
			ref, err := node.getKeyReferences(args)
			if err != nil {
				return nil, err
			}
			target = hex.EncodeToString(ref.schnorrKey)
		} else {
			ref, err := node.getReference(args, nil)
			if err != nil {
				return nil, err
			}
			script := ref.lockingScript
			if ref.HasRedeemScript() {
				script = ref.redeemScript
			}
			target = "tl(" + hex.EncodeToString(script) + ")"
		}
		targets[scriptStr] = target
	}

	desc := n.value
	for _, scriptStr := range keyList {
		target := targets[scriptStr]
		if scriptStr != target {
			desc = strings.ReplaceAll(desc, scriptStr, target)
		}
	}

	return newTapBranchFromString(desc)
}

// TapBranch holds a materialized taproot script tree: the root node
// for the commitment hash, the tapleaves for script-path spending and
// the canonical tree string.
type TapBranch struct {
	root   txscript.TapNode
	leaves []txscript.TapLeaf
	str    string
}

func newTapBranchFromString(tree string) (*TapBranch, error) {
	branch := &TapBranch{str: tree}
	if tree == "" || tree == "{}" {
		return branch, nil
	}
	root, leaves, err := parseTapTreeString(tree)
	if err != nil {
		return nil, err
	}
	branch.root = root
	branch.leaves = leaves
	return branch, nil
}

// IsEmpty reports whether the branch commits to anything at all.
func (b *TapBranch) IsEmpty() bool {
	return b.root == nil
}

// HasTapLeaf reports whether any script leaf is present (as opposed
// to bare key leaves, which commit as plain hashes).
func (b *TapBranch) HasTapLeaf() bool {
	return len(b.leaves) > 0
}

// RootHash returns the merkle root committed into the output key.
func (b *TapBranch) RootHash() chainhash.Hash {
	if b.root == nil {
		return chainhash.Hash{}
	}
	return b.root.TapHash()
}

// Leaves returns the script leaves of the tree.
func (b *TapBranch) Leaves() []txscript.TapLeaf {
	return b.leaves
}

// String returns the canonical tree string.
func (b *TapBranch) String() string {
	return b.str
}

// tapHashNode is a pruned tree node known only by its hash. Key
// leaves substitute to these, as do pre-hashed subtrees.
type tapHashNode chainhash.Hash

// TapHash returns the node hash.
func (t tapHashNode) TapHash() chainhash.Hash {
	return chainhash.Hash(t)
}

// Left returns nil, a hash node has no expanded children.
func (t tapHashNode) Left() txscript.TapNode {
	return nil
}

// Right returns nil, a hash node has no expanded children.
func (t tapHashNode) Right() txscript.TapNode {
	return nil
}

// parseTapTreeString parses the substituted tree grammar:
// `{left,right}` for branches, `tl(<hex>)` for script leaves, and a
// bare 32-byte hex for pruned hash nodes.
func parseTapTreeString(tree string) (txscript.TapNode, []txscript.TapLeaf, error) {
	if strings.HasPrefix(tree, "{") {
		if !strings.HasSuffix(tree, "}") {
			return nil, nil, errors.Errorf("malformed taproot tree: %s", tree)
		}
		inner := tree[1 : len(tree)-1]
		left, right, err := splitTapTreePair(inner)
		if err != nil {
			return nil, nil, err
		}
		leftNode, leftLeaves, err := parseTapTreeString(left)
		if err != nil {
			return nil, nil, err
		}
		rightNode, rightLeaves, err := parseTapTreeString(right)
		if err != nil {
			return nil, nil, err
		}
		branch := txscript.NewTapBranch(leftNode, rightNode)
		return branch, append(leftLeaves, rightLeaves...), nil
	}

	if strings.HasPrefix(tree, "tl(") && strings.HasSuffix(tree, ")") {
		script, err := hex.DecodeString(tree[3 : len(tree)-1])
		if err != nil {
			return nil, nil, errors.Wrap(err, "malformed tapleaf script")
		}
		leaf := txscript.NewBaseTapLeaf(script)
		return leaf, []txscript.TapLeaf{leaf}, nil
	}

	hash, err := hex.DecodeString(tree)
	if err != nil || len(hash) != chainhash.HashSize {
		return nil, nil, errors.Errorf("malformed taproot tree node: %s", tree)
	}
	var node tapHashNode
	copy(node[:], hash)
	return node, nil, nil
}

// splitTapTreePair splits `left,right` at the single top-level comma.
func splitTapTreePair(inner string) (string, string, error) {
	depth := 0
	for idx := 0; idx < len(inner); idx++ {
		switch inner[idx] {
		case '{', '(':
			depth++
		case '}', ')':
			depth--
		case ',':
			if depth == 0 {
				return inner[:idx], inner[idx+1:], nil
			}
		}
	}
	return "", "", errors.Errorf("malformed taproot tree branch: %s", inner)
}
