package descriptor

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/pkg/errors"
)

// scriptNodeData describes the structural rules of one script form:
// whether it may only appear at the top level, whether it takes
// children and whether it is a multisig form.
type scriptNodeData struct {
	name       string
	scriptType ScriptType
	topOnly    bool
	hasChild   bool
	multisig   bool
}

var descriptorScriptTable = []scriptNodeData{
	{"sh", ScriptSh, true, true, false},
	{"combo", ScriptCombo, true, true, false},
	{"wsh", ScriptWsh, false, true, false},
	{"pk", ScriptPk, false, true, false},
	{"pkh", ScriptPkh, false, true, false},
	{"wpkh", ScriptWpkh, false, true, false},
	{"multi", ScriptMulti, false, true, true},
	{"sortedmulti", ScriptSortedMulti, false, true, true},
	{"addr", ScriptAddr, true, false, false},
	{"raw", ScriptRaw, true, false, false},
	{"tr", ScriptTaproot, true, true, false},
}

// analyzeAll validates the subtree top-down, propagating the parent
// form name. Key nodes are decoded here; script nodes are matched
// against the form table, with unknown names falling through to the
// miniscript compiler when the context allows it.
func (n *Node) analyzeAll(parentName string) error {
	if n.nodeType == NodeTypeNumber {
		return nil
	}
	if n.nodeType == NodeTypeKey {
		return n.analyzeKey()
	}
	if n.name == "" {
		return errors.New("failed to analyze descriptor")
	}

	var data *scriptNodeData
	for i := range descriptorScriptTable {
		if n.name == descriptorScriptTable[i].name {
			data = &descriptorScriptTable[i]
			break
		}
	}
	if data == nil {
		return n.analyzeMiniscript(parentName)
	}

	if data.topOnly && n.depth != 0 {
		return errors.Errorf("%s can only exist at the top level", n.name)
	}
	if data.hasChild {
		if len(n.children) == 0 {
			return errors.Errorf("failed to parse %s, child node empty", n.name)
		}
	} else if len(n.children) != 0 {
		return errors.Errorf("failed to parse %s, invalid child node num", n.name)
	}

	switch {
	case data.multisig:
		if err := n.analyzeMultisig(parentName); err != nil {
			return err
		}
	case n.name == "addr":
		addr, err := btcutil.DecodeAddress(n.value, n.params)
		if err != nil {
			return errors.Wrap(err, "invalid address")
		}
		log.Debugf("address=%s", addr.EncodeAddress())
	case n.name == "raw":
		if _, err := hex.DecodeString(n.value); err != nil {
			return errors.Wrap(err, "invalid raw script hex")
		}
	case n.name == "tr":
		if err := n.analyzeTaproot(); err != nil {
			return err
		}
	default:
		if err := n.analyzeWrappedChild(parentName); err != nil {
			return err
		}
	}

	n.scriptType = data.scriptType
	return nil
}

// analyzeMiniscript hands an unknown script name to the external
// miniscript compiler when the parent context permits miniscript.
// The probe compiles with child index 0; materialization substitutes
// the caller's actual index.
func (n *Node) analyzeMiniscript(parentName string) error {
	if parentName != "wsh" && parentName != "sh" && parentName != "tr" {
		return errors.Errorf("unknown script name: %s", n.name)
	}

	expr := n.name + "(" + n.value + ")"
	flags := MiniscriptWitnessScript
	if parentName == "tr" {
		flags = MiniscriptTapscript
	}
	if miniscriptParser == nil {
		return errors.New("failed to parse miniscript")
	}
	script, err := miniscriptParser.ParseMiniscript(expr, 0, flags)
	if err != nil {
		return errors.Wrap(err, "failed to parse miniscript")
	}
	maxSize := maxScriptSize
	if parentName == "sh" {
		maxSize = maxRedeemScriptSize
	}
	if len(script) > maxSize {
		return errors.New("miniscript script size is over maximum")
	}

	n.scriptType = ScriptMiniscript
	n.value = expr
	n.name = "miniscript"
	n.number = int64(len(script))
	n.needArgNum = 0
	if strings.Contains(expr, "*") {
		n.needArgNum = 1
	}
	n.children = nil
	return nil
}

// analyzeMultisig validates multi/sortedmulti: the threshold, key
// count ceilings, per-key rules, and the assembled redeem script size
// when nested in sh.
func (n *Node) analyzeMultisig(parentName string) error {
	if n.parentKind == "tr" {
		return errors.New("multisig is unsupported under taproot")
	}
	if len(n.children) < 2 {
		return errors.New("multisig requires a threshold and at least one key")
	}
	reqNum := n.children[0].number
	pubkeyNum := len(n.children) - 1
	if reqNum <= 0 || int64(pubkeyNum) < reqNum {
		return errors.New("invalid multisig require num")
	}
	maxKeyNum := maxMultisigKeyNum
	if parentName == "wsh" {
		maxKeyNum = maxMultisigWitnessKeyNum
	}
	if pubkeyNum > maxKeyNum {
		return errors.Errorf("multisig pubkey num is over maximum (%d)", maxKeyNum)
	}

	for _, child := range n.children {
		if err := child.analyzeAll(n.name); err != nil {
			return err
		}
	}

	if n.name == "multi" {
		n.scriptType = ScriptMulti
	} else {
		n.scriptType = ScriptSortedMulti
	}

	switch parentName {
	case "sh":
		probe := probeArguments(n.GetNeedArgumentNum())
		ref, err := n.getReference(&probe, n)
		if err != nil {
			return err
		}
		if len(ref.lockingScript)+p2shWrapOverhead > maxRedeemScriptSize {
			return errors.Errorf("multisig redeem script size is over maximum, size=%d", len(ref.lockingScript))
		}
	case "wsh":
		for _, child := range n.children {
			if child.nodeType == NodeTypeNumber {
				continue
			}
			if child.isUncompressed {
				return errors.New("uncompressed pubkey is not supported under witness")
			}
		}
	}
	return nil
}

// analyzeTaproot validates tr(KEY) and tr(KEY,TREE): the internal key
// becomes a key node in x-only mode, and the optional tree child is
// parsed by the script tree grammar and probed once.
func (n *Node) analyzeTaproot() error {
	if len(n.children) != 1 && len(n.children) != 2 {
		return errors.Errorf("invalid taproot node num, size=%d", len(n.children))
	}
	n.children[0].nodeType = NodeTypeKey
	n.children[0].parentKind = "tr"
	if err := n.children[0].analyzeAll(n.name); err != nil {
		return err
	}

	probe := probeArguments(n.children[0].GetNeedArgumentNum())
	if _, err := n.children[0].getKeyReferences(&probe); err != nil {
		return err
	}

	if len(n.children) == 2 {
		n.children[1].parentKind = "tr"
		if err := n.children[1].analyzeScriptTree(); err != nil {
			return err
		}
		treeProbe := probeArguments(n.children[1].GetNeedArgumentNum())
		if _, err := n.children[1].getTapBranch(&treeProbe); err != nil {
			return err
		}
	}

	if n.existUncompressedKey() {
		return errors.New("uncompressed pubkey is not supported under taproot")
	}
	return nil
}

// analyzeWrappedChild covers the single-child forms: sh and wsh wrap
// a script, everything else wraps one key.
func (n *Node) analyzeWrappedChild(parentName string) error {
	if len(n.children) != 1 {
		return errors.Errorf("invalid child node num, size=%d", len(n.children))
	}
	child := n.children[0]

	isWitness := n.name == "wsh" || n.name == "wpkh"
	isScriptHash := n.name == "wsh" || n.name == "sh"
	switch {
	case isWitness && parentName != "" && parentName != "sh":
		return errors.Errorf("%s is valid at the top level or inside sh only", n.name)
	case isScriptHash && child.nodeType != NodeTypeScript:
		return errors.Errorf("%s child must be a script", n.name)
	case !isScriptHash && child.nodeType != NodeTypeKey:
		return errors.Errorf("%s child must be a key", n.name)
	case parentName == "tr" && n.name == "pkh":
		return errors.New("pkh is unsupported under taproot")
	}

	child.parentKind = n.parentKind
	if err := child.analyzeAll(n.name); err != nil {
		return err
	}

	if isWitness && n.existUncompressedKey() {
		return errors.New("uncompressed pubkey is not supported under witness")
	}
	return nil
}

// probeArguments builds the all-"0" argument list used by the
// analysis-time materialization probes.
func probeArguments(num uint32) []string {
	args := make([]string, 0, num)
	for i := uint32(0); i < num; i++ {
		args = append(args, "0")
	}
	return args
}
