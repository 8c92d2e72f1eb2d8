// Package descriptor implements a Bitcoin output descriptor engine:
// it parses descriptor expressions, validates their structure,
// derives concrete keys and emits locking scripts and addresses for
// any network.
package descriptor

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
)

// Descriptor is a parsed, validated output descriptor. It is
// immutable after Parse; materialization never mutates it, so one
// Descriptor is freely shareable across goroutines.
type Descriptor struct {
	root *Node
}

// Parse runs the full pipeline over a descriptor string: expression
// parse, structural analysis and a probe materialization with zeroed
// arguments. Any validation failure surfaces as an error. A nil
// params defaults to mainnet.
func Parse(outputDescriptor string, params *chaincfg.Params) (*Descriptor, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	root := newNode(params)
	root.nodeType = NodeTypeScript
	if err := root.parseChild(outputDescriptor, 0); err != nil {
		return nil, err
	}
	if err := root.analyzeAll(""); err != nil {
		return nil, err
	}

	// script generate test
	probe := probeArguments(root.GetNeedArgumentNum())
	if _, err := root.getReferences(&probe, nil); err != nil {
		return nil, err
	}
	return &Descriptor{root: root}, nil
}

// ParseOnNetwork is a convenience over Parse taking one of the
// network shortcodes.
func ParseOnNetwork(outputDescriptor string, network string) (*Descriptor, error) {
	net, err := GetNetworkParams(network)
	if err != nil {
		return nil, err
	}
	return Parse(outputDescriptor, net.Params)
}

// CreateDescriptor assembles a descriptor string from script forms
// and key literals, wrapping innermost outward, appends the computed
// checksum and re-parses the result.
func CreateDescriptor(types []ScriptType, keyInfoList []*KeyInfo, requireNum uint32, params *chaincfg.Params) (*Descriptor, error) {
	if len(types) == 0 {
		return nil, errors.New("failed to create descriptor, type list is empty")
	}

	var output string
	for i := len(types) - 1; i >= 0; i-- {
		scriptType := types[i]

		var keyText string
		if output == "" && len(keyInfoList) > 0 {
			parts := make([]string, 0, len(keyInfoList))
			for _, keyInfo := range keyInfoList {
				parts = append(parts, keyInfo.ToString())
			}
			keyText = strings.Join(parts, ",")
		}

		var data *scriptNodeData
		for idx := range descriptorScriptTable {
			if scriptType == descriptorScriptTable[idx].scriptType {
				data = &descriptorScriptTable[idx]
				break
			}
		}

		switch scriptType {
		case ScriptPk, ScriptPkh, ScriptWpkh, ScriptCombo, ScriptMulti, ScriptSortedMulti:
			if output != "" {
				return nil, errors.New("failed to create descriptor, key hash type is bottom only")
			}
			if keyText == "" {
				return nil, errors.New("failed to create descriptor, key list is empty")
			}
			if data != nil && !data.multisig && len(keyInfoList) > 1 {
				return nil, errors.New("failed to create descriptor, multiple key is multisig only")
			}
		case ScriptSh, ScriptWsh:
			if output == "" {
				return nil, errors.New("failed to create descriptor, script hash wraps a script only")
			}
		default:
			return nil, errors.Errorf("failed to create descriptor, %s is unsupported", scriptType)
		}
		if data == nil {
			return nil, errors.Errorf("failed to create descriptor, %s is unsupported", scriptType)
		}

		switch {
		case keyText == "":
			output = data.name + "(" + output + ")"
		case data.multisig:
			output = data.name + "(" + strconv.FormatUint(uint64(requireNum), 10) + "," + keyText + ")"
		default:
			output = data.name + "(" + keyText + ")"
		}
	}

	if checksum := Checksum(output); checksum != "" {
		output += "#" + checksum
	}

	// check descriptor script format
	return Parse(output, params)
}

// CreateSingleDescriptor assembles a descriptor with one script form
// and one key.
func CreateSingleDescriptor(scriptType ScriptType, keyInfo *KeyInfo, params *chaincfg.Params) (*Descriptor, error) {
	return CreateDescriptor([]ScriptType{scriptType}, []*KeyInfo{keyInfo}, 1, params)
}

// IsComboScript reports whether the root form is combo.
func (d *Descriptor) IsComboScript() bool {
	return d.root.scriptType == ScriptCombo
}

// GetNeedArgumentNum returns how many wildcard arguments
// materialization requires.
func (d *Descriptor) GetNeedArgumentNum() uint32 {
	return d.root.GetNeedArgumentNum()
}

// Node exposes the root of the parsed tree.
func (d *Descriptor) Node() *Node {
	return d.root
}

// GetLockingScript materializes a descriptor without wildcards into
// its locking script.
func (d *Descriptor) GetLockingScript() ([]byte, error) {
	if num := d.GetNeedArgumentNum(); num != 0 {
		return nil, errors.Errorf("failed to empty argument, need %d arguments", num)
	}
	scripts, err := d.GetLockingScriptAll(nil)
	if err != nil {
		return nil, err
	}
	return scripts[0], nil
}

// GetLockingScriptWithArgument materializes with the same argument
// replicated for every wildcard.
func (d *Descriptor) GetLockingScriptWithArgument(argument string) ([]byte, error) {
	args := make([]string, 0, d.GetNeedArgumentNum())
	for i := uint32(0); i < d.GetNeedArgumentNum(); i++ {
		args = append(args, argument)
	}
	return d.GetLockingScriptWithArgs(args)
}

// GetLockingScriptWithArgs materializes with one argument per
// wildcard, in left-to-right order.
func (d *Descriptor) GetLockingScriptWithArgs(args []string) ([]byte, error) {
	scripts, err := d.GetLockingScriptAll(args)
	if err != nil {
		return nil, err
	}
	return scripts[0], nil
}

// GetLockingScriptAll returns every locking script the descriptor
// expands to; combo yields up to four, everything else one.
func (d *Descriptor) GetLockingScriptAll(args []string) ([][]byte, error) {
	refs, err := d.GetReferenceAll(args)
	if err != nil {
		return nil, err
	}
	result := make([][]byte, 0, len(refs))
	for _, ref := range refs {
		result = append(result, ref.lockingScript)
	}
	return result, nil
}

// GetReference materializes the descriptor into a single reference.
func (d *Descriptor) GetReference(args []string) (*ScriptReference, error) {
	refs, err := d.GetReferenceAll(args)
	if err != nil {
		return nil, err
	}
	return refs[0], nil
}

// GetReferenceAll materializes the descriptor into its reference
// list. The argument list is copied, so concurrent calls with
// independent lists are safe on one parsed descriptor.
func (d *Descriptor) GetReferenceAll(args []string) ([]*ScriptReference, error) {
	copyList := make([]string, len(args))
	copy(copyList, args)
	return d.root.getReferences(&copyList, nil)
}

// GetKeyData returns the first key data of a descriptor without
// wildcards, or nil when the descriptor holds no keys.
func (d *Descriptor) GetKeyData() (*KeyData, error) {
	if num := d.GetNeedArgumentNum(); num != 0 {
		return nil, errors.Errorf("failed to empty argument, need %d arguments", num)
	}
	return d.GetKeyDataWithArgs(nil)
}

// GetKeyDataWithArgument resolves key data with the same argument
// replicated for every wildcard.
func (d *Descriptor) GetKeyDataWithArgument(argument string) (*KeyData, error) {
	args := make([]string, 0, d.GetNeedArgumentNum())
	for i := uint32(0); i < d.GetNeedArgumentNum(); i++ {
		args = append(args, argument)
	}
	return d.GetKeyDataWithArgs(args)
}

// GetKeyDataWithArgs resolves the first key data, or nil when the
// descriptor holds no keys.
func (d *Descriptor) GetKeyDataWithArgs(args []string) (*KeyData, error) {
	keyList, err := d.GetKeyDataAll(args)
	if err != nil {
		return nil, err
	}
	if len(keyList) == 0 {
		return nil, nil
	}
	return keyList[0], nil
}

// GetKeyDataAll walks the reference tree and collects every valid key
// data, wrapped scripts included.
func (d *Descriptor) GetKeyDataAll(args []string) ([]*KeyData, error) {
	refs, err := d.GetReferenceAll(args)
	if err != nil {
		return nil, err
	}
	var result []*KeyData
	for _, ref := range refs {
		scriptData := ref
		for {
			if scriptData.HasKey() {
				for _, key := range scriptData.keys {
					if key.keyData.IsValid() {
						result = append(result, key.keyData)
					}
				}
			}
			if !scriptData.HasChild() {
				break
			}
			scriptData = scriptData.child
		}
	}
	return result, nil
}

// ToString regenerates the canonical descriptor text, recomputing
// the checksum when requested.
func (d *Descriptor) ToString(appendChecksum bool) string {
	return d.root.toString(appendChecksum)
}
