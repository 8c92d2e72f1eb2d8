package descriptor

import (
	"bytes"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/coinvault/btcdescriptor/bip32util"
	"github.com/pkg/errors"
)

// ArgumentBaseExtkey is the sentinel argument instructing the
// materializer to use the base extended key unmodified, skipping
// dynamic derivation.
const ArgumentBaseExtkey = "base"

// popArgument consumes the next argument. The slice was reversed at
// the root, so popping the tail yields left-to-right tree order.
func popArgument(args *[]string) (string, error) {
	if args == nil || len(*args) == 0 {
		return "", errors.New("need argument, but argument list is empty")
	}
	value := (*args)[len(*args)-1]
	*args = (*args)[:len(*args)-1]
	return value, nil
}

// hasBaseArgument reports whether the caller requested base-extkey
// materialization.
func hasBaseArgument(args *[]string) bool {
	return args != nil && len(*args) > 0 && (*args)[0] == ArgumentBaseExtkey
}

// getReference materializes the node into a single reference.
func (n *Node) getReference(args *[]string, parent *Node) (*ScriptReference, error) {
	list, err := n.getReferences(args, parent)
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// getReferences materializes the node, consuming wildcard arguments
// from the list. Ordinarily one reference results; combo yields up to
// four.
func (n *Node) getReferences(args *[]string, parent *Node) ([]*ScriptReference, error) {
	if n.depth == 0 && args != nil && len(*args) > 1 {
		for i, j := 0, len(*args)-1; i < j; i, j = i+1, j-1 {
			(*args)[i], (*args)[j] = (*args)[j], (*args)[i]
		}
	}
	if n.nodeType != NodeTypeScript {
		return nil, errors.New("reference is available on script nodes only")
	}

	switch n.scriptType {
	case ScriptMiniscript:
		return n.getMiniscriptReference(args)
	case ScriptRaw:
		script, err := hex.DecodeString(n.value)
		if err != nil {
			return nil, errors.Wrap(err, "invalid raw script hex")
		}
		return []*ScriptReference{{
			scriptType:    n.scriptType,
			lockingScript: script,
			params:        n.params,
		}}, nil
	case ScriptAddr:
		addr, err := btcutil.DecodeAddress(n.value, n.params)
		if err != nil {
			return nil, errors.Wrap(err, "invalid address")
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, err
		}
		return []*ScriptReference{{
			scriptType:    n.scriptType,
			lockingScript: script,
			address:       addr,
			params:        n.params,
		}}, nil
	case ScriptMulti, ScriptSortedMulti:
		return n.getMultisigReference(args, parent)
	case ScriptSh, ScriptWsh:
		return n.getScriptHashReference(args)
	case ScriptTaproot:
		return n.getTaprootReference(args)
	case ScriptCombo:
		return n.getComboReferences(args)
	case ScriptPk, ScriptPkh, ScriptWpkh:
		return n.getKeyHashReference(args, parent)
	}
	return nil, errors.Errorf("unsupported script type: %s", n.scriptType)
}

func (n *Node) getMiniscriptReference(args *[]string) ([]*ScriptReference, error) {
	childNum := uint32(0)
	if n.needArgNum != 0 {
		if args == nil || len(*args) == 0 {
			return nil, errors.New("failed to generate miniscript from hdkey")
		}
		if !hasBaseArgument(args) {
			argValue, err := popArgument(args)
			if err != nil {
				return nil, err
			}
			if strings.Contains(argValue, "/") {
				return nil, errors.New("invalid argument, miniscript is single child")
			}
			num, err := strconv.ParseUint(argValue, 10, 32)
			if err != nil {
				return nil, errors.New("invalid argument, number only")
			}
			childNum = uint32(num)
		}
	}

	flags := MiniscriptWitnessScript
	if n.parentKind == "tr" {
		flags = MiniscriptTapscript
	}
	if miniscriptParser == nil {
		return nil, errors.New("failed to parse miniscript")
	}
	script, err := miniscriptParser.ParseMiniscript(n.value, childNum, flags)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse miniscript")
	}
	return []*ScriptReference{{
		scriptType:    n.scriptType,
		lockingScript: script,
		params:        n.params,
	}}, nil
}

func (n *Node) getMultisigReference(args *[]string, parent *Node) ([]*ScriptReference, error) {
	reqNum := n.children[0].number
	keys := make([]*KeyReference, 0, len(n.children)-1)
	pubkeys := make([][]byte, 0, len(n.children)-1)
	for _, child := range n.children[1:] {
		keyRef, err := child.getKeyReferences(args)
		if err != nil {
			return nil, err
		}
		keys = append(keys, keyRef)
		pubkeys = append(pubkeys, keyRef.pubkeyBytes)
	}
	if n.scriptType == ScriptSortedMulti {
		// https://github.com/bitcoin/bips/blob/master/bip-0067.mediawiki
		sort.Slice(pubkeys, func(i, j int) bool {
			return bytes.Compare(pubkeys[i], pubkeys[j]) < 0
		})
	}
	lockingScript, err := createMultisigScript(reqNum, pubkeys)
	if err != nil {
		return nil, err
	}
	return []*ScriptReference{{
		scriptType:    n.scriptType,
		lockingScript: lockingScript,
		keys:          keys,
		reqNum:        uint32(reqNum),
		params:        n.params,
	}}, nil
}

func (n *Node) getScriptHashReference(args *[]string) ([]*ScriptReference, error) {
	childRef, err := n.children[0].getReference(args, n)
	if err != nil {
		return nil, err
	}
	script := childRef.lockingScript
	var lockingScript []byte
	if n.scriptType == ScriptWsh {
		lockingScript, err = createP2wshScript(script)
	} else {
		lockingScript, err = createP2shScript(script)
	}
	if err != nil {
		return nil, err
	}
	return []*ScriptReference{{
		scriptType:    n.scriptType,
		lockingScript: lockingScript,
		isScript:      true,
		redeemScript:  script,
		child:         childRef,
		params:        n.params,
	}}, nil
}

func (n *Node) getTaprootReference(args *[]string) ([]*ScriptReference, error) {
	keyRef, err := n.children[0].getKeyReferences(args)
	if err != nil {
		return nil, err
	}
	branch := &TapBranch{}
	if len(n.children) >= 2 {
		branch, err = n.children[1].getTapBranch(args)
		if err != nil {
			return nil, err
		}
	}

	var outputKey *btcec.PublicKey
	if branch.IsEmpty() {
		// https://github.com/bitcoin/bips/blob/master/bip-0086.mediawiki
		outputKey = txscript.ComputeTaprootKeyNoScript(keyRef.pubkey)
	} else {
		rootHash := branch.RootHash()
		outputKey = txscript.ComputeTaprootOutputKey(keyRef.pubkey, rootHash[:])
	}
	lockingScript, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return nil, err
	}
	return []*ScriptReference{{
		scriptType:    n.scriptType,
		lockingScript: lockingScript,
		keys:          []*KeyReference{keyRef},
		tapBranch:     branch,
		params:        n.params,
	}}, nil
}

// getComboReferences emits the combo expansion in fixed order:
// p2wpkh, p2sh-p2wpkh, p2pkh, p2pk. Uncompressed keys drop the
// witness pair; SLIP-132 marked keys narrow the set to their format.
func (n *Node) getComboReferences(args *[]string) ([]*ScriptReference, error) {
	keyRef, err := n.children[0].getKeyReferences(args)
	if err != nil {
		return nil, err
	}
	keys := []*KeyReference{keyRef}
	format := bip32util.FormatNormal
	if keyRef.extKey != nil {
		format = keyRef.extKey.Format
	}

	var result []*ScriptReference
	if len(keyRef.pubkeyBytes) == compressedPubkeyLen {
		witnessScript, err := createP2wpkhScript(keyRef.pubkeyBytes)
		if err != nil {
			return nil, err
		}
		if format != bip32util.FormatBip49 {
			result = append(result, &ScriptReference{
				scriptType:    n.scriptType,
				lockingScript: witnessScript,
				keys:          keys,
				params:        n.params,
			})
		}
		if format != bip32util.FormatBip84 {
			childRef := &ScriptReference{
				scriptType:    ScriptWpkh,
				lockingScript: witnessScript,
				keys:          keys,
				params:        n.params,
			}
			wrapped, err := createP2shScript(witnessScript)
			if err != nil {
				return nil, err
			}
			result = append(result, &ScriptReference{
				scriptType:    n.scriptType,
				lockingScript: wrapped,
				isScript:      true,
				redeemScript:  witnessScript,
				child:         childRef,
				params:        n.params,
			})
		}
	}

	if format == bip32util.FormatNormal {
		pkhScript, err := createP2pkhScript(keyRef.pubkeyBytes)
		if err != nil {
			return nil, err
		}
		result = append(result, &ScriptReference{
			scriptType:    n.scriptType,
			lockingScript: pkhScript,
			keys:          keys,
			params:        n.params,
		})

		pkScript, err := createP2pkScript(keyRef.pubkeyBytes)
		if err != nil {
			return nil, err
		}
		result = append(result, &ScriptReference{
			scriptType:    n.scriptType,
			lockingScript: pkScript,
			keys:          keys,
			params:        n.params,
		})
	}
	return result, nil
}

func (n *Node) getKeyHashReference(args *[]string, parent *Node) ([]*ScriptReference, error) {
	keyRef, err := n.children[0].getKeyReferences(args)
	if err != nil {
		return nil, err
	}
	format := bip32util.FormatNormal
	if keyRef.extKey != nil {
		format = keyRef.extKey.Format
	}

	var lockingScript []byte
	switch n.scriptType {
	case ScriptPkh:
		if format != bip32util.FormatNormal {
			return nil, errors.New("invalid bip32 format, pkh is not using bip49 or bip84")
		}
		lockingScript, err = createP2pkhScript(keyRef.pubkeyBytes)
	case ScriptWpkh:
		if format == bip32util.FormatBip49 &&
			(parent == nil || parent.scriptType != ScriptSh) {
			return nil, errors.New("invalid bip32 format, bip49 is using sh-wpkh only")
		}
		if format == bip32util.FormatBip84 && parent != nil {
			return nil, errors.New("invalid bip32 format, bip84 is using wpkh only")
		}
		lockingScript, err = createP2wpkhScript(keyRef.pubkeyBytes)
	case ScriptPk:
		if format != bip32util.FormatNormal {
			return nil, errors.New("invalid bip32 format, pk is not using bip49 or bip84")
		}
		if n.parentKind == "tr" {
			lockingScript, err = createP2pkScript(keyRef.schnorrKey)
		} else {
			lockingScript, err = createP2pkScript(keyRef.pubkeyBytes)
		}
	}
	if err != nil {
		return nil, err
	}
	return []*ScriptReference{{
		scriptType:    n.scriptType,
		lockingScript: lockingScript,
		keys:          []*KeyReference{keyRef},
		params:        n.params,
	}}, nil
}

// getKeyReferences resolves the key node into a concrete key,
// consuming one argument when the node holds a wildcard.
func (n *Node) getKeyReferences(args *[]string) (*KeyReference, error) {
	switch n.keyType {
	case KeyPublic:
		pubkeyBytes, err := hex.DecodeString(n.keyInfo)
		if err != nil {
			return nil, errors.Wrap(err, "invalid pubkey data")
		}
		pubkey, err := btcec.ParsePubKey(pubkeyBytes)
		if err != nil {
			return nil, errors.Wrap(err, "invalid pubkey data")
		}
		return &KeyReference{
			keyType:     n.keyType,
			pubkey:      pubkey,
			pubkeyBytes: pubkeyBytes,
			schnorrKey:  schnorr.SerializePubKey(pubkey),
			keyData: &KeyData{
				keyType:   n.keyType,
				pubkey:    pubkey,
				wif:       n.wif,
				origin:    n.originInfo,
				keyString: strings.TrimPrefix(n.value, n.originInfo),
			},
		}, nil
	case KeySchnorr:
		schnorrKey, err := hex.DecodeString(n.keyInfo)
		if err != nil {
			return nil, errors.Wrap(err, "invalid x-only pubkey data")
		}
		pubkey, err := schnorr.ParsePubKey(schnorrKey)
		if err != nil {
			return nil, errors.Wrap(err, "invalid x-only pubkey data")
		}
		return &KeyReference{
			keyType:     n.keyType,
			pubkey:      pubkey,
			pubkeyBytes: pubkey.SerializeCompressed(),
			schnorrKey:  schnorrKey,
			keyData: &KeyData{
				keyType:    n.keyType,
				pubkey:     pubkey,
				schnorrKey: schnorrKey,
				origin:     n.originInfo,
				keyString:  n.keyInfo,
			},
		}, nil
	case KeyBip32, KeyBip32Priv:
		return n.getExtKeyReference(args)
	}
	return nil, errors.New("invalid key node")
}

func (n *Node) getExtKeyReference(args *[]string) (*KeyReference, error) {
	usingKey := n.derivedExtKey
	needArg := n.needArgNum
	argValue := ""
	hasBase := false
	if needArg != 0 {
		if args == nil || len(*args) == 0 {
			return nil, errors.New("failed to generate pubkey from hdkey")
		}
		if hasBaseArgument(args) {
			usingKey = n.baseKey
			needArg = 0
			hasBase = true
		} else {
			var err error
			argValue, err = popArgument(args)
			if err != nil {
				return nil, err
			}
		}
	}

	key := usingKey
	if needArg != 0 {
		path, err := bip32util.NewPathFromString(argValue)
		if err != nil {
			return nil, errors.Wrap(err, "invalid derive argument")
		}
		if path.HasWildcard() {
			return nil, errors.New("invalid derive argument")
		}
		key, err = key.DerivePath(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate pubkey from hdkey")
		}
	}

	pubkey, err := key.Pubkey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate pubkey from hdkey")
	}

	ref := &KeyReference{
		keyType:     n.keyType,
		pubkey:      pubkey,
		pubkeyBytes: pubkey.SerializeCompressed(),
		schnorrKey:  schnorr.SerializePubKey(pubkey),
		extKey:      key,
		argument:    argValue,
	}
	if (needArg == 0 && !hasBase) ||
		(argValue != "" && !strings.Contains(argValue, "/")) {
		ref.keyData = &KeyData{
			keyType:   n.keyType,
			pubkey:    pubkey,
			extKey:    key,
			origin:    n.originInfo,
			keyString: key.String(),
		}
	}
	return ref, nil
}
