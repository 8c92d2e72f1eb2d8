package descriptor

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/fastsha256"
	"github.com/coinvault/btcdescriptor/bip32util"
	"github.com/pkg/errors"
)

// AddressKind classifies the address form a locking script renders
// to, including the composite script-hash-wrapped witness forms.
type AddressKind int

const (
	// AddressUnknown is the zero value for unclassifiable scripts.
	AddressUnknown AddressKind = iota

	// AddressP2sh is a pay-to-script-hash address.
	AddressP2sh

	// AddressP2pkh is a pay-to-pubkey-hash address.
	AddressP2pkh

	// AddressP2wpkh is a v0 witness pubkey hash address.
	AddressP2wpkh

	// AddressP2wsh is a v0 witness script hash address.
	AddressP2wsh

	// AddressTaproot is a v1 witness (taproot) address.
	AddressTaproot

	// AddressShP2wpkh is p2wpkh nested in p2sh.
	AddressShP2wpkh

	// AddressShP2wsh is p2wsh nested in p2sh.
	AddressShP2wsh
)

// String describes the address kind.
func (k AddressKind) String() string {
	switch k {
	case AddressP2sh:
		return "p2sh"
	case AddressP2pkh:
		return "p2pkh"
	case AddressP2wpkh:
		return "p2wpkh"
	case AddressP2wsh:
		return "p2wsh"
	case AddressTaproot:
		return "p2tr"
	case AddressShP2wpkh:
		return "sh-wpkh"
	case AddressShP2wsh:
		return "sh-wsh"
	default:
		return "unknown"
	}
}

// HashKind classifies the hash commitment of a locking script.
type HashKind int

const (
	// HashUnknown is the zero value for unclassifiable scripts.
	HashUnknown HashKind = iota

	// HashP2sh commits to a redeem script via HASH160.
	HashP2sh

	// HashP2pkh commits to a public key via HASH160.
	HashP2pkh

	// HashP2wpkh commits to a public key in a v0 witness program.
	HashP2wpkh

	// HashP2wsh commits to a witness script via SHA256.
	HashP2wsh

	// HashTaproot commits to a tweaked x-only key.
	HashTaproot
)

// KeyReference is the materialized form of one key node: the
// resolved public key, its x-only form, the extended key it was
// derived from (when applicable) and the argument that resolved the
// wildcard.
type KeyReference struct {
	keyType     KeyType
	pubkey      *btcec.PublicKey
	pubkeyBytes []byte
	schnorrKey  []byte
	extKey      *bip32util.Key
	argument    string
	keyData     *KeyData
}

// KeyType returns the key encoding.
func (r *KeyReference) KeyType() KeyType {
	return r.keyType
}

// Pubkey returns the resolved EC public key.
func (r *KeyReference) Pubkey() *btcec.PublicKey {
	return r.pubkey
}

// PubkeyBytes returns the serialized public key exactly as the
// descriptor encodes it, preserving compression.
func (r *KeyReference) PubkeyBytes() []byte {
	return r.pubkeyBytes
}

// SchnorrPubkey returns the 32-byte x-only form of the key.
func (r *KeyReference) SchnorrPubkey() []byte {
	return r.schnorrKey
}

// HasSchnorrPubkey reports whether the descriptor wrote the key in
// x-only form.
func (r *KeyReference) HasSchnorrPubkey() bool {
	return r.keyType == KeySchnorr
}

// Argument returns the wildcard argument consumed by this key, if
// any.
func (r *KeyReference) Argument() string {
	return r.argument
}

// HasExtPubkey reports whether an extended key backs this reference.
func (r *KeyReference) HasExtPubkey() bool {
	return r.keyType == KeyBip32 || r.keyType == KeyBip32Priv
}

// HasExtPrivkey reports whether the backing extended key is private.
func (r *KeyReference) HasExtPrivkey() bool {
	return r.keyType == KeyBip32Priv
}

// ExtPubkey returns the public form of the backing extended key.
func (r *KeyReference) ExtPubkey() (*bip32util.Key, error) {
	if !r.HasExtPubkey() {
		return nil, errors.New("ExtPubkey unsupported key type")
	}
	if r.extKey.IsPrivate() {
		return r.extKey.ToPublic()
	}
	return r.extKey, nil
}

// ExtPrivkey returns the backing extended private key.
func (r *KeyReference) ExtPrivkey() (*bip32util.Key, error) {
	if !r.HasExtPrivkey() {
		return nil, errors.New("ExtPrivkey unsupported key type")
	}
	return r.extKey, nil
}

// KeyData returns the origin-preserving key data, when the argument
// resolved to a single child index.
func (r *KeyReference) KeyData() *KeyData {
	return r.keyData
}

// ScriptReference is the materialized form of one script node. It
// carries the locking script and everything needed to render
// addresses or descend into wrapped scripts.
type ScriptReference struct {
	scriptType    ScriptType
	lockingScript []byte
	address       btcutil.Address
	isScript      bool
	redeemScript  []byte
	child         *ScriptReference
	keys          []*KeyReference
	reqNum        uint32
	tapBranch     *TapBranch
	params        *chaincfg.Params
}

// ScriptType returns the script form this reference was built from.
func (r *ScriptReference) ScriptType() ScriptType {
	return r.scriptType
}

// LockingScript returns the output script.
func (r *ScriptReference) LockingScript() []byte {
	return r.lockingScript
}

// HasAddress reports whether the locking script renders to an
// address.
func (r *ScriptReference) HasAddress() bool {
	switch r.scriptType {
	case ScriptRaw:
		script := r.lockingScript
		return txscript.IsPayToWitnessPubKeyHash(script) ||
			txscript.IsPayToWitnessScriptHash(script) ||
			txscript.IsPayToTaproot(script) ||
			txscript.IsPayToScriptHash(script) ||
			isP2pkhScript(script)
	case ScriptMiniscript:
		return false
	}
	return true
}

// GenerateAddress renders the address for the requested network. An
// addr(...) descriptor refuses networks other than the one it was
// written for.
func (r *ScriptReference) GenerateAddress(params *chaincfg.Params) (btcutil.Address, error) {
	switch r.scriptType {
	case ScriptRaw:
		script := r.lockingScript
		switch {
		case txscript.IsPayToWitnessPubKeyHash(script):
			return btcutil.NewAddressWitnessPubKeyHash(script[2:22], params)
		case txscript.IsPayToWitnessScriptHash(script):
			return btcutil.NewAddressWitnessScriptHash(script[2:34], params)
		case txscript.IsPayToTaproot(script):
			return btcutil.NewAddressTaproot(script[2:34], params)
		case txscript.IsPayToScriptHash(script):
			return btcutil.NewAddressScriptHashFromHash(script[2:22], params)
		case isP2pkhScript(script):
			return btcutil.NewAddressPubKeyHash(script[3:23], params)
		}
		return nil, errors.New("raw script type does not render to an address")
	case ScriptAddr:
		if !r.address.IsForNet(params) {
			return nil, errors.New("unmatch address nettype")
		}
		return r.address, nil
	case ScriptTaproot:
		return btcutil.NewAddressTaproot(r.lockingScript[2:34], params)
	case ScriptMiniscript:
		return nil, errors.New("miniscript does not render to an address")
	}

	isKey := false
	isWitness := false
	switch r.scriptType {
	case ScriptWpkh:
		isKey = true
		isWitness = true
	case ScriptPk, ScriptPkh, ScriptMulti, ScriptSortedMulti:
		isKey = true
	case ScriptCombo:
		if !txscript.IsPayToScriptHash(r.lockingScript) {
			isKey = true
			isWitness = txscript.IsPayToWitnessPubKeyHash(r.lockingScript)
		}
	case ScriptWsh:
		isWitness = true
	}

	if isKey {
		pubkeyHash := btcutil.Hash160(r.keys[0].pubkeyBytes)
		if isWitness {
			return btcutil.NewAddressWitnessPubKeyHash(pubkeyHash, params)
		}
		return btcutil.NewAddressPubKeyHash(pubkeyHash, params)
	}

	if r.scriptType == ScriptWsh {
		scriptHash := fastsha256.Sum256(r.redeemScript)
		return btcutil.NewAddressWitnessScriptHash(scriptHash[:], params)
	}
	return btcutil.NewAddressScriptHash(r.redeemScript, params)
}

// GenerateAddresses renders one address per key for bare multisig,
// and a single address otherwise.
func (r *ScriptReference) GenerateAddresses(params *chaincfg.Params) ([]btcutil.Address, error) {
	if r.scriptType == ScriptMulti || r.scriptType == ScriptSortedMulti {
		result := make([]btcutil.Address, 0, len(r.keys))
		for _, key := range r.keys {
			addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key.pubkeyBytes), params)
			if err != nil {
				return nil, err
			}
			result = append(result, addr)
		}
		return result, nil
	}
	addr, err := r.GenerateAddress(params)
	if err != nil {
		return nil, err
	}
	return []btcutil.Address{addr}, nil
}

// AddressKind classifies the reference, from the locking script shape
// and the wrapped script where relevant.
func (r *ScriptReference) AddressKind() (AddressKind, error) {
	if r.scriptType == ScriptRaw || r.scriptType == ScriptAddr {
		return classifyScript(r.lockingScript)
	}
	if txscript.IsPayToScriptHash(r.lockingScript) {
		if txscript.IsPayToWitnessPubKeyHash(r.redeemScript) {
			return AddressShP2wpkh, nil
		}
		if txscript.IsPayToWitnessScriptHash(r.redeemScript) {
			return AddressShP2wsh, nil
		}
		return AddressP2sh, nil
	}
	return classifyScript(r.lockingScript)
}

// classifyScript maps a locking script shape to its address kind.
// Bare p2pk and multisig have no address form of their own and fall
// back to p2sh, the way the engine's callers wrap them.
func classifyScript(script []byte) (AddressKind, error) {
	switch {
	case txscript.IsPayToWitnessPubKeyHash(script):
		return AddressP2wpkh, nil
	case txscript.IsPayToWitnessScriptHash(script):
		return AddressP2wsh, nil
	case txscript.IsPayToTaproot(script):
		return AddressTaproot, nil
	case txscript.IsPayToScriptHash(script):
		return AddressP2sh, nil
	case isP2pkhScript(script):
		return AddressP2pkh, nil
	case isP2pkScript(script), isMultisigScript(script):
		return AddressP2sh, nil
	}
	return AddressUnknown, errors.New("unknown address type")
}

// HashKind classifies the hash commitment of the locking script.
func (r *ScriptReference) HashKind() (HashKind, error) {
	script := r.lockingScript
	switch {
	case txscript.IsPayToScriptHash(script):
		return HashP2sh, nil
	case txscript.IsPayToWitnessPubKeyHash(script):
		return HashP2wpkh, nil
	case txscript.IsPayToWitnessScriptHash(script):
		return HashP2wsh, nil
	case txscript.IsPayToTaproot(script):
		return HashTaproot, nil
	case isP2pkScript(script), isP2pkhScript(script):
		return HashP2pkh, nil
	}
	return HashUnknown, errors.New("unsupported hash type")
}

// HasRedeemScript reports whether a wrapped script is present.
func (r *ScriptReference) HasRedeemScript() bool {
	return len(r.redeemScript) > 0
}

// RedeemScript returns the wrapped script for sh and wsh forms.
func (r *ScriptReference) RedeemScript() []byte {
	return r.redeemScript
}

// HasChild reports whether a wrapped child reference is present.
func (r *ScriptReference) HasChild() bool {
	return r.isScript
}

// Child returns the wrapped child reference.
func (r *ScriptReference) Child() *ScriptReference {
	return r.child
}

// HasReqNum reports whether the reference carries a multisig
// threshold.
func (r *ScriptReference) HasReqNum() bool {
	return (r.scriptType == ScriptMulti || r.scriptType == ScriptSortedMulti) && r.reqNum > 0
}

// ReqNum returns the multisig threshold.
func (r *ScriptReference) ReqNum() uint32 {
	if !r.HasReqNum() {
		return 0
	}
	return r.reqNum
}

// HasKey reports whether the reference resolved any keys.
func (r *ScriptReference) HasKey() bool {
	return len(r.keys) > 0
}

// KeyNum returns the resolved key count.
func (r *ScriptReference) KeyNum() int {
	return len(r.keys)
}

// KeyList returns the resolved key references.
func (r *ScriptReference) KeyList() []*KeyReference {
	return r.keys
}

// HasTapBranch reports whether a taproot script tree was committed.
func (r *ScriptReference) HasTapBranch() bool {
	return r.tapBranch != nil && !r.tapBranch.IsEmpty()
}

// TapBranch returns the committed taproot tree, if any.
func (r *ScriptReference) TapBranch() *TapBranch {
	return r.tapBranch
}

// Address returns the pre-parsed address of an addr(...) descriptor.
func (r *ScriptReference) Address() btcutil.Address {
	return r.address
}
