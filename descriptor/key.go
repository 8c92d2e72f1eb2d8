package descriptor

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/coinvault/btcdescriptor/bip32util"
	"github.com/pkg/errors"
)

const (
	compressedPubkeyLen   = 33
	uncompressedPubkeyLen = 65
	schnorrPubkeyLen      = 32
)

// analyzeKey decodes the key literal held in the node value. The
// origin prefix is split off first; the remainder is classified as an
// extended key, a raw public key, an x-only key (taproot scope only)
// or a WIF private key, in that order.
func (n *Node) analyzeKey() error {
	n.keyInfo = n.value
	if strings.HasPrefix(n.value, "[") {
		if pos := strings.Index(n.value, "]"); pos >= 0 {
			n.originInfo = n.value[:pos+1]
			n.keyInfo = n.value[pos+1:]
		}
	}
	log.Tracef("analyzeKey %s", n.keyInfo)

	var hdkeyTop string
	if len(n.keyInfo) > 4 {
		hdkeyTop = n.keyInfo[1:4]
	}
	if hdkeyTop == "pub" || hdkeyTop == "prv" {
		return n.analyzeExtKey(hdkeyTop == "prv")
	}
	return n.analyzePlainKey()
}

// analyzeExtKey handles xpub/xprv literals with their optional
// derivation path. The fixed part of the path is derived immediately;
// a trailing wildcard marks the node as consuming one argument.
func (n *Node) analyzeExtKey(isPrivate bool) error {
	n.keyType = KeyBip32
	if isPrivate {
		n.keyType = KeyBip32Priv
	}

	list := strings.Split(n.keyInfo, "/")
	base := list[0]
	wildcard := bip32util.WildcardNone
	var fixed []string
	if len(list) > 1 {
		if strings.Contains(n.keyInfo, "*") {
			n.needArgNum = 1
		}
		idx := 1
	scan:
		for ; idx < len(list); idx++ {
			switch list[idx] {
			case "*":
				wildcard = bip32util.WildcardNormal
				break scan
			case "*'", "*h":
				wildcard = bip32util.WildcardHardened
				break scan
			default:
				fixed = append(fixed, list[idx])
			}
		}
		if idx+1 < len(list) {
			return bip32util.ErrPathWildcardTail
		}
	}

	key, err := bip32util.NewKeyFromString(base)
	if err != nil {
		return err
	}
	if key.IsPrivate() != isPrivate {
		return errors.New("extended key type does not match its prefix")
	}
	if wildcard == bip32util.WildcardHardened && !isPrivate {
		return errors.New("hardened derivation requires an extended private key")
	}

	derived := key
	keyPath := &bip32util.Path{}
	if len(fixed) > 0 {
		keyPath, err = bip32util.NewPathFromString(strings.Join(fixed, "/"))
		if err != nil {
			return err
		}
		derived, err = key.DerivePath(keyPath)
		if err != nil {
			return err
		}
	}
	keyPath.Wildcard = wildcard

	n.keyPath = keyPath
	n.baseExtKey = base
	n.baseKey = key
	n.derivedExtKey = derived
	n.keyInfo = derived.String()
	return nil
}

// analyzePlainKey handles raw public keys, x-only keys and WIF
// private keys. WIF is the last resort once the literal fails to
// decode as a public key; there is no silent fallback past it.
func (n *Node) analyzePlainKey() error {
	n.keyType = KeyPublic

	keyBytes, hexErr := hex.DecodeString(n.keyInfo)
	if hexErr == nil {
		switch len(keyBytes) {
		case compressedPubkeyLen, uncompressedPubkeyLen:
			if n.parentKind == "tr" {
				return errors.New("taproot key must be an x-only pubkey")
			}
			if _, err := btcec.ParsePubKey(keyBytes); err != nil {
				return errors.Wrap(err, "invalid pubkey")
			}
			n.keyInfo = hex.EncodeToString(keyBytes)
			n.isUncompressed = len(keyBytes) == uncompressedPubkeyLen
			return nil
		case schnorrPubkeyLen:
			if n.parentKind == "tr" {
				if _, err := schnorr.ParsePubKey(keyBytes); err != nil {
					return errors.Wrap(err, "invalid x-only pubkey")
				}
				n.keyType = KeySchnorr
				n.keyInfo = hex.EncodeToString(keyBytes)
				return nil
			}
		}
	}

	// privkey WIF check
	wif, err := btcutil.DecodeWIF(n.keyInfo)
	if err != nil {
		return errors.New("key literal is not a pubkey nor a valid WIF privkey")
	}
	if !wif.IsForNet(&chaincfg.MainNetParams) && !wif.IsForNet(&chaincfg.TestNet3Params) {
		return errors.New("WIF privkey is for an unsupported network")
	}
	n.wif = wif
	n.keyInfo = hex.EncodeToString(wif.SerializePubKey())
	n.isUncompressed = !wif.CompressPubKey
	return nil
}

// KeyData carries one resolved key together with the origin
// information the descriptor recorded for it.
type KeyData struct {
	keyType    KeyType
	pubkey     *btcec.PublicKey
	schnorrKey []byte
	extKey     *bip32util.Key
	wif        *btcutil.WIF
	origin     string
	keyString  string
}

// IsValid reports whether the KeyData resolved to an actual key.
func (k *KeyData) IsValid() bool {
	return k != nil && (k.pubkey != nil || len(k.schnorrKey) > 0)
}

// KeyType returns the key encoding.
func (k *KeyData) KeyType() KeyType {
	return k.keyType
}

// Pubkey returns the resolved EC public key.
func (k *KeyData) Pubkey() *btcec.PublicKey {
	return k.pubkey
}

// SchnorrKey returns the 32-byte x-only key, when the descriptor
// provided one.
func (k *KeyData) SchnorrKey() []byte {
	return k.schnorrKey
}

// HasExtPubkey reports whether an extended key backs this key.
func (k *KeyData) HasExtPubkey() bool {
	return k.extKey != nil
}

// HasExtPrivkey reports whether the backing extended key is private.
func (k *KeyData) HasExtPrivkey() bool {
	return k.extKey != nil && k.extKey.IsPrivate()
}

// HasPrivkey reports whether the descriptor carried a WIF privkey.
func (k *KeyData) HasPrivkey() bool {
	return k.wif != nil
}

// ExtKey returns the backing extended key, if any.
func (k *KeyData) ExtKey() *bip32util.Key {
	return k.extKey
}

// OriginInfo returns the `[fingerprint/path]` prefix, empty when the
// descriptor had none.
func (k *KeyData) OriginInfo() string {
	return k.origin
}

// ToString renders the key the way it would appear in a descriptor,
// origin prefix included.
func (k *KeyData) ToString() string {
	return k.origin + k.keyString
}

// KeyInfo is a validated key literal used to assemble descriptors
// with CreateDescriptor.
type KeyInfo struct {
	key    string
	origin string
}

// NewKeyInfo validates a key literal plus optional origin prefix and
// wraps them for descriptor assembly.
func NewKeyInfo(key string, originInfo string) (*KeyInfo, error) {
	node := newNode(&chaincfg.MainNetParams)
	node.nodeType = NodeTypeKey
	node.value = originInfo + key
	if err := node.analyzeKey(); err != nil {
		return nil, err
	}
	return &KeyInfo{key: key, origin: originInfo}, nil
}

// ToString renders the literal as it will appear in the descriptor.
func (k *KeyInfo) ToString() string {
	return k.origin + k.key
}

// ExtKeyOriginInfo builds the `[fingerprint/path]` origin prefix for
// an extended key, the way hardware wallets export it.
func ExtKeyOriginInfo(key *bip32util.Key, childPath string) (string, error) {
	fingerprint, err := key.Fingerprint()
	if err != nil {
		return "", err
	}
	result := "[" + hex.EncodeToString(fingerprint)
	if childPath != "" {
		path := childPath
		if path[0] == 'm' || path[0] == 'M' {
			path = path[1:]
		}
		if !strings.HasPrefix(path, "/") {
			result += "/"
		}
		result += path
	}
	return result + "]", nil
}
