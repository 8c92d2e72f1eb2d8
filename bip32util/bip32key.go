package bip32util

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/pkg/errors"
)

var (
	// ErrKeyIsAlreadyPublic is returned when a codepath
	// requests a public key be converted to a public key.
	ErrKeyIsAlreadyPublic = errors.New("key is already public")

	// ErrHardenedFromPublic is returned when a hardened
	// derivation step is requested from a public extended key.
	ErrHardenedFromPublic = errors.New("hardened derivation requires a private extended key")

	// ErrUnknownKeyVersion is returned when the serialized
	// extended key carries version bytes outside the recognized
	// SLIP-132 set.
	ErrUnknownKeyVersion = errors.New("unsupported extended key version")
)

// FormatType identifies the SLIP-132 serialization family an
// extended key was encoded with. The family constrains which script
// forms the key may be used in.
type FormatType int

const (
	// FormatNormal covers xpub/xprv and tpub/tprv (BIP44 and
	// unmarked keys).
	FormatNormal FormatType = iota

	// FormatBip49 covers ypub/yprv and upub/uprv.
	FormatBip49

	// FormatBip84 covers zpub/zprv and vpub/vprv.
	FormatBip84
)

// extKeyVersions maps the hex encoding of the 4 version bytes of a
// serialized extended key to its SLIP-132 family.
var extKeyVersions = map[string]FormatType{
	"0488b21e": FormatNormal, // xpub
	"0488ade4": FormatNormal, // xprv
	"043587cf": FormatNormal, // tpub
	"04358394": FormatNormal, // tprv
	"049d7cb2": FormatBip49,  // ypub
	"049d7878": FormatBip49,  // yprv
	"044a5262": FormatBip49,  // upub
	"044a4e28": FormatBip49,  // uprv
	"04b24746": FormatBip84,  // zpub
	"04b2430c": FormatBip84,  // zprv
	"045f1cf6": FormatBip84,  // vpub
	"045f18bc": FormatBip84,  // vprv
}

// Key wraps an extended key together with the SLIP-132 family its
// serialization was marked with. The family survives derivation,
// since hdkeychain reuses the parent's version bytes for children.
type Key struct {
	Key    *hdkeychain.ExtendedKey
	Format FormatType
}

// NewKeyFromString decodes a serialized extended key (xpub, xprv and
// the SLIP-132 variants) and captures its format family.
func NewKeyFromString(key string) (*Key, error) {
	extKey, err := hdkeychain.NewKeyFromString(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode extended key")
	}

	format, ok := extKeyVersions[hex.EncodeToString(extKey.Version())]
	if !ok {
		return nil, ErrUnknownKeyVersion
	}

	return &Key{
		Key:    extKey,
		Format: format,
	}, nil
}

// Child takes a sequence number and derives a child key. Called
// repetitively to derive a path.
func (k *Key) Child(sequence uint32) (*Key, error) {
	if isBip32SequenceHardened(sequence) && !k.IsPrivate() {
		return nil, ErrHardenedFromPublic
	}

	newKey, err := k.Key.Derive(sequence)
	if err != nil {
		return nil, err
	}

	return &Key{newKey, k.Format}, nil
}

// DerivePath derives along every fixed segment of the provided path.
// Wildcard paths must be resolved to a concrete sequence before
// derivation; passing one here is an error.
func (k *Key) DerivePath(path *Path) (*Key, error) {
	if path.HasWildcard() {
		return nil, errors.New("cannot derive an unresolved wildcard path")
	}

	key := k
	var err error
	for _, sequence := range path.Path {
		key, err = key.Child(sequence)
		if err != nil {
			return nil, err
		}
	}
	return key, nil
}

// DerivePathString parses and derives a relative path in one step.
func (k *Key) DerivePathString(path string) (*Key, error) {
	p, err := NewPathFromString(path)
	if err != nil {
		return nil, err
	}
	return k.DerivePath(p)
}

// IsPrivate returns true if the key is private, false if public.
func (k *Key) IsPrivate() bool {
	return k.Key.IsPrivate()
}

// ToPublic converts the key to the public form, or returns an error
// if the Key is already public.
func (k *Key) ToPublic() (*Key, error) {
	if !k.IsPrivate() {
		return nil, ErrKeyIsAlreadyPublic
	}

	key, err := k.Key.Neuter()
	if err != nil {
		return nil, err
	}

	return &Key{key, k.Format}, nil
}

// Pubkey returns the EC public key behind the extended key.
func (k *Key) Pubkey() (*btcec.PublicKey, error) {
	return k.Key.ECPubKey()
}

// Fingerprint returns the first 4 bytes of the HASH160 of the
// serialized public key, as used in descriptor key origins.
func (k *Key) Fingerprint() ([]byte, error) {
	pubkey, err := k.Pubkey()
	if err != nil {
		return nil, err
	}
	return btcutil.Hash160(pubkey.SerializeCompressed())[:4], nil
}

// ChildIndex returns the sequence number this key was derived with.
func (k *Key) ChildIndex() uint32 {
	return k.Key.ChildIndex()
}

// String returns the serialized form, preserving the original
// version bytes.
func (k *Key) String() string {
	return k.Key.String()
}
