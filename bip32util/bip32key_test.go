package bip32util

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	_assert "github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) *hdkeychain.ExtendedKey {
	seed := bytes.Repeat([]byte{0x2a}, 32)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	_assert.NoError(t, err)
	return master
}

// reencodeVersion swaps the 4 version bytes of a serialized extended
// key and fixes up the base58check checksum.
func reencodeVersion(t *testing.T, key string, versionHex string) string {
	payload := base58.Decode(key)
	_assert.True(t, len(payload) > 8)
	raw := payload[:len(payload)-4]
	version, err := hex.DecodeString(versionHex)
	_assert.NoError(t, err)
	copy(raw[0:4], version)
	checksum := chainhash.DoubleHashB(raw)[:4]
	return base58.Encode(append(raw, checksum...))
}

func TestNewKeyFromString(t *testing.T) {
	master := testMasterKey(t)
	xpub, err := master.Neuter()
	_assert.NoError(t, err)

	t.Run("xprv is private with normal format", func(t *testing.T) {
		key, err := NewKeyFromString(master.String())
		_assert.NoError(t, err)
		_assert.True(t, key.IsPrivate())
		_assert.Equal(t, FormatNormal, key.Format)
	})

	t.Run("xpub is public with normal format", func(t *testing.T) {
		key, err := NewKeyFromString(xpub.String())
		_assert.NoError(t, err)
		_assert.False(t, key.IsPrivate())
		_assert.Equal(t, FormatNormal, key.Format)
	})

	t.Run("slip132 versions map to their format", func(t *testing.T) {
		fixtures := []struct {
			version string
			format  FormatType
		}{
			{version: "049d7cb2", format: FormatBip49}, // ypub
			{version: "044a5262", format: FormatBip49}, // upub
			{version: "04b24746", format: FormatBip84}, // zpub
			{version: "045f1cf6", format: FormatBip84}, // vpub
		}
		for _, fixture := range fixtures {
			encoded := reencodeVersion(t, xpub.String(), fixture.version)
			key, err := NewKeyFromString(encoded)
			_assert.NoError(t, err)
			_assert.Equal(t, fixture.format, key.Format)
			_assert.False(t, key.IsPrivate())
		}
	})

	t.Run("unknown version bytes are rejected", func(t *testing.T) {
		encoded := reencodeVersion(t, xpub.String(), "deadbeef")
		_, err := NewKeyFromString(encoded)
		_assert.Equal(t, ErrUnknownKeyVersion, err)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := NewKeyFromString("xpubnotakey")
		_assert.Error(t, err)
	})
}

func TestKeyDerivePath(t *testing.T) {
	master := testMasterKey(t)
	key, err := NewKeyFromString(master.String())
	_assert.NoError(t, err)

	derived, err := key.DerivePathString("0/1")
	_assert.NoError(t, err)

	expected, err := master.Derive(0)
	_assert.NoError(t, err)
	expected, err = expected.Derive(1)
	_assert.NoError(t, err)
	_assert.Equal(t, expected.String(), derived.String())
	_assert.Equal(t, FormatNormal, derived.Format)
	_assert.Equal(t, uint32(1), derived.ChildIndex())

	t.Run("hardened derivation works on private keys", func(t *testing.T) {
		hardened, err := key.DerivePathString("44'/0'")
		_assert.NoError(t, err)
		_assert.True(t, hardened.IsPrivate())
	})

	t.Run("hardened derivation fails on public keys", func(t *testing.T) {
		public, err := key.ToPublic()
		_assert.NoError(t, err)
		_, err = public.DerivePathString("44'/0'")
		_assert.Equal(t, ErrHardenedFromPublic, err)
	})

	t.Run("wildcard paths cannot derive directly", func(t *testing.T) {
		_, err := key.DerivePathString("0/*")
		_assert.Error(t, err)
	})
}

func TestKeyToPublic(t *testing.T) {
	master := testMasterKey(t)
	key, err := NewKeyFromString(master.String())
	_assert.NoError(t, err)

	public, err := key.ToPublic()
	_assert.NoError(t, err)
	_assert.False(t, public.IsPrivate())

	_, err = public.ToPublic()
	_assert.Equal(t, ErrKeyIsAlreadyPublic, err)

	// both forms resolve to the same EC public key
	privPub, err := key.Pubkey()
	_assert.NoError(t, err)
	pubPub, err := public.Pubkey()
	_assert.NoError(t, err)
	_assert.Equal(t, privPub.SerializeCompressed(), pubPub.SerializeCompressed())
}

func TestKeyFingerprint(t *testing.T) {
	master := testMasterKey(t)
	key, err := NewKeyFromString(master.String())
	_assert.NoError(t, err)

	fingerprint, err := key.Fingerprint()
	_assert.NoError(t, err)
	_assert.Len(t, fingerprint, 4)

	// the child's parent fingerprint matches the parent's own
	child, err := key.Child(0)
	_assert.NoError(t, err)
	_assert.Equal(t, binary.BigEndian.Uint32(fingerprint), child.Key.ParentFingerprint())
}
