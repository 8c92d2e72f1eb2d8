package descriptor

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	_assert "github.com/stretchr/testify/require"
)

func tapLeafPkScript(t *testing.T, xonlyHex string) []byte {
	xonly, err := hex.DecodeString(xonlyHex)
	_assert.NoError(t, err)
	return buildScript(t, func(b *txscript.ScriptBuilder) *txscript.ScriptBuilder {
		return b.AddData(xonly).AddOp(txscript.OP_CHECKSIG)
	})
}

func taprootOutputScript(t *testing.T, internalHex string, root txscript.TapNode) []byte {
	internalBytes, err := hex.DecodeString(internalHex)
	_assert.NoError(t, err)
	internal, err := schnorr.ParsePubKey(internalBytes)
	_assert.NoError(t, err)
	rootHash := root.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internal, rootHash[:])
	script, err := txscript.PayToTaprootScript(outputKey)
	_assert.NoError(t, err)
	return script
}

func TestTaprootSingleLeafTree(t *testing.T) {
	internal := testXonlyHex(t, 1)
	leafKey := testXonlyHex(t, 2)
	input := fmt.Sprintf("tr(%s,pk(%s))", internal, leafKey)

	desc, err := Parse(input, nil)
	_assert.NoError(t, err)

	ref, err := desc.GetReference(nil)
	_assert.NoError(t, err)
	_assert.True(t, ref.HasTapBranch())
	branch := ref.TapBranch()
	_assert.True(t, branch.HasTapLeaf())
	_assert.Len(t, branch.Leaves(), 1)

	leaf := txscript.NewBaseTapLeaf(tapLeafPkScript(t, leafKey))
	_assert.Equal(t, taprootOutputScript(t, internal, leaf), ref.LockingScript())

	_assert.Equal(t, input, desc.ToString(false))
}

func TestTaprootTwoLeafTree(t *testing.T) {
	internal := testXonlyHex(t, 1)
	leafA := testXonlyHex(t, 2)
	leafB := testXonlyHex(t, 3)
	input := fmt.Sprintf("tr(%s,{pk(%s),pk(%s)})", internal, leafA, leafB)

	desc, err := Parse(input, nil)
	_assert.NoError(t, err)

	ref, err := desc.GetReference(nil)
	_assert.NoError(t, err)
	_assert.True(t, ref.HasTapBranch())
	_assert.Len(t, ref.TapBranch().Leaves(), 2)

	branch := txscript.NewTapBranch(
		txscript.NewBaseTapLeaf(tapLeafPkScript(t, leafA)),
		txscript.NewBaseTapLeaf(tapLeafPkScript(t, leafB)),
	)
	_assert.Equal(t, taprootOutputScript(t, internal, branch), ref.LockingScript())
}

func TestTaprootNestedTree(t *testing.T) {
	internal := testXonlyHex(t, 1)
	leafA := testXonlyHex(t, 2)
	leafB := testXonlyHex(t, 3)
	leafC := testXonlyHex(t, 4)
	input := fmt.Sprintf("tr(%s,{pk(%s),{pk(%s),pk(%s)}})", internal, leafA, leafB, leafC)

	desc, err := Parse(input, nil)
	_assert.NoError(t, err)

	ref, err := desc.GetReference(nil)
	_assert.NoError(t, err)
	_assert.Len(t, ref.TapBranch().Leaves(), 3)

	branch := txscript.NewTapBranch(
		txscript.NewBaseTapLeaf(tapLeafPkScript(t, leafA)),
		txscript.NewTapBranch(
			txscript.NewBaseTapLeaf(tapLeafPkScript(t, leafB)),
			txscript.NewBaseTapLeaf(tapLeafPkScript(t, leafC)),
		),
	)
	_assert.Equal(t, taprootOutputScript(t, internal, branch), ref.LockingScript())
}

func TestTaprootKeyLeafTree(t *testing.T) {
	internal := testXonlyHex(t, 1)
	leafA := testXonlyHex(t, 2)
	leafB := testXonlyHex(t, 3)
	input := fmt.Sprintf("tr(%s,{%s,%s})", internal, leafA, leafB)

	desc, err := Parse(input, nil)
	_assert.NoError(t, err)

	ref, err := desc.GetReference(nil)
	_assert.NoError(t, err)
	branch := ref.TapBranch()
	_assert.False(t, branch.IsEmpty())
	// bare key leaves commit as plain hash nodes, not tapleaves
	_assert.False(t, branch.HasTapLeaf())

	leafABytes, err := hex.DecodeString(leafA)
	_assert.NoError(t, err)
	leafBBytes, err := hex.DecodeString(leafB)
	_assert.NoError(t, err)
	var nodeA, nodeB tapHashNode
	copy(nodeA[:], leafABytes)
	copy(nodeB[:], leafBBytes)
	expected := txscript.NewTapBranch(nodeA, nodeB)
	_assert.Equal(t, taprootOutputScript(t, internal, expected), ref.LockingScript())
}

func TestTaprootTreeWildcard(t *testing.T) {
	internal := testXonlyHex(t, 1)
	xpub := testXpub(t)
	input := fmt.Sprintf("tr(%s,pk(%s/0/*))", internal, xpub)

	desc, err := Parse(input, nil)
	_assert.NoError(t, err)
	_assert.Equal(t, uint32(1), desc.GetNeedArgumentNum())

	script, err := desc.GetLockingScriptWithArgs([]string{"3"})
	_assert.NoError(t, err)

	parent := testMasterKey(t)
	neutered, err := parent.Neuter()
	_assert.NoError(t, err)
	child, err := neutered.Derive(0)
	_assert.NoError(t, err)
	child, err = child.Derive(3)
	_assert.NoError(t, err)
	pubkey, err := child.ECPubKey()
	_assert.NoError(t, err)
	leafScript := buildScript(t, func(b *txscript.ScriptBuilder) *txscript.ScriptBuilder {
		return b.AddData(schnorr.SerializePubKey(pubkey)).AddOp(txscript.OP_CHECKSIG)
	})
	leaf := txscript.NewBaseTapLeaf(leafScript)
	_assert.Equal(t, taprootOutputScript(t, internal, leaf), script)
}

func TestTaprootTreeRejections(t *testing.T) {
	internal := testXonlyHex(t, 1)
	fixtures := []struct {
		name string
		desc string
	}{
		{name: "empty tree", desc: fmt.Sprintf("tr(%s,)", internal)},
		{name: "single element brace group", desc: fmt.Sprintf("tr(%s,{pk(%s)})", internal, testXonlyHex(t, 2))},
		{name: "short leaf literal", desc: fmt.Sprintf("tr(%s,{abcd,pk(%s)})", internal, testXonlyHex(t, 2))},
	}
	for _, fixture := range fixtures {
		t.Run(fixture.name, func(t *testing.T) {
			_, err := Parse(fixture.desc, nil)
			_assert.Error(t, err)
		})
	}
}
