package descriptor

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/fastsha256"
	"github.com/pkg/errors"
)

const (
	// maxRedeemScriptSize is the P2SH redeem script consensus limit.
	maxRedeemScriptSize = 520

	// maxScriptSize is the overall script consensus limit.
	maxScriptSize = 10000

	// maxMultisigKeyNum is the CHECKMULTISIG key limit for bare and
	// P2SH multisig.
	maxMultisigKeyNum = 16

	// maxMultisigWitnessKeyNum is the relaxed key limit inside a
	// witness script.
	maxMultisigWitnessKeyNum = 20

	// p2shWrapOverhead is the serialization overhead added when a
	// redeem script is pushed into a scriptSig.
	p2shWrapOverhead = 3
)

func createP2pkScript(pubkey []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(pubkey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func createP2pkhScript(pubkey []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pubkey)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func createP2wpkhScript(pubkey []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubkey)).
		Script()
}

func createP2shScript(redeemScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
}

func createP2wshScript(witnessScript []byte) ([]byte, error) {
	scriptHash := fastsha256.Sum256(witnessScript)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(scriptHash[:]).
		Script()
}

// createMultisigScript assembles `k <pubkeys...> n CHECKMULTISIG`.
// Keys are pushed in the order given; sortedmulti sorts beforehand.
func createMultisigScript(reqNum int64, pubkeys [][]byte) ([]byte, error) {
	if reqNum <= 0 || int(reqNum) > len(pubkeys) {
		return nil, errors.New("invalid multisig require num")
	}
	builder := txscript.NewScriptBuilder().AddInt64(reqNum)
	for _, pubkey := range pubkeys {
		builder.AddData(pubkey)
	}
	return builder.
		AddInt64(int64(len(pubkeys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// isP2pkScript matches `<33|65 byte pubkey> OP_CHECKSIG`.
func isP2pkScript(script []byte) bool {
	switch len(script) {
	case 35:
		return script[0] == 33 && script[34] == txscript.OP_CHECKSIG
	case 67:
		return script[0] == 65 && script[66] == txscript.OP_CHECKSIG
	}
	return false
}

// isP2pkhScript matches `OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG`.
func isP2pkhScript(script []byte) bool {
	return len(script) == 25 &&
		script[0] == txscript.OP_DUP &&
		script[1] == txscript.OP_HASH160 &&
		script[2] == txscript.OP_DATA_20 &&
		script[23] == txscript.OP_EQUALVERIFY &&
		script[24] == txscript.OP_CHECKSIG
}

// isMultisigScript matches a script terminated by OP_CHECKMULTISIG.
func isMultisigScript(script []byte) bool {
	return len(script) > 0 && script[len(script)-1] == txscript.OP_CHECKMULTISIG
}
