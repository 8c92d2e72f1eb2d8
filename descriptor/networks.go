package descriptor

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
)

const (
	// NetBtc is the constant for the bitcoin network
	NetBtc = "btc"

	// NetBtcTest is the constant for the bitcoin testnet network
	NetBtcTest = "tbtc"

	// NetBtcRegtest is the constant for the bitcoin regtest network
	NetBtcRegtest = "rbtc"
)

// CheckNetwork validates that the network is valid
func CheckNetwork(network string) (string, error) {
	switch network {
	case NetBtc, NetBtcTest, NetBtcRegtest:
		return network, nil
	default:
		return "", errors.New("Network is invalid")
	}
}

// Network captures customizations which differ from network to
// network. For the descriptor engine that is the chain params, which
// double as the address-format table used when rendering addresses.
type Network struct {

	// Name holds the short network code.
	Name string

	// Params holds the networks chain params
	Params *chaincfg.Params
}

var (
	// BtcNetwork defines the behaviour on the Bitcoin network
	BtcNetwork = &Network{
		Name:   NetBtc,
		Params: &chaincfg.MainNetParams,
	}

	// BtcTestNetwork defines the behaviour on the Bitcoin testnet
	BtcTestNetwork = &Network{
		Name:   NetBtcTest,
		Params: &chaincfg.TestNet3Params,
	}

	// BtcRegtestNetwork defines the behaviour on the Bitcoin regtest network
	BtcRegtestNetwork = &Network{
		Name:   NetBtcRegtest,
		Params: &chaincfg.RegressionNetParams,
	}
)

// GetNetworkParams takes a network string shortcode and returns the
// *Network params
func GetNetworkParams(network string) (*Network, error) {
	switch network {
	case NetBtc:
		return BtcNetwork, nil
	case NetBtcTest:
		return BtcTestNetwork, nil
	case NetBtcRegtest:
		return BtcRegtestNetwork, nil
	}

	return nil, errors.New("Invalid network")
}
