package service

import (
	"atm_bridge/internal/app/port"
	"atm_bridge/internal/domain/entity"
)

// connectionState is one of unavailable, disconnected, connecting or connected.
// A contract handle only exists inside connected.
type connectionState interface {
	name() string
}

type unavailable struct{}

type disconnected struct {
	provider port.WalletProvider
}

type connecting struct {
	provider port.WalletProvider
}

type connected struct {
	provider port.WalletProvider
	account  string
	contract port.ATMContract
	// balances is nil until the first refresh of this handle completes.
	balances *entity.Balances
	// refreshSeq counts refreshes started on this handle.
	refreshSeq uint64
}

func (unavailable) name() string   { return "unavailable" }
func (*disconnected) name() string { return "disconnected" }
func (*connecting) name() string   { return "connecting" }
func (*connected) name() string    { return "connected" }

var stateNames = []string{"unavailable", "disconnected", "connecting", "connected"} //nolint:gochecknoglobals

func providerOf(s connectionState) port.WalletProvider {
	switch s := s.(type) {
	case *disconnected:
		return s.provider
	case *connecting:
		return s.provider
	case *connected:
		return s.provider
	default:
		return nil
	}
}
