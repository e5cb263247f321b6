// Package contracts defines the built-in contract-state kinds: cash, linear
// states and deals. A deal is a linear state whose external linking
// component is its deal reference.
package contracts

import (
	"errors"

	"github.com/codeaudit/corda/internal/ledger"
)

// Built-in kind tags.
const (
	KindCash   ledger.Kind = "Cash"
	KindLinear ledger.Kind = "Linear"
	KindDeal   ledger.Kind = "Deal"
)

// Cash is a fungible amount held by an owner. Amounts are minor units.
type Cash struct {
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency"`
	Issuer   ledger.Party `json:"issuer"`
	Owner    ledger.Party `json:"owner"`
}

func (Cash) Kind() ledger.Kind { return KindCash }

// Linear is a state that evolves through versions sharing one LinearID.
type Linear struct {
	LinearID     ledger.LinkingID `json:"linear_id"`
	Participants []ledger.Party   `json:"participants"`
	Data         string           `json:"data,omitempty"`
}

func (Linear) Kind() ledger.Kind { return KindLinear }

// Deal is a linear state identified externally by its deal reference.
type Deal struct {
	LinearID     ledger.LinkingID `json:"linear_id"`
	Ref          string           `json:"ref"`
	Participants []ledger.Party   `json:"participants"`
}

func (Deal) Kind() ledger.Kind { return KindDeal }

// NewDeal creates a deal with a fresh linking id whose external component
// is ref.
func NewDeal(ref string, participants ...ledger.Party) Deal {
	return Deal{
		LinearID:     ledger.NewLinkingID(ref),
		Ref:          ref,
		Participants: participants,
	}
}

// Register adds the built-in kinds to r.
func Register(r *ledger.Registry) error {
	return errors.Join(
		ledger.Register[Cash](r, ledger.KindSpec{
			Kind: KindCash,
			Parties: func(s ledger.ContractState) []ledger.Party {
				c := s.(Cash)
				return []ledger.Party{c.Owner}
			},
		}),
		ledger.Register[Linear](r, ledger.KindSpec{
			Kind: KindLinear,
			Linking: func(s ledger.ContractState) (ledger.LinkingID, bool) {
				return s.(Linear).LinearID, true
			},
			Parties: func(s ledger.ContractState) []ledger.Party {
				return s.(Linear).Participants
			},
		}),
		ledger.Register[Deal](r, ledger.KindSpec{
			Kind:   KindDeal,
			Supers: []ledger.Kind{KindLinear},
			Linking: func(s ledger.ContractState) (ledger.LinkingID, bool) {
				return s.(Deal).LinearID, true
			},
			Parties: func(s ledger.ContractState) []ledger.Party {
				return s.(Deal).Participants
			},
		}),
	)
}

// NewRegistry returns a registry holding the built-in kinds.
func NewRegistry() *ledger.Registry {
	r := ledger.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
