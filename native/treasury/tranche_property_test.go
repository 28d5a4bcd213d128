package treasury

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"fundtreasury/crypto"
)

func TestInitialTrancheIsFlooredShare(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("first tranche is floor(amount*bps/10000) and never exceeds amount", prop.ForAll(
		func(amount, bps uint64) bool {
			first := initialTranche(uint256.NewInt(amount), bps)
			want := new(big.Int).Mul(new(big.Int).SetUint64(amount), new(big.Int).SetUint64(bps))
			want.Quo(want, big.NewInt(BasisPoints))
			return first.ToBig().Cmp(want) == 0 && first.Uint64() <= amount
		},
		gen.UInt64(),
		gen.UInt64Range(1, BasisPoints-1),
	))

	properties.TestingRun(t)
}

// runLifecycle drives one proposal from submission to final release and
// returns the two tranches paid out.
func runLifecycle(deposit, amount, bps uint64) (*Engine, []TransferInstruction, bool) {
	engine, err := NewEngine(Genesis{
		Owner:             owner,
		Authorities:       []crypto.Address{authA, authB, authC},
		RequiredApprovals: 2,
	}, Params{InitialReleaseBps: bps})
	if err != nil {
		return nil, nil, false
	}
	if engine.DepositFunds(outsider, uint256.NewInt(deposit)) != nil {
		return nil, nil, false
	}
	id, err := engine.SubmitProposal(outsider, "Equip a clinic", uint256.NewInt(amount), recipient)
	if err != nil {
		return nil, nil, false
	}
	if engine.VoteOnProposal(authA, id) != nil || engine.VoteOnProposal(authB, id) != nil {
		return nil, nil, false
	}
	first, err := engine.ReleaseInitialFunds(owner, id)
	if err != nil {
		return nil, nil, false
	}
	if engine.SubmitStageReport(recipient, id, "walls up") != nil {
		return nil, nil, false
	}
	if engine.ApproveStage(authA, id) != nil || engine.ApproveStage(authC, id) != nil {
		return nil, nil, false
	}
	second, err := engine.ReleaseNextStageFunds(owner, id)
	if err != nil {
		return nil, nil, false
	}
	return engine, []TransferInstruction{first, second}, true
}

func TestLifecyclePreservesBalanceLaw(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("tranches sum to the amount and the pool keeps the rest", prop.ForAll(
		func(amount, surplus, bps uint64) bool {
			engine, paid, ok := runLifecycle(amount+surplus, amount, bps)
			if !ok {
				return false
			}
			total := new(uint256.Int).Add(paid[0].Amount, paid[1].Amount)
			if !total.Eq(uint256.NewInt(amount)) {
				return false
			}
			if !engine.TotalReleased().Eq(total) || !engine.TreasuryBalance().Eq(uint256.NewInt(surplus)) {
				return false
			}
			p, err := engine.GetProposal(1)
			return err == nil && p.Executed()
		},
		gen.UInt64Range(1, 1<<40),
		gen.UInt64Range(0, 1<<40),
		gen.UInt64Range(1, BasisPoints-1),
	))

	properties.TestingRun(t)
}
