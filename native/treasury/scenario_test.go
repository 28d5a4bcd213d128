package treasury

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"fundtreasury/core/events"
)

func TestHospitalDisbursementScenario(t *testing.T) {
	engine, capture := newTestEngine(t, DefaultParams())

	require.NoError(t, engine.DepositFunds(outsider, ether(2)))
	require.True(t, engine.TreasuryBalance().Eq(ether(2)))

	id, err := engine.SubmitProposal(outsider, "Build a hospital", ether(2), recipient)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	require.NoError(t, engine.VoteOnProposal(authA, id))
	require.NoError(t, engine.VoteOnProposal(authB, id))
	p, err := engine.GetProposal(id)
	require.NoError(t, err)
	require.True(t, p.Approved())
	require.Equal(t, uint64(2), p.Votes())

	first, err := engine.ReleaseInitialFunds(owner, id)
	require.NoError(t, err)
	require.True(t, first.Amount.Eq(ether(1)))
	require.True(t, engine.TreasuryBalance().Eq(ether(1)))

	details, err := engine.GetProposalStageDetails(id)
	require.NoError(t, err)
	require.Equal(t, uint8(1), details.CurrentStage)
	require.Equal(t, uint8(TotalStages), details.TotalStages)

	require.NoError(t, engine.SubmitStageReport(recipient, id, "Hospital foundation complete"))
	details, err = engine.GetProposalStageDetails(id)
	require.NoError(t, err)
	require.True(t, details.StageLocked)
	require.Equal(t, "Hospital foundation complete", details.StageReport)

	require.NoError(t, engine.ApproveStage(authA, id))
	require.NoError(t, engine.ApproveStage(authB, id))

	second, err := engine.ReleaseNextStageFunds(owner, id)
	require.NoError(t, err)
	require.True(t, second.Amount.Eq(ether(1)))
	require.True(t, engine.TreasuryBalance().IsZero())

	p, err = engine.GetProposal(id)
	require.NoError(t, err)
	require.True(t, p.Executed())
	require.True(t, p.Released.Eq(ether(2)))

	transfers := engine.DrainTransfers()
	require.Len(t, transfers, 2)
	for _, tr := range transfers {
		require.Equal(t, recipient, tr.Recipient)
	}

	require.Equal(t, []string{
		events.TypeTreasuryDeposit,
		events.TypeTreasuryProposalSubmitted,
		events.TypeTreasuryProposalVoted,
		events.TypeTreasuryProposalVoted,
		events.TypeTreasuryProposalApproved,
		events.TypeTreasuryFundsReleased,
		events.TypeTreasuryStageReported,
		events.TypeTreasuryStageApproved,
		events.TypeTreasuryStageApproved,
		events.TypeTreasuryStageCleared,
		events.TypeTreasuryFundsReleased,
		events.TypeTreasuryProposalExecuted,
	}, capture.types())
}

func TestBalanceLawAcrossLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultParams())
	require.NoError(t, engine.DepositFunds(outsider, uint256.NewInt(1_000)))

	check := func() {
		t.Helper()
		sum := new(uint256.Int).Add(engine.TreasuryBalance(), engine.TotalReleased())
		require.True(t, sum.Eq(engine.TotalDeposited()), "balance + released must equal deposits")
	}

	ids := make([]uint64, 0, 3)
	for _, amount := range []uint64{101, 250, 999} {
		id, err := engine.SubmitProposal(outsider, "grant", uint256.NewInt(amount), recipient)
		require.NoError(t, err)
		ids = append(ids, id)
		approve(t, engine, id)
	}
	for _, id := range ids {
		_, err := engine.ReleaseInitialFunds(owner, id)
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientTreasury)
		}
		check()
	}
	require.NoError(t, engine.SubmitStageReport(recipient, ids[0], "halfway"))
	approveStage(t, engine, ids[0])
	_, err := engine.ReleaseNextStageFunds(owner, ids[0])
	require.NoError(t, err)
	check()

	_, err = engine.ReleaseInitialFunds(owner, ids[2])
	require.ErrorIs(t, err, ErrInsufficientTreasury)
	check()
}

func TestSnapshotRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultParams())
	require.NoError(t, engine.DepositFunds(outsider, ether(10)))
	funded, err := engine.SubmitProposal(outsider, "School roof", ether(4), recipient)
	require.NoError(t, err)
	approve(t, engine, funded)
	_, err = engine.ReleaseInitialFunds(owner, funded)
	require.NoError(t, err)
	require.NoError(t, engine.SubmitStageReport(recipient, funded, "roof framed"))
	require.NoError(t, engine.ApproveStage(authC, funded))
	pending, err := engine.SubmitProposal(authA, "Well", ether(1), recipient)
	require.NoError(t, err)
	require.NoError(t, engine.VoteOnProposal(authA, pending))

	raw, err := json.Marshal(engine.Export())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	restored, err := Restore(snap, DefaultParams())
	require.NoError(t, err)
	require.Equal(t, engine.Export(), restored.Export())
	require.Equal(t, engine.Authorities(), restored.Authorities())

	// the restored engine continues the lifecycle where the original stopped
	require.ErrorIs(t, restored.ApproveStage(authC, funded), ErrAlreadyApprovedStage)
	require.NoError(t, restored.ApproveStage(authA, funded))
	_, err = restored.ReleaseNextStageFunds(owner, funded)
	require.NoError(t, err)
	require.ErrorIs(t, restored.VoteOnProposal(authA, pending), ErrAlreadyVoted)
	next, err := restored.SubmitProposal(outsider, "Clinic", ether(1), recipient)
	require.NoError(t, err)
	require.Equal(t, uint64(3), next)
}

func TestRestoreRejectsInconsistentSnapshot(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultParams())
	require.NoError(t, engine.DepositFunds(outsider, ether(1)))

	snap := engine.Export()
	snap.Balance = ether(2).Dec()
	_, err := Restore(snap, DefaultParams())
	require.Error(t, err)

	snap = engine.Export()
	snap.Proposals = append(snap.Proposals, ProposalSnapshot{ID: 5, Amount: "1", Released: "0"})
	_, err = Restore(snap, DefaultParams())
	require.Error(t, err)

	snap = engine.Export()
	snap.RequiredApprovals = 9
	_, err = Restore(snap, DefaultParams())
	require.Error(t, err)
}
