package treasury

import (
	"fmt"

	"fundtreasury/crypto"
)

// ProposalStore owns every proposal ever submitted. Identifiers are dense
// and start at 1, so the record for id lives at index id-1.
type ProposalStore struct {
	proposals []*Proposal
}

// NewProposalStore returns an empty store.
func NewProposalStore() *ProposalStore { return &ProposalStore{} }

// Count returns the number of proposals, which is also the latest id.
func (s *ProposalStore) Count() uint64 { return uint64(len(s.proposals)) }

// NextID returns the identifier the next appended proposal receives.
func (s *ProposalStore) NextID() uint64 { return s.Count() + 1 }

// Get returns a copy of the proposal.
func (s *ProposalStore) Get(id uint64) (*Proposal, error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// List returns copies of all proposals ordered by id.
func (s *ProposalStore) List() []*Proposal {
	out := make([]*Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p.Clone())
	}
	return out
}

func (s *ProposalStore) lookup(id uint64) (*Proposal, error) {
	if id == 0 || id > s.Count() {
		return nil, fmt.Errorf("%w: id %d", ErrProposalNotFound, id)
	}
	return s.proposals[id-1], nil
}

func (s *ProposalStore) append(p *Proposal) uint64 {
	p.ID = s.NextID()
	s.proposals = append(s.proposals, p)
	return p.ID
}

func (s *ProposalStore) recordVote(p *Proposal, voter crypto.Address) error {
	if p.HasVoted(voter) {
		return ErrAlreadyVoted
	}
	p.Voters = append(p.Voters, voter)
	return nil
}

func (s *ProposalStore) recordStageApproval(p *Proposal, approver crypto.Address) error {
	if p.HasApprovedStage(approver) {
		return ErrAlreadyApprovedStage
	}
	p.StageApprovers = append(p.StageApprovers, approver)
	return nil
}
