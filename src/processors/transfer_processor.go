package processors

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
)

// TransferProcessor detects inter-account transfers: two transactions on
// the same date, in different accounts, with amounts that cancel exactly.
type TransferProcessor struct {
	db *sql.DB
}

// TransferPair is one linked transfer: the scanned leg, its counterpart and
// the group identifier both were tagged with.
type TransferPair struct {
	SourceID int64  `json:"source_id"`
	PairedID int64  `json:"paired_id"`
	GroupID  string `json:"group_id"`
}

func NewTransferProcessor(db *sql.DB) *TransferProcessor {
	return &TransferProcessor{db: db}
}

// PairTransfers scans an account's unpaired transactions on one date and links
// each to the first counterpart with the negated amount in another account.
// Each counterpart is claimed at most once per pass.
func (p *TransferProcessor) PairTransfers(accountID int64, date string) ([]TransferPair, error) {
	candidates, err := store.ListUnpairedOnDate(p.db, accountID, date)
	if err != nil {
		return nil, err
	}

	claimed := make(map[int64]bool, len(candidates))
	var pairs []TransferPair

	for i := range candidates {
		tx := &candidates[i]
		if claimed[tx.ID] {
			continue
		}
		counterparts, err := store.ListTransferCandidates(p.db, tx.AccountID, date, -tx.AmountCents)
		if err != nil {
			return pairs, err
		}
		for j := range counterparts {
			other := &counterparts[j]
			if claimed[other.ID] || other.ID == tx.ID {
				continue
			}
			groupID := uuid.NewString()
			if err := store.MarkTransferPair(p.db, tx.ID, other.ID, tx.AccountID, other.AccountID, groupID); err != nil {
				logger.L.Warn("Failed to mark transfer pair", "sourceID", tx.ID, "pairedID", other.ID, "error", err)
				break
			}
			claimed[tx.ID] = true
			claimed[other.ID] = true
			pairs = append(pairs, TransferPair{SourceID: tx.ID, PairedID: other.ID, GroupID: groupID})
			break
		}
	}
	return pairs, nil
}
