package processors

import (
	"database/sql"
	"testing"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
)

func seedTx(t *testing.T, db *sql.DB, accountID int64, date string, amountCents int64, payee string) int64 {
	t.Helper()
	tx := &models.Transaction{AccountID: accountID, Date: date, Payee: payee, AmountCents: amountCents}
	inserted, err := store.InsertTransaction(db, tx)
	if err != nil {
		t.Fatalf("seeding transaction: %v", err)
	}
	if !inserted {
		t.Fatal("seed transaction was deduplicated")
	}
	return tx.ID
}

func TestPairTransfersLinksOffsettingLegs(t *testing.T) {
	db := newTestDB(t)
	checking := seedAccount(t, db, "Operating Checking", models.AccountChecking)
	savings := seedAccount(t, db, "Reserve Savings", models.AccountSavings)

	outID := seedTx(t, db, checking, "2026-03-02", -50000, "Online Transfer to Savings")
	inID := seedTx(t, db, savings, "2026-03-02", 50000, "Online Transfer from Checking")
	loneID := seedTx(t, db, checking, "2026-03-02", -12999, "AWS")

	p := NewTransferProcessor(db)
	pairs, err := p.PairTransfers(checking, "2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].SourceID != outID || pairs[0].PairedID != inID || pairs[0].GroupID == "" {
		t.Fatalf("unexpected pair %+v", pairs[0])
	}

	out, err := store.GetTransactionByID(db, outID)
	if err != nil {
		t.Fatal(err)
	}
	in, err := store.GetTransactionByID(db, inID)
	if err != nil {
		t.Fatal(err)
	}
	if !out.IsTransfer || !in.IsTransfer {
		t.Fatal("both legs should be flagged as transfers")
	}
	if out.TransferGroupID == "" || out.TransferGroupID != in.TransferGroupID {
		t.Fatalf("legs should share a group id, got %q and %q", out.TransferGroupID, in.TransferGroupID)
	}
	if out.TransferAccountID == nil || *out.TransferAccountID != savings {
		t.Fatalf("outflow should point at savings, got %v", out.TransferAccountID)
	}
	if in.TransferAccountID == nil || *in.TransferAccountID != checking {
		t.Fatalf("inflow should point at checking, got %v", in.TransferAccountID)
	}

	lone, err := store.GetTransactionByID(db, loneID)
	if err != nil {
		t.Fatal(err)
	}
	if lone.IsTransfer {
		t.Fatal("unmatched row must not be flagged")
	}
}

func TestPairTransfersClaimsCounterpartOnce(t *testing.T) {
	db := newTestDB(t)
	checking := seedAccount(t, db, "Checking", models.AccountChecking)
	savings := seedAccount(t, db, "Savings", models.AccountSavings)

	// Two identical outflows but only one inflow: exactly one pair forms.
	seedTx(t, db, checking, "2026-03-05", -20000, "Transfer")
	seedTx(t, db, checking, "2026-03-05", -20000, "Transfer")
	seedTx(t, db, savings, "2026-03-05", 20000, "Transfer")

	p := NewTransferProcessor(db)
	pairs, err := p.PairTransfers(checking, "2026-03-05")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair with a single counterpart, got %d", len(pairs))
	}

	var flagged int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE is_transfer`).Scan(&flagged); err != nil {
		t.Fatal(err)
	}
	if flagged != 2 {
		t.Fatalf("expected 2 flagged legs, got %d", flagged)
	}
}

func TestPairTransfersIgnoresSameAccountAndDifferentAmount(t *testing.T) {
	db := newTestDB(t)
	checking := seedAccount(t, db, "Checking", models.AccountChecking)
	savings := seedAccount(t, db, "Savings", models.AccountSavings)

	seedTx(t, db, checking, "2026-03-07", -5000, "Refund out")
	seedTx(t, db, checking, "2026-03-07", 5000, "Refund in") // same account, never pairs
	seedTx(t, db, savings, "2026-03-07", 4999, "Interest")   // off by a cent

	p := NewTransferProcessor(db)
	pairs, err := p.PairTransfers(checking, "2026-03-07")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs, got %d", len(pairs))
	}
}

func TestPairTransfersSecondPassIsNoOp(t *testing.T) {
	db := newTestDB(t)
	checking := seedAccount(t, db, "Checking", models.AccountChecking)
	savings := seedAccount(t, db, "Savings", models.AccountSavings)

	seedTx(t, db, checking, "2026-03-09", -75000, "Transfer to Savings")
	seedTx(t, db, savings, "2026-03-09", 75000, "Transfer from Checking")

	p := NewTransferProcessor(db)
	pairs, err := p.PairTransfers(checking, "2026-03-09")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair on the first pass, got %d", len(pairs))
	}
	group := pairs[0].GroupID

	pairs, err = p.PairTransfers(checking, "2026-03-09")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 0 {
		t.Fatalf("second pass must pair nothing, got %d", len(pairs))
	}

	var groups int
	if err := db.QueryRow(`SELECT COUNT(DISTINCT transfer_group_id) FROM transactions WHERE is_transfer`).Scan(&groups); err != nil {
		t.Fatal(err)
	}
	if groups != 1 {
		t.Fatalf("expected exactly one transfer group, got %d", groups)
	}
	var kept int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE transfer_group_id = ?`, group).Scan(&kept); err != nil {
		t.Fatal(err)
	}
	if kept != 2 {
		t.Fatalf("the original group should keep both legs, got %d", kept)
	}
}
