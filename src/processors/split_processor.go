package processors

import (
	"errors"
	"fmt"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
)

var ErrUnbalancedSplits = errors.New("split legs do not sum to zero")

// ValidateSplits checks the double-entry invariant for a split set: at
// least two legs, summing to zero cents with the funding leg included.
func ValidateSplits(splits []models.TransactionSplit) error {
	if len(splits) < 2 {
		return fmt.Errorf("a split transaction needs at least 2 legs, got %d", len(splits))
	}
	var sum int64
	for i := range splits {
		sum += splits[i].AmountCents
	}
	if sum != 0 {
		return fmt.Errorf("%w: split sum %d", ErrUnbalancedSplits, sum)
	}
	return nil
}

// BuildPaymentSplits constructs the legs of a loan payment: the funding
// outflow plus the principal and interest components it breaks into. The
// resulting set sums to zero cents and is validated before it is returned.
func BuildPaymentSplits(amountCents, principalCents, interestCents int64, principalCategoryID, interestCategoryID int64) ([]models.TransactionSplit, error) {
	if principalCents == 0 && interestCents == 0 {
		return nil, errors.New("payment breakdown has no principal or interest component")
	}
	splits := []models.TransactionSplit{
		{AmountCents: amountCents, Memo: "Payment"},
		{CategoryID: &principalCategoryID, AmountCents: principalCents, Memo: "Principal"},
		{CategoryID: &interestCategoryID, AmountCents: interestCents, Memo: "Interest"},
	}
	if err := ValidateSplits(splits); err != nil {
		return nil, fmt.Errorf("payment %d, principal %d, interest %d: %w",
			amountCents, principalCents, interestCents, err)
	}
	return splits, nil
}
