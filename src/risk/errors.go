package risk

import (
	"fmt"

	"agentengine/src/apperrors"

	"github.com/shopspring/decimal"
)

func ErrInsufficientBalance(balance decimal.Decimal) error {
	return apperrors.InsufficientResource(apperrors.CodeInsufficientBalance,
		fmt.Sprintf("balance %s SOL is not positive", balance))
}

func ErrBelowMinimumThreshold(balance decimal.Decimal, minimum float64) error {
	return apperrors.InsufficientResource(apperrors.CodeBelowMinimumThreshold,
		fmt.Sprintf("balance %s SOL is below the minimum threshold %v", balance, minimum))
}

func ErrInsufficientBalanceForMinimum(balance decimal.Decimal, reserve float64) error {
	return apperrors.InsufficientResource(apperrors.CodeInsufficientBalanceForMinimum,
		fmt.Sprintf("balance %s SOL leaves nothing to buy after keeping %v SOL", balance, reserve))
}
