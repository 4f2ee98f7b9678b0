package connectors

import (
	"fmt"

	"agentengine/src/apperrors"
)

// Trade executor error codes.
const (
	ExecCodeInsufficientBalance = apperrors.CodeInsufficientBalance
	ExecCodeSlippageExceeded    = "SLIPPAGE_EXCEEDED"
	ExecCodeNoRoute             = "NO_ROUTE"
	ExecCodeTokenNotTradable    = "TOKEN_NOT_TRADABLE"
	ExecCodeInvalidAmount       = "INVALID_AMOUNT"
	ExecCodeWalletNotFound      = apperrors.CodeWalletNotFound
	ExecCodeTransactionExpired  = "TRANSACTION_EXPIRED"
	ExecCodeRPCUnavailable      = "RPC_UNAVAILABLE"
	ExecCodeUnknown             = "EXECUTOR_ERROR"
)

// ExecutorErrorCodes maps executor codes to the kind callers branch on.
var ExecutorErrorCodes = map[string]apperrors.Kind{
	ExecCodeInsufficientBalance: apperrors.KindInsufficientResource,  // wallet cannot cover amount plus fees
	ExecCodeSlippageExceeded:    apperrors.KindDependencyUnavailable, // price moved past tolerance
	ExecCodeNoRoute:             apperrors.KindDependencyUnavailable, // no liquidity route for the pair
	ExecCodeTokenNotTradable:    apperrors.KindValidation,            // frozen or unknown mint
	ExecCodeInvalidAmount:       apperrors.KindValidation,            // zero, negative or dust amount
	ExecCodeWalletNotFound:      apperrors.KindNotFound,              // executor holds no key for wallet
	ExecCodeTransactionExpired:  apperrors.KindDependencyUnavailable, // blockhash expired before landing
	ExecCodeRPCUnavailable:      apperrors.KindDependencyUnavailable, // upstream RPC down
}

// executorError turns an executor error body into a code-bearing error. Unknown codes
// keep their code and count as dependency failures.
func executorError(status int, code, message string) error {
	if code == "" {
		code = ExecCodeUnknown
	}
	kind, ok := ExecutorErrorCodes[code]
	if !ok {
		kind = apperrors.KindDependencyUnavailable
	}
	if message == "" {
		message = fmt.Sprintf("trade executor returned HTTP %d", status)
	}
	return apperrors.New(kind, code, message)
}
