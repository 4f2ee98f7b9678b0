package cache

import "fmt"

func PositionKey(id uint) string {
	return fmt.Sprintf("position:%d", id)
}

// PositionsByWalletKey is the set of position ids held by a wallet.
func PositionsByWalletKey(wallet string) string {
	return "positions:wallet:" + wallet
}

// PositionsByTokenKey is the set of position ids open in a token.
func PositionsByTokenKey(token string) string {
	return "positions:token:" + token
}

func BalanceKey(wallet, token string) string {
	return fmt.Sprintf("balance:%s:%s", wallet, token)
}

// BalancesByWalletKey is the set of token addresses with a cached balance for a wallet.
func BalancesByWalletKey(wallet string) string {
	return "balances:wallet:" + wallet
}

func AgentConfigKey(agentID uint) string {
	return fmt.Sprintf("agent:config:%d", agentID)
}

func LockKey(resource string) string {
	return "lock:" + resource
}
