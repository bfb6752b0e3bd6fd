package redis

import "fmt"

func tokenKey(keyPrefix string, value string) string {
	return fmt.Sprintf("%vtoken:%v", keyPrefix, value)
}

// taskTokensKey returns the key for the SET of token values issued for a task
func taskTokensKey(keyPrefix string, taskID string) string {
	return fmt.Sprintf("%vtask-tokens:%v", keyPrefix, taskID)
}

// tokensByCreation returns the key for the ZSET of all tokens scored by
// creation time in unix milliseconds.
func tokensByCreation(keyPrefix string) string {
	return keyPrefix + "tokens-by-creation"
}

// tokensExpiring returns the key for the ZSET of all tokens scored by expiry
// in unix milliseconds.
func tokensExpiring(keyPrefix string) string {
	return keyPrefix + "tokens-expiring"
}
