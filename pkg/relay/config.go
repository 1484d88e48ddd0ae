package relay

import (
	internalcfg "github.com/tokligence/tokligence-relay/internal/config"
)

// Config re-exports the relay's configuration structure so downstream
// integrations can reuse the same parsed values without importing internal
// packages.
type Config = internalcfg.RelayConfig

// LoadConfig delegates to the internal loader while keeping the consumer API
// inside the public pkg/relay namespace.
func LoadConfig(root string) (Config, error) {
	return internalcfg.LoadRelayConfig(root)
}
