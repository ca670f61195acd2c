package config

// Contract names used as sync cursor keys. Dynamically discovered agent share
// contracts use SharesCursorName(addr) instead.
const (
	AgentRegistryContract  = "agent_registry"
	TaskAuctionContract    = "task_auction"
	ServiceAuctionContract = "service_auction"
	PartnershipContract    = "partnership"
	TreasuryContract       = "treasury"
	AgentSharesContract    = "agent_shares"
)

// Default deployment addresses, overridable via environment.
const (
	DefaultAgentRegistryAddress  = "0x6E2d4B3fC7bF3C2dA93c39E2Eb57b4d0B0f4a5c1"
	DefaultTaskAuctionAddress    = "0x1b8E54F0cC2aD4b8f06e1e57C6d3a0D4Ed9B7a42"
	DefaultServiceAuctionAddress = "0x9C5dA1b86C3F0A2E84b6D9c11F0b3a7D25E8c6F3"
	DefaultPartnershipAddress    = "0x4F7a2C9eB10d5E6fA83B4D7c02a9E1C85d3B6A90"
	DefaultTreasuryAddress       = "0xE30b6a85D92C4F1e7B5a8C0d63F2E9b14A7D5c28"
)

// SharesCursorName returns the cursor key for a dynamically discovered
// per-agent shares contract.
func SharesCursorName(address string) string {
	return AgentSharesContract + ":" + address
}
