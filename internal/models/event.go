package models

// UnknownEventName is shown for events whose details could not be read
const UnknownEventName = "Unknown event"

// EventSummary represents one ticketed event read from its ticket contract
type EventSummary struct {
	ContractAddress string `json:"contract_address"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol,omitempty"`
	MaxSupply       uint64 `json:"max_supply"`
	TicketsMinted   uint64 `json:"tickets_minted"`
	Placeholder     bool   `json:"placeholder,omitempty"`
}

// PlaceholderEvent builds the record shown when an event's details cannot be read
func PlaceholderEvent(contractAddress string) EventSummary {
	return EventSummary{
		ContractAddress: contractAddress,
		Name:            UnknownEventName,
		Placeholder:     true,
	}
}

// Available returns how many tickets can still be minted
func (e EventSummary) Available() uint64 {
	if e.TicketsMinted >= e.MaxSupply {
		return 0
	}
	return e.MaxSupply - e.TicketsMinted
}

// SoldOut reports whether every ticket has been minted
func (e EventSummary) SoldOut() bool {
	return e.TicketsMinted >= e.MaxSupply
}

// TicketsMintedFromNext derives the minted count from the contract's next token id.
// Token ids start at 1, so a counter of 1 means nothing was minted yet.
func TicketsMintedFromNext(nextTokenID uint64) uint64 {
	if nextTokenID == 0 {
		return 0
	}
	return nextTokenID - 1
}
