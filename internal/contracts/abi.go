// Package contracts provides typed proxies over the Registry and Ticket contracts.
// Proxies hold no state and never swallow errors: every failure is returned as a
// REMOTE_CALL_ERROR carrying the node's revert reason when one was reported.
package contracts

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/registry.json
var registryABIJSON string

//go:embed abi/ticket.json
var ticketABIJSON string

var (
	// RegistryABI is the fixed interface of the event registry contract
	RegistryABI = mustParseABI("registry", registryABIJSON)
	// TicketABI is the fixed interface of a per-event ticket contract
	TicketABI = mustParseABI("ticket", ticketABIJSON)

	// TransferEventID is topic 0 of Transfer(address,address,uint256)
	TransferEventID = TicketABI.Events["Transfer"].ID
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid %s ABI: %v", name, err))
	}
	return parsed
}
