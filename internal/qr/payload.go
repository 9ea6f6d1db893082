// Package qr classifies scanned QR payloads and encodes the payloads tickets carry.
package qr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// Kind tags the shape of a scanned payload
type Kind string

const (
	KindJSON   Kind = "json"
	KindTicket Kind = "ticket"
	KindText   Kind = "text"
)

const ticketPrefix = "ticket"

// TicketFields are the parts of a ticket:<owner>:<id> string
type TicketFields struct {
	Owner   string `json:"owner"`
	TokenID string `json:"token_id"`
}

// ParsedTokenID returns the token id as a number
func (t TicketFields) ParsedTokenID() (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(t.TokenID), 10, 64)
}

// Payload is the classified form of a scanned string. Exactly one of JSON and
// Ticket is set for the structured kinds; Text payloads only carry Raw.
type Payload struct {
	Kind        Kind            `json:"kind"`
	Raw         string          `json:"raw"`
	JSON        json.RawMessage `json:"json,omitempty"`
	Ticket      *TicketFields   `json:"ticket,omitempty"`
	DisplayText string          `json:"display_text"`
}

// Classify never fails. JSON takes precedence, then the ticket string format,
// and anything else is plain text.
func Classify(raw string) Payload {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return Payload{
			Kind:        KindJSON,
			Raw:         raw,
			JSON:        json.RawMessage(trimmed),
			DisplayText: "Data: " + indentJSON(trimmed),
		}
	}

	parts := strings.Split(trimmed, ":")
	if len(parts) == 3 && parts[0] == ticketPrefix {
		fields := &TicketFields{Owner: parts[1], TokenID: parts[2]}
		return Payload{
			Kind:        KindTicket,
			Raw:         raw,
			Ticket:      fields,
			DisplayText: fmt.Sprintf("Ticket #%s - Owner: %s", fields.TokenID, utils.ShortAddress(fields.Owner)),
		}
	}

	return Payload{Kind: KindText, Raw: raw, DisplayText: raw}
}

func indentJSON(raw string) string {
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return raw
	}
	return string(pretty)
}

// TicketDocument is the JSON payload rendered on a ticket
type TicketDocument struct {
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
	Owner           string `json:"owner"`
}

// TicketDocument decodes a JSON payload that describes a ticket. The second
// result is false when the payload is not a complete ticket document.
func (p Payload) TicketDocument() (TicketDocument, bool) {
	if p.Kind != KindJSON {
		return TicketDocument{}, false
	}
	var doc struct {
		ContractAddress string      `json:"contractAddress"`
		TokenID         json.Number `json:"tokenId"`
		Owner           string      `json:"owner"`
	}
	if err := json.Unmarshal(p.JSON, &doc); err != nil {
		return TicketDocument{}, false
	}
	if doc.ContractAddress == "" || doc.TokenID == "" || doc.Owner == "" {
		return TicketDocument{}, false
	}
	return TicketDocument{ContractAddress: doc.ContractAddress, TokenID: doc.TokenID.String(), Owner: doc.Owner}, true
}

// EncodeJSON renders the JSON payload for a ticket
func EncodeJSON(contractAddress string, tokenID uint64, owner string) (string, error) {
	data, err := json.Marshal(TicketDocument{
		ContractAddress: contractAddress,
		TokenID:         strconv.FormatUint(tokenID, 10),
		Owner:           owner,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EncodeTicket renders the ticket:<owner>:<id> string for a ticket
func EncodeTicket(owner string, tokenID uint64) string {
	return fmt.Sprintf("%s:%s:%d", ticketPrefix, owner, tokenID)
}
