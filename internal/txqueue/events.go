package txqueue

import (
	"github.com/rrelayer/rrelayer/internal/storage"
	"github.com/rrelayer/rrelayer/internal/webhook"
)

// webhookEvent builds the §4.8 event payload for one transaction state
// transition.
func webhookEvent(eventType string, row storage.Transaction) webhook.Event {
	fields := map[string]interface{}{
		"transaction_id": row.ID.String(),
		"status":         string(row.Status),
		"chain_id":       uint64(row.ChainID),
		"is_noop":        row.IsNoop,
	}
	if row.KnownHash != nil {
		fields["hash"] = row.KnownHash.Hex()
	}
	if row.Nonce != nil {
		fields["nonce"] = *row.Nonce
	}
	return webhook.Event{
		EventType: eventType,
		RelayerID: row.RelayerID,
		Fields:    fields,
	}
}
