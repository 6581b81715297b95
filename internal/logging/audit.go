package logging

// AuditEvent records a write against the ledger or a wallet operation
type AuditEvent struct {
	Operation string // e.g. "approve_submitted", "stake_confirmed", "wallet_imported"
	Actor     string // wallet address
	Target    string // spender, stake index, keystore path
	Result    string // "success", "failure" or "pending"
	TxHash    string
	Details   string
}

// Audit logs a sensitive operation with structured fields.
// Audit events are logged at Info level with a special "audit" attribute
// to distinguish them from regular application logs.
func Audit(event AuditEvent) {
	args := []any{
		"audit", true,
		"operation", event.Operation,
		"actor", event.Actor,
		"target", event.Target,
		"result", event.Result,
	}
	if event.TxHash != "" {
		args = append(args, "tx_hash", event.TxHash)
	}
	if event.Details != "" {
		args = append(args, "details", event.Details)
	}
	Logger().Info("audit", args...)
}
