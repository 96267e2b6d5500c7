package errors

// next_action.go maps error codes to a single primary recovery action.
// The action is surfaced verbatim to operators in CLI output and HTTP
// error responses, so entries should be short imperative sentences.

// nextActions maps stable error codes to operator guidance.
var nextActions = map[string]string{
	CodeAuthRequired:     "Scan a fresh QR code in the mobile app and pair again.",
	CodeAuthInvalidToken: "Generate a new QR code with 'meterlink pair' and rescan it.",
	CodeAuthRateLimited:  "Wait a minute before trying to pair again.",
	CodeAuthBadPayload:   "Update the mobile app; it sent a pairing message this host cannot read.",

	CodeTokenNotRunning: "Start the host with 'meterlink start' before pairing.",
	CodeTokenIssue:      "Retry; if it keeps failing, restart the host.",

	CodeServerBindFailed: "Another process is using the port; change 'addr' in config.toml or stop the other process.",
	CodeServerNotRunning: "Start the host with 'meterlink start'.",

	CodeStorageOpenFailed: "Check that the device database path is writable.",
}

// GetNextAction returns the primary recovery action for an error code.
// Returns an empty string for codes without a specific action.
func GetNextAction(code string) string {
	return nextActions[code]
}
