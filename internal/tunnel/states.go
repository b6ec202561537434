package tunnel

// State tracks one CONNECT request through its lifecycle. Rejected is a
// terminal state reachable from every validation step.
type State string

const (
	StateReceived          State = "received"
	StateHeadersValidated  State = "headers_validated"
	StateConfigExtracted   State = "config_extracted"
	StateVersionChecked    State = "version_checked"
	StateTokenVerified     State = "token_verified"
	StateUpstreamSelected  State = "upstream_selected"
	StateDNSResolved       State = "dns_resolved"
	StateTunnelEstablished State = "tunnel_established"
	StatePiping            State = "piping"
	StateClosed            State = "closed"
	StateRejected          State = "rejected"
)
