package protocol

// StatusOK is the success code carried by ack payloads.
const StatusOK = 200

// AllocationRequest is the Allocation payload sent right after the control
// channel connects, advertising the client software version.
type AllocationRequest struct {
	Software string `json:"software"`
}

// AllocationAck is the relay's answer to an Allocation request. A non-200
// code is fatal for the control session. RelayAddress is the rendezvous
// the relay allocated for this client; it is recorded for diagnostics only.
type AllocationAck struct {
	Code         int    `json:"code"`
	RelayAddress string `json:"relay_address"`
}

// BindRequest is the ConnectionBind payload sent on a fresh data channel
// to associate it with a connection id minted by the relay.
type BindRequest struct {
	ConnectionID string `json:"connection_id"`
}

// BindAck is the relay's answer to a ConnectionBind request. Code 200
// switches the data session into opaque relay mode.
type BindAck struct {
	Code int `json:"code"`
}

// ConnectionAttempt notifies the client that a remote peer wants to reach
// the tunneled service. DataAddress is the "host:port" endpoint the client
// must open its data channel to.
type ConnectionAttempt struct {
	ConnectionID string `json:"connection_id"`
	DataAddress  string `json:"data_address"`
}
