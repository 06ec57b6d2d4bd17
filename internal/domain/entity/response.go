package entity

// ATMResponse is the envelope the HTTP API returns for every ATM endpoint.
type ATMResponse struct {
	Data          View   `json:"data"`
	Error         string `json:"error,omitempty"`
	StatusMessage string `json:"status_message"`
}

// TransferOwnershipRequest is the body of the ownership transfer endpoint.
type TransferOwnershipRequest struct {
	NewOwner string `json:"newOwner"`
}
