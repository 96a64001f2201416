package types

import "fmt"

// Known Synology AppPortal error codes the gateway classifies.
const (
	StoreCodeDomainRejected = 4154
	StoreCodeBadParameter   = 101
)

// StoreError is a rejection returned by the proxy-rule store, carrying the
// provider error code so callers can classify known failures.
type StoreError struct {
	Op   string
	Code int
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s rejected by store (error code %d)", e.Op, e.Code)
}
