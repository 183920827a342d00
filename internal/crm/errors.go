package crm

import "fmt"

// GatewayError describes a failed call to the CRM gateway or the token
// endpoint. Detail stays server-side; handlers surface only a generic
// upstream-unavailable message.
type GatewayError struct {
	Path   string
	Status int
	Detail string
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway call %s failed with HTTP %d: %s", e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("gateway call %s failed: %s", e.Path, e.Detail)
}
