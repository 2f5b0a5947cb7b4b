package ports

// Capability names a privileged protocol operation.
type Capability string

const (
	CapMatch     Capability = "match"
	CapSettle    Capability = "settle"
	CapSweep     Capability = "sweep"
	CapArbitrate Capability = "arbitrate"
	CapAdmin     Capability = "admin"
)

// Authorizer verifies caller-presented capability tokens.
type Authorizer interface {
	HasCapability(token string, kind Capability) bool
}
