package policy

// Mode is the policy engine's enforcement posture.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeDryRun  Mode = "dry-run" // evaluate and log, never deny
	ModeEnforce Mode = "enforce"
)

// Config controls the OPA-backed document-scoping policy engine (spec §8
// invariant 4, "Tenant isolation").
type Config struct {
	Enabled bool
	Path    string // directory of .rego policy files
	Mode    Mode

	// FailClosed determines the default decision when policies cannot be
	// loaded or evaluated: true denies, false allows (logged as degraded).
	FailClosed bool
}
