package models

// Criticality decides whether a validator failure forces the "must fix" exit tier.
type Criticality string

const (
	Critical    Criticality = "critical"
	NonCritical Criticality = "non-critical"
)

// ValidatorDescriptor is the static registration record for one validator.
type ValidatorDescriptor struct {
	// Name is the human label shown in console output.
	Name string `json:"name"`
	// Key is the stable identifier used by --only and --skip.
	Key         string      `json:"key"`
	Criticality Criticality `json:"criticality"`
	Description string      `json:"description"`
	// ReportFile is the validator-specific report filename.
	ReportFile string `json:"report_file"`
}

// IsCritical reports whether the descriptor belongs to the critical tier.
func (d ValidatorDescriptor) IsCritical() bool { return d.Criticality == Critical }
