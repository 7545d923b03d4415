package main

// StackConfig holds configuration for the fleetgate CDK stack.
type StackConfig struct {
	Name                string
	MemorySize          float64
	Timeout             float64
	LambdaDistDir       string
	ReportPrefix        string
	ReportRetentionDays float64
	LogRetentionDays    float64
	GitHubAPIURL        string
	ArtifactName        string
	TokenSecretARN      string
	DestroyOnDelete     bool
}

// DefaultConfig returns a StackConfig with sensible defaults. The 900s
// timeout is the Lambda maximum; the handler stops polling a minute early.
func DefaultConfig() StackConfig {
	return StackConfig{
		Name:                "fleetgate",
		MemorySize:          256,
		Timeout:             900,
		LambdaDistDir:       "../dist/lambda",
		ReportPrefix:        "reports",
		ReportRetentionDays: 90,
		LogRetentionDays:    7,
	}
}
