package types

// ProjectConfig is the top-level fleetgate.yaml configuration.
type ProjectConfig struct {
	GitHub              GitHubConfig    `yaml:"github" json:"github"`
	ArtifactName        string          `yaml:"artifactName,omitempty" json:"artifactName,omitempty"`
	PollTimeoutSec      int             `yaml:"pollTimeoutSec,omitempty" json:"pollTimeoutSec,omitempty"`
	PollInitialSec      float64         `yaml:"pollInitialSec,omitempty" json:"pollInitialSec,omitempty"`
	PollMaxSec          float64         `yaml:"pollMaxSec,omitempty" json:"pollMaxSec,omitempty"`
	Concurrency         int             `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	CorrelationLookback int             `yaml:"correlationLookback,omitempty" json:"correlationLookback,omitempty"`
	ThresholdsFile      string          `yaml:"thresholdsFile,omitempty" json:"thresholdsFile,omitempty"`
	DispatchTable       *DynamoDBConfig `yaml:"dispatchTable,omitempty" json:"dispatchTable,omitempty"`
	Alerts              []AlertConfig   `yaml:"alerts,omitempty" json:"alerts,omitempty"`
	Archive             *ArchiveConfig  `yaml:"archive,omitempty" json:"archive,omitempty"`
	Events              *EventsConfig   `yaml:"events,omitempty" json:"events,omitempty"`
}

// GitHubConfig configures the CI provider REST client.
type GitHubConfig struct {
	APIURL         string         `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"`
	Token          string         `yaml:"token,omitempty" json:"-"`
	TokenSecretARN string         `yaml:"tokenSecretArn,omitempty" json:"tokenSecretArn,omitempty"`
	TimeoutSec     int            `yaml:"timeoutSec,omitempty" json:"timeoutSec,omitempty"`
	Breaker        *BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`
}

// BreakerConfig configures the circuit breaker in front of the provider API.
type BreakerConfig struct {
	FailThreshold int    `yaml:"failThreshold,omitempty" json:"failThreshold,omitempty"`
	Cooldown      string `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
	FailWindow    string `yaml:"failWindow,omitempty" json:"failWindow,omitempty"`
}

// DynamoDBConfig locates the table holding dispatch records.
type DynamoDBConfig struct {
	TableName string `yaml:"tableName" json:"tableName"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// AlertConfig configures a single alert sink.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	QueueURL string    `yaml:"queueUrl,omitempty" json:"queueUrl,omitempty"`
	Bucket   string    `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix   string    `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// ArchiveConfig configures where the aggregate report is archived.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket" json:"bucket"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	BusName string `yaml:"busName" json:"busName"`
	Source  string `yaml:"source,omitempty" json:"source,omitempty"`
}
