package constant

type JobStatus string

// STARTED is the only non-terminal status. FAILED_START and FAILED have no
// transition producing them yet.
const (
	JobStatusStarted     JobStatus = "STARTED"
	JobStatusFailedStart JobStatus = "FAILED_START"
	JobStatusFailed      JobStatus = "FAILED"
	JobStatusCompleted   JobStatus = "COMPLETED"
)

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusStarted, JobStatusFailedStart, JobStatusFailed, JobStatusCompleted:
		return true
	}
	return false
}

// Retry protocol. The counter travels with the message so the bound holds
// across restarts and redeliveries.
const (
	RetryCountHeader = "X-RETRY-COUNT"
	MaxRetries       = 3
)

// Object storage layout shared by the upload URL generator and the unboxing job.
const (
	RawBucket       = "raw"
	UploadedPrefix  = "uploaded"
	UnboxedPrefix   = "unboxed"
	StorageScheme   = "s3"
	ContentTypeJSON = "application/json"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
