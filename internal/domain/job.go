package domain

// Job status constants. job_status only ever takes these three values;
// archival state is carried by ResultKey / ArchiveID instead.
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
)

// Job is the durable record of one annotation request
type Job struct {
	JobID         string `db:"job_id" json:"job_id"`
	UserID        string `db:"user_id" json:"user_id"`
	InputFileName string `db:"input_file_name" json:"input_file_name"`
	InputBucket   string `db:"s3_inputs_bucket" json:"s3_inputs_bucket"`
	InputKey      string `db:"s3_key_input_file" json:"s3_key_input_file"`
	SubmitTime    int64  `db:"submit_time" json:"submit_time"`
	Status        string `db:"job_status" json:"job_status"`

	CompleteTime  *int64  `db:"complete_time" json:"complete_time,omitempty"`
	ResultsBucket *string `db:"s3_results_bucket" json:"s3_results_bucket,omitempty"`
	ResultKey     *string `db:"s3_key_result_file" json:"s3_key_result_file,omitempty"`
	LogKey        *string `db:"s3_key_log_file" json:"s3_key_log_file,omitempty"`
	ArchiveID     *string `db:"results_file_archive_id" json:"results_file_archive_id,omitempty"`
}

// HasHotResult reports whether the result artifact is in hot storage
func (j *Job) HasHotResult() bool {
	return j.ResultKey != nil && *j.ResultKey != ""
}

// IsArchived reports whether the result artifact lives in cold storage
func (j *Job) IsArchived() bool {
	return j.ArchiveID != nil && *j.ArchiveID != ""
}

// Request builds the job-request payload published for this job
func (j *Job) Request() JobRequest {
	return JobRequest{
		JobID:         j.JobID,
		UserID:        j.UserID,
		InputBucket:   j.InputBucket,
		InputKey:      j.InputKey,
		InputFileName: j.InputFileName,
		SubmitTime:    j.SubmitTime,
		Status:        j.Status,
	}
}

// Tier is a user's subscription level
type Tier string

const (
	TierFree    Tier = "free_user"
	TierPremium Tier = "premium_user"
)

func (t Tier) IsPremium() bool {
	return t == TierPremium
}

// Cold storage retrieval tiers
const (
	RetrievalExpedited = "Expedited"
	RetrievalStandard  = "Standard"
)

// RetrievalSucceeded is the StatusCode of a successful retrieval completion
const RetrievalSucceeded = "Succeeded"
