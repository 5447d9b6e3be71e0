package dto

// CreateJobRequest is the upload-completion signal for one input object
type CreateJobRequest struct {
	Bucket string `json:"bucket" binding:"required"`
	Key    string `json:"key" binding:"required"`
}

type ListJobsRequest struct {
	UserID   string `form:"user_id" binding:"required"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID         string `json:"job_id"`
	UserID        string `json:"user_id"`
	InputFileName string `json:"input_file_name"`
	InputBucket   string `json:"s3_inputs_bucket"`
	InputKey      string `json:"s3_key_input_file"`
	Status        string `json:"job_status"`
	SubmitTime    string `json:"submit_time"`
	CompleteTime  string `json:"complete_time,omitempty"`
	ResultsBucket string `json:"s3_results_bucket,omitempty"`
	ResultKey     string `json:"s3_key_result_file,omitempty"`
	LogKey        string `json:"s3_key_log_file,omitempty"`
	Archived      bool   `json:"archived"`
	Restoring     bool   `json:"restoring"`
}

// UpgradeResponse reports a user's new tier
type UpgradeResponse struct {
	UserID string `json:"user_id"`
	Tier   string `json:"role"`
}

// WebhookResponse reports what a webhook call did
type WebhookResponse struct {
	Type     string `json:"type"`
	Received int    `json:"received,omitempty"`
	Deleted  int    `json:"deleted,omitempty"`
	Released int    `json:"released,omitempty"`
	Rejected int    `json:"rejected,omitempty"`
}
