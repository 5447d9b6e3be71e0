package domain

import (
	"encoding/json"
	"fmt"
)

// JobRequest is published by the submitter and consumed by the dispatcher
type JobRequest struct {
	JobID         string `json:"job_id"`
	UserID        string `json:"user_id"`
	InputBucket   string `json:"s3_inputs_bucket"`
	InputKey      string `json:"s3_key_input_file"`
	InputFileName string `json:"input_file_name"`
	SubmitTime    int64  `json:"submit_time,omitempty"`
	Status        string `json:"job_status,omitempty"`
}

func (r JobRequest) Validate() error {
	return requireFields(map[string]string{
		"job_id":            r.JobID,
		"user_id":           r.UserID,
		"s3_inputs_bucket":  r.InputBucket,
		"s3_key_input_file": r.InputKey,
		"input_file_name":   r.InputFileName,
	})
}

// ArchivalRequest announces that a completed job's result may be archived
type ArchivalRequest struct {
	UserID        string `json:"user_id"`
	JobID         string `json:"job_id"`
	ResultsBucket string `json:"results_bucket"`
	ResultKey     string `json:"annofile_path_s3"`
}

func (r ArchivalRequest) Validate() error {
	return requireFields(map[string]string{
		"user_id":          r.UserID,
		"job_id":           r.JobID,
		"results_bucket":   r.ResultsBucket,
		"annofile_path_s3": r.ResultKey,
	})
}

// UpgradeEvent announces that a user moved to the premium tier
type UpgradeEvent struct {
	UserID string `json:"user_id"`
}

func (e UpgradeEvent) Validate() error {
	return requireFields(map[string]string{"user_id": e.UserID})
}

// RetrievalCompletion is emitted by cold storage when a retrieval job finishes.
// JobDescription carries the pipeline job_id.
type RetrievalCompletion struct {
	RetrievalJobID string `json:"JobId"`
	JobDescription string `json:"JobDescription"`
	StatusCode     string `json:"StatusCode"`
	ArchiveID      string `json:"ArchiveId"`
}

func (c RetrievalCompletion) Validate() error {
	return requireFields(map[string]string{
		"JobId":          c.RetrievalJobID,
		"JobDescription": c.JobDescription,
		"StatusCode":     c.StatusCode,
		"ArchiveId":      c.ArchiveID,
	})
}

// Succeeded reports whether the retrieval produced readable bytes
func (c RetrievalCompletion) Succeeded() bool {
	return c.StatusCode == RetrievalSucceeded
}

// Decode unmarshals a payload and validates it, mapping every failure to ErrMalformedMessage
func Decode[T interface{ Validate() error }](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := v.Validate(); err != nil {
		return v, err
	}
	return v, nil
}

func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: missing field %q", ErrMalformedMessage, name)
		}
	}
	return nil
}
