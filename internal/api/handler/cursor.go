package handler

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
)

// DecodeJobCursor parses a page cursor. An empty string is the first page.
func DecodeJobCursor(cursorStr string) (*jobstore.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	submitTime, jobID, found := strings.Cut(string(decoded), "|")
	if !found || jobID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var ts int64
	if _, err := fmt.Sscanf(submitTime, "%d", &ts); err != nil {
		return nil, fmt.Errorf("invalid submit_time in cursor: %w", err)
	}

	return &jobstore.Cursor{SubmitTime: ts, JobID: jobID}, nil
}

func EncodeJobCursor(cursor *jobstore.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.SubmitTime, cursor.JobID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
