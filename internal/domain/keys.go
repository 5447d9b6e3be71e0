package domain

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const (
	resultSuffix = ".annot.vcf"
	logSuffix    = ".count.log"
)

// ParseInputKey splits an upload key of the form <prefix>/<user_id>/<job_id>~<filename>
func ParseInputKey(key string) (userID, jobID, fileName string, err error) {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("%w: key %q has no user segment", ErrMalformedMessage, key)
	}

	userID = parts[len(parts)-2]
	jobID, fileName, found := strings.Cut(parts[len(parts)-1], "~")
	if !found || userID == "" || jobID == "" {
		return "", "", "", fmt.Errorf("%w: key %q is not <user_id>/<job_id>~<filename>", ErrMalformedMessage, key)
	}
	if fileName == "" {
		return "", "", "", ErrMissingAttachment
	}

	return userID, jobID, fileName, nil
}

// ResultFileName maps an input file name to its annotated output name
func ResultFileName(inputFileName string) string {
	return strings.TrimSuffix(inputFileName, filepath.Ext(inputFileName)) + resultSuffix
}

// LogFileName maps an input file name to its annotation log name
func LogFileName(inputFileName string) string {
	return inputFileName + logSuffix
}

// ArtifactKey is the deterministic hot-tier key for a job artifact
func ArtifactKey(prefix, userID, jobID, fileName string) string {
	return path.Join(prefix, userID, jobID+"~"+fileName)
}
