package jobstore

import (
	"fmt"
	"sort"
	"strings"
)

// Field is a mutable column of the annotations table
type Field string

const (
	FieldStatus        Field = "job_status"
	FieldCompleteTime  Field = "complete_time"
	FieldResultsBucket Field = "s3_results_bucket"
	FieldResultKey     Field = "s3_key_result_file"
	FieldLogKey        Field = "s3_key_log_file"
	FieldArchiveID     Field = "results_file_archive_id"
)

var updatableFields = map[Field]bool{
	FieldStatus:        true,
	FieldCompleteTime:  true,
	FieldResultsBucket: true,
	FieldResultKey:     true,
	FieldLogKey:        true,
	FieldArchiveID:     true,
}

// Op is a condition operator
type Op int

const (
	OpEquals Op = iota
	OpBeginsWith
	OpExists
	OpNotExists
)

// Condition is a precondition on the current record
type Condition struct {
	Field Field
	Op    Op
	Value string
}

func Equals(f Field, v string) Condition     { return Condition{Field: f, Op: OpEquals, Value: v} }
func BeginsWith(f Field, v string) Condition { return Condition{Field: f, Op: OpBeginsWith, Value: v} }
func Exists(f Field) Condition               { return Condition{Field: f, Op: OpExists} }
func NotExists(f Field) Condition            { return Condition{Field: f, Op: OpNotExists} }

// Update is a set of field writes and removals applied atomically,
// only if every condition holds
type Update struct {
	Set        map[Field]any
	Remove     []Field
	Conditions []Condition
}

// build renders the UPDATE statement with ? placeholders
func (u Update) build(jobID string) (string, []any, error) {
	if len(u.Set) == 0 && len(u.Remove) == 0 {
		return "", nil, fmt.Errorf("empty update for job %s", jobID)
	}

	fields := make([]string, 0, len(u.Set))
	for f := range u.Set {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)

	var (
		assignments []string
		args        []any
	)
	for _, f := range fields {
		if !updatableFields[Field(f)] {
			return "", nil, fmt.Errorf("field %q is not updatable", f)
		}
		assignments = append(assignments, f+" = ?")
		args = append(args, u.Set[Field(f)])
	}
	for _, f := range u.Remove {
		if !updatableFields[f] {
			return "", nil, fmt.Errorf("field %q is not updatable", f)
		}
		if _, ok := u.Set[f]; ok {
			return "", nil, fmt.Errorf("field %q both set and removed", f)
		}
		assignments = append(assignments, string(f)+" = NULL")
	}

	where := []string{"job_id = ?"}
	args = append(args, jobID)
	for _, c := range u.Conditions {
		if !updatableFields[c.Field] {
			return "", nil, fmt.Errorf("field %q cannot be used in a condition", c.Field)
		}
		switch c.Op {
		case OpEquals:
			where = append(where, string(c.Field)+" = ?")
			args = append(args, c.Value)
		case OpBeginsWith:
			where = append(where, fmt.Sprintf("substr(%s, 1, %d) = ?", c.Field, len(c.Value)))
			args = append(args, c.Value)
		case OpExists:
			where = append(where, fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", c.Field, c.Field))
		case OpNotExists:
			where = append(where, fmt.Sprintf("(%s IS NULL OR %s = '')", c.Field, c.Field))
		default:
			return "", nil, fmt.Errorf("unknown condition operator %d", c.Op)
		}
	}

	query := "UPDATE annotations SET " + strings.Join(assignments, ", ") +
		" WHERE " + strings.Join(where, " AND ")
	return query, args, nil
}
