package schema

import (
	"fmt"
	"strings"
)

// Violation is one broken structural rule of a workflow definition.
type Violation struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Violations collects every broken rule found while walking one workflow.
type Violations []Violation

// Add records a violation at path.
func (v *Violations) Add(path, rule, format string, args ...any) {
	*v = append(*v, Violation{Path: path, Rule: rule, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when nothing was recorded. Otherwise it returns a
// VALIDATION error naming the workflow and listing each violation.
func (v Violations) Err(workflowID string) error {
	if len(v) == 0 {
		return nil
	}
	msgs := make([]string, len(v))
	for i, x := range v {
		msgs[i] = x.Message
	}
	msg := msgs[0]
	if len(v) > 1 {
		msg = fmt.Sprintf("%d violations: %s", len(v), strings.Join(msgs, "; "))
	}
	if workflowID != "" {
		msg = fmt.Sprintf("workflow %s: %s", workflowID, msg)
	}
	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{"workflow_id": workflowID, "violations": []Violation(v)})
}
