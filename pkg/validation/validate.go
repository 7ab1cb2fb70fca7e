// Package validation checks entities before the store touches the backend.
// Violations are reported with plain descriptive errors; the store maps them
// into its error taxonomy. Key-encoding preconditions (delimiter rules,
// timestamp range) are delegated to pkg/keys so they fail identically here
// and at encode time.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"historydb/pkg/keys"
	"historydb/pkg/models"
)

// ValidateIdentity checks the identifier segments of a caller scope.
// tenantID is optional; orgID and userID are required.
func ValidateIdentity(orgID, tenantID, userID string) error {
	if err := keys.CheckID(orgID); err != nil {
		return fmt.Errorf("org_id: %w", err)
	}
	if tenantID != "" {
		if err := keys.CheckID(tenantID); err != nil {
			return fmt.Errorf("tenant_id: %w", err)
		}
	}
	if err := keys.CheckID(userID); err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	return nil
}

// ValidateMessage checks a message prior to append.
func ValidateMessage(m models.Message) error {
	var errs []string
	if err := keys.CheckID(m.ThreadID); err != nil {
		return fmt.Errorf("thread_id: %w", err)
	}
	if m.MessageID != "" {
		if err := keys.CheckID(m.MessageID); err != nil {
			return fmt.Errorf("message_id: %w", err)
		}
	}
	if err := keys.CheckTimestamp(m.Timestamp); err != nil {
		return err
	}
	if !m.Role.Valid() {
		errs = append(errs, fmt.Sprintf("unknown role %q", m.Role))
	}
	if m.Content.IsZero() {
		errs = append(errs, "content is required")
	}
	if m.Role == models.RoleUser {
		if m.StopReason != "" {
			errs = append(errs, "stop_reason is only valid on assistant messages")
		}
		if len(m.ResponseMetadata) > 0 {
			errs = append(errs, "response_metadata is only valid on assistant messages")
		}
	}
	if m.Verso != "" && !m.Verso.Valid() {
		errs = append(errs, fmt.Sprintf("unknown feedback direction %q", m.Verso))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateFeedbackDirection checks a direction supplied to a feedback update.
func ValidateFeedbackDirection(d models.FeedbackDirection) error {
	if !d.Valid() {
		return fmt.Errorf("unknown feedback direction %q", d)
	}
	return nil
}
