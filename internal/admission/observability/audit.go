// Package observability provides audit logging helpers for the admission module.
package observability

import (
	"context"
	"log/slog"

	"auditgate/pkg/requestcontext"
)

// Event is an audit record for a security- or billing-relevant decision.
type Event struct {
	Action    string
	Subject   string
	RequestID string
	Reason    string
}

// AuditPublisher emits audit events for admission decisions.
type AuditPublisher interface {
	Emit(ctx context.Context, event Event) error
}

// LogAudit is a shared helper for logging audit events across admission
// services. It logs to both the structured logger and the audit publisher if
// available.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event string, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	if family := requestcontext.BrowserFamily(ctx); family != "" {
		attrList = append(attrList, "browser_family", family)
	}

	args := append(attrList, "event", event, "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, event, args...)
	}

	if publisher == nil {
		return
	}

	// Extract subject from common identifier fields
	subject := extractString(attrList, "identifier")
	if subject == "" {
		subject = extractString(attrList, "user_id")
	}
	reason := extractString(attrList, "reason")

	if err := publisher.Emit(ctx, Event{
		Action:    event,
		Subject:   subject,
		RequestID: requestID,
		Reason:    reason,
	}); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}

// extractString finds the string value following key in an alternating
// key/value attribute list.
func extractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(string); ok {
			return v
		}
	}
	return ""
}
