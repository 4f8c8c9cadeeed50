package core

import "time"

// StatusRecord is the authoritative per-message delivery record held in the
// remote store. Fields are additive: they are appended as the status
// advances and never removed, so a record that reached "read" still carries
// its sent/delivered timestamps.
type StatusRecord struct {
	Status      Status
	SendingAt   time.Time
	QueuedAt    time.Time
	SentAt      time.Time
	SentBy      string
	DeliveredAt time.Time
	DeliveredBy string
	ReadAt      time.Time
	ReadBy      string
	FailedAt    time.Time
	FailedBy    string
}

// Document field names for StatusRecord.
const (
	FieldStatus      = "status"
	FieldSendingAt   = "sendingAt"
	FieldQueuedAt    = "queuedAt"
	FieldSentAt      = "sentAt"
	FieldSentBy      = "sentBy"
	FieldDeliveredAt = "deliveredAt"
	FieldDeliveredBy = "deliveredBy"
	FieldReadAt      = "readAt"
	FieldReadBy      = "readBy"
	FieldFailedAt    = "failedAt"
	FieldFailedBy    = "failedBy"
)

// StatusFields builds the partial document merged into a message record for
// one status transition: the status itself plus its derived timestamp and
// actor fields. Merging (not overwriting) keeps fields from earlier
// transitions intact.
func StatusFields(s Status, actorID string, at time.Time) map[string]any {
	ts := at.UTC().Format(time.RFC3339Nano)
	fields := map[string]any{FieldStatus: string(s)}
	switch s {
	case StatusSending:
		fields[FieldSendingAt] = ts
	case StatusQueued:
		fields[FieldQueuedAt] = ts
	case StatusSent:
		fields[FieldSentAt] = ts
		fields[FieldSentBy] = actorID
	case StatusDelivered:
		fields[FieldDeliveredAt] = ts
		fields[FieldDeliveredBy] = actorID
	case StatusRead:
		fields[FieldReadAt] = ts
		fields[FieldReadBy] = actorID
	case StatusFailed:
		fields[FieldFailedAt] = ts
		fields[FieldFailedBy] = actorID
	}
	return fields
}

// RecordFromDocument decodes a store document into a StatusRecord.
// Unknown fields are ignored and malformed timestamps are left zero.
func RecordFromDocument(doc map[string]any) StatusRecord {
	var rec StatusRecord
	if doc == nil {
		return rec
	}
	rec.Status = Status(docString(doc, FieldStatus))
	rec.SendingAt = docTime(doc, FieldSendingAt)
	rec.QueuedAt = docTime(doc, FieldQueuedAt)
	rec.SentAt = docTime(doc, FieldSentAt)
	rec.SentBy = docString(doc, FieldSentBy)
	rec.DeliveredAt = docTime(doc, FieldDeliveredAt)
	rec.DeliveredBy = docString(doc, FieldDeliveredBy)
	rec.ReadAt = docTime(doc, FieldReadAt)
	rec.ReadBy = docString(doc, FieldReadBy)
	rec.FailedAt = docTime(doc, FieldFailedAt)
	rec.FailedBy = docString(doc, FieldFailedBy)
	return rec
}

func docString(doc map[string]any, field string) string {
	if v, ok := doc[field].(string); ok {
		return v
	}
	return ""
}

func docTime(doc map[string]any, field string) time.Time {
	raw, ok := doc[field].(string)
	if !ok || raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
