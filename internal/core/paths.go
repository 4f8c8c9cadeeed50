package core

// Path layout in the remote store:
//
//	messages/{conversationID}/{messageID}            authoritative record
//	messageSync/{conversationID}/{messageID}/{userID} cross-device broadcast

func MessagePath(conversationID, messageID string) string {
	return "messages/" + conversationID + "/" + messageID
}

func SyncPath(conversationID, messageID, userID string) string {
	return "messageSync/" + conversationID + "/" + messageID + "/" + userID
}

// ConversationSyncPath is the subtree a device watches to pick up status
// changes broadcast by other devices in the conversation.
func ConversationSyncPath(conversationID string) string {
	return "messageSync/" + conversationID
}

// MessageKey identifies one message for in-process bookkeeping (in-flight
// locks, pending updates, escalation timers).
func MessageKey(conversationID, messageID string) string {
	return conversationID + ":" + messageID
}
