// ABOUTME: Topic key construction for the broker
// ABOUTME: chat_{conversationId}, dashboard_website_{websiteId}, dashboard_user_{userId}

package protocol

// ChatTopic is the per-conversation topic a visitor connection joins.
func ChatTopic(conversationID string) string {
	return "chat_" + conversationID
}

// WebsiteTopic is the per-website dashboard topic agents subscribe to.
func WebsiteTopic(websiteID string) string {
	return "dashboard_website_" + websiteID
}

// UserTopic is the personal topic every dashboard connection joins.
func UserTopic(userID string) string {
	return "dashboard_user_" + userID
}
