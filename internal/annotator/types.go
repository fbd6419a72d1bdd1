// Package annotator provides the client for the external AI annotation
// service that assigns summaries and priority scores to messages.
package annotator

// AnnotateRequest carries the message fields the annotation service
// scores on.
type AnnotateRequest struct {
	Subject     string `json:"subject"`
	Content     string `json:"content"`
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	IsVip       bool   `json:"is_vip"`
}

// Annotation is the structured result returned by the annotation service
type Annotation struct {
	Summary       string `json:"summary"`
	PriorityScore int    `json:"priority_score"`
}
