package model

// NoticeKind тип уведомления для пользователя.
type NoticeKind string

const (
	// NoticeIllustrationReady - история сохранена вместе с иллюстрацией.
	NoticeIllustrationReady NoticeKind = "illustration_ready"
	// NoticeIllustrationFailed - история сохранена без иллюстрации.
	NoticeIllustrationFailed NoticeKind = "illustration_failed"
	// NoticeIllustrationPending - история сохранена, иллюстрация еще не готова (таймаут ожидания).
	NoticeIllustrationPending NoticeKind = "illustration_pending"
)

// Notice - нефатальное уведомление, которое показывается пользователю.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Owner    Owner      `json:"owner"`
	StoryID  string     `json:"storyId"`
	JobID    string     `json:"jobId,omitempty"`
	ImageURL string     `json:"imageUrl,omitempty"`
	Message  string     `json:"message"`
}
