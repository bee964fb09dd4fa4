package messaging

import (
	"story-server/internal/model"
)

// IllustrationTaskPayload - задача иллюстрирования для воркера.
type IllustrationTaskPayload struct {
	JobID    string      `json:"job_id"`
	Story    model.Story `json:"story"`
	UserID   string      `json:"user_id,omitempty"`
	ClientID string      `json:"client_id,omitempty"`
}

// Owner возвращает владельца истории из полей задачи.
func (p IllustrationTaskPayload) Owner() model.Owner {
	return model.Owner{UserID: p.UserID, ClientID: p.ClientID}
}

// NotificationStatus - итоговый статус задачи для получателя уведомления.
type NotificationStatus string

const (
	NotificationStatusSuccess NotificationStatus = "success"
	NotificationStatusError   NotificationStatus = "error"
	NotificationStatusPending NotificationStatus = "pending"
)

// NotificationPayload - уведомление о результате иллюстрирования, которое воркер
// публикует в очередь уведомлений.
type NotificationPayload struct {
	JobID        string             `json:"job_id"`
	UserID       string             `json:"user_id,omitempty"`
	ClientID     string             `json:"client_id,omitempty"`
	StoryID      string             `json:"story_id"`
	Kind         model.NoticeKind   `json:"kind"`
	Status       NotificationStatus `json:"status"`
	ImageURL     *string            `json:"image_url,omitempty"`
	ErrorDetails string             `json:"error_details,omitempty"`
	Message      string             `json:"message"`
}

// NewNotificationPayload собирает payload из уведомления.
func NewNotificationPayload(notice model.Notice) NotificationPayload {
	payload := NotificationPayload{
		JobID:    notice.JobID,
		UserID:   notice.Owner.UserID,
		ClientID: notice.Owner.ClientID,
		StoryID:  notice.StoryID,
		Kind:     notice.Kind,
		Message:  notice.Message,
	}
	switch notice.Kind {
	case model.NoticeIllustrationReady:
		payload.Status = NotificationStatusSuccess
		if notice.ImageURL != "" {
			url := notice.ImageURL
			payload.ImageURL = &url
		}
	case model.NoticeIllustrationPending:
		payload.Status = NotificationStatusPending
	default:
		payload.Status = NotificationStatusError
		payload.ErrorDetails = notice.Message
	}
	return payload
}

// Notice восстанавливает уведомление из payload.
func (p NotificationPayload) Notice() model.Notice {
	notice := model.Notice{
		Kind:    p.Kind,
		Owner:   model.Owner{UserID: p.UserID, ClientID: p.ClientID},
		StoryID: p.StoryID,
		JobID:   p.JobID,
		Message: p.Message,
	}
	if p.ImageURL != nil {
		notice.ImageURL = *p.ImageURL
	}
	return notice
}
