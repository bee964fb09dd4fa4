package model

import (
	"strings"
	"time"
)

// maxTitleRunes - длина заголовка, вырезаемого из первой строки текста.
const maxTitleRunes = 50

// Story - сгенерированная история вместе с (опциональной) иллюстрацией.
type Story struct {
	ID        string    `json:"id" db:"id"`
	Theme     string    `json:"theme" db:"theme"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	ImageURL  *string   `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// HasImage сообщает, есть ли у истории иллюстрация.
func (s Story) HasImage() bool {
	return s.ImageURL != nil && *s.ImageURL != ""
}

// WithImage возвращает копию истории с указанным URL иллюстрации.
func (s Story) WithImage(url string) Story {
	s.ImageURL = &url
	return s
}

// Owner определяет, куда сохраняются истории: UserID - удаленное хранилище
// аккаунта, ClientID - локальное хранилище конкретного браузера.
type Owner struct {
	UserID   string `json:"userId,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// IsAuthenticated возвращает true, если запрос пришел от залогиненного пользователя.
func (o Owner) IsAuthenticated() bool {
	return o.UserID != ""
}

// IsAnonymous возвращает true, если нет ни пользователя, ни клиента.
func (o Owner) IsAnonymous() bool {
	return o.UserID == "" && o.ClientID == ""
}

// Key возвращает ключ для адресации уведомлений: пользователь важнее клиента.
func (o Owner) Key() string {
	if o.UserID != "" {
		return o.UserID
	}
	return o.ClientID
}

// DeriveTitle берет первую строку текста (не длиннее 50 символов).
// Если она пустая - тему, если и тема пустая - "Story".
func DeriveTitle(content, theme string) string {
	firstLine := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if firstLine != "" {
		runes := []rune(firstLine)
		if len(runes) > maxTitleRunes {
			runes = runes[:maxTitleRunes]
		}
		return string(runes)
	}
	if theme = strings.TrimSpace(theme); theme != "" {
		return theme
	}
	return "Story"
}
