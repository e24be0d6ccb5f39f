package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookie = "road_flash"

type FlashKind string

const (
	Success FlashKind = "success"
	Warning FlashKind = "warning"
	Danger  FlashKind = "danger"
	Info    FlashKind = "info"
)

type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

// SetFlash stores a one-shot message for the next rendered page.
func SetFlash(w http.ResponseWriter, kind FlashKind, message string) {
	data, err := json.Marshal(Flash{Kind: kind, Message: message})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash returns the pending message, if any, and expires it.
func PopFlash(w http.ResponseWriter, r *http.Request) (Flash, bool) {
	cookie, err := r.Cookie(flashCookie)
	if err != nil {
		return Flash{}, false
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})

	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return Flash{}, false
	}
	var flash Flash
	if err := json.Unmarshal(data, &flash); err != nil || flash.Message == "" {
		return Flash{}, false
	}
	return flash, true
}
