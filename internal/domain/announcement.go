package domain

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

type AnnouncementKind string

const (
	KindVideo  AnnouncementKind = "video"
	KindStream AnnouncementKind = "stream"
	KindManual AnnouncementKind = "manual"
)

// MaxTitleLength matches the Discord embed title limit.
const MaxTitleLength = 256

type Announcement struct {
	ID        string           `json:"id"`
	Kind      AnnouncementKind `json:"kind"`
	Title     string           `json:"title"`
	URL       string           `json:"url,omitempty"`
	ImageURL  string           `json:"image_url,omitempty"`
	ImagePath string           `json:"-"`
	Everyone  bool             `json:"everyone"`
	Test      bool             `json:"test"`
	CreatedAt time.Time        `json:"created_at"`
}

// PendingAnnouncement is an operator-authored announcement received over
// the relay endpoint.
type PendingAnnouncement struct {
	Message     string `json:"message"`
	PreviewURL  string `json:"preview_url,omitempty"`
	PreviewPath string `json:"preview_path,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (p *PendingAnnouncement) Normalize() {
	p.Message = strings.TrimSpace(p.Message)
	p.PreviewURL = strings.TrimSpace(p.PreviewURL)
	p.PreviewPath = strings.TrimSpace(p.PreviewPath)
	p.VideoURL = strings.TrimSpace(p.VideoURL)
}

func (p PendingAnnouncement) Validate() error {
	if p.Message == "" {
		return &ValidationError{Field: "message", Reason: "empty"}
	}
	if utf8.RuneCountInString(p.Message) > MaxTitleLength {
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("longer than %d characters", MaxTitleLength)}
	}
	if p.PreviewURL != "" && p.PreviewPath != "" {
		return &ValidationError{Field: "preview", Reason: "preview_url and preview_path are mutually exclusive"}
	}
	if p.PreviewURL != "" {
		if !IsHTTPURL(p.PreviewURL) {
			return &ValidationError{Field: "preview_url", Reason: "not an http(s) url"}
		}
		if !IsImageURL(p.PreviewURL) {
			return &ValidationError{Field: "preview_url", Reason: "not an image link"}
		}
	}
	if p.PreviewPath != "" {
		info, err := os.Stat(p.PreviewPath)
		if err != nil {
			return &ValidationError{Field: "preview_path", Reason: "file not found"}
		}
		if !info.Mode().IsRegular() {
			return &ValidationError{Field: "preview_path", Reason: "not a regular file"}
		}
	}
	if p.VideoURL != "" && !IsHTTPURL(p.VideoURL) {
		return &ValidationError{Field: "video_url", Reason: "not an http(s) url"}
	}
	return nil
}

func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func IsImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}
