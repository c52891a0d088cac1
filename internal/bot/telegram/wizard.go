// Package telegram implements the operator's compose bot: a short
// conversation that builds an announcement and hands it to the relay
// endpoint.
package telegram

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"notify_relay/internal/domain"
)

type Step int

const (
	StepIdle Step = iota
	StepTitle
	StepPreview
	StepLink
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepTitle:
		return "title"
	case StepPreview:
		return "preview"
	case StepLink:
		return "link"
	case StepConfirm:
		return "confirm"
	default:
		return "idle"
	}
}

// Input is one operator message. PhotoPath is set when a photo was uploaded
// and staged to disk.
type Input struct {
	Text      string
	PhotoPath string
}

// Reply is what the bot answers. Submit is set once the operator confirmed.
type Reply struct {
	Text   string
	Submit *domain.PendingAnnouncement
	// Discard lists staged files that will not be sent.
	Discard []string
}

type draft struct {
	step Step
	ann  domain.PendingAnnouncement
}

// Wizard keeps one draft per chat.
type Wizard struct {
	mu     sync.Mutex
	drafts map[int64]*draft
}

func NewWizard() *Wizard {
	return &Wizard{drafts: make(map[int64]*draft)}
}

func (w *Wizard) Step(chatID int64) Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.drafts[chatID]; ok {
		return d.step
	}
	return StepIdle
}

// Begin starts a new draft, replacing any draft in progress.
func (w *Wizard) Begin(chatID int64) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()

	var discard []string
	if old, ok := w.drafts[chatID]; ok && old.ann.PreviewPath != "" {
		discard = append(discard, old.ann.PreviewPath)
	}

	w.drafts[chatID] = &draft{step: StepTitle}
	return Reply{
		Text:    fmt.Sprintf("📝 Send the announcement title (up to %d characters).", domain.MaxTitleLength),
		Discard: discard,
	}
}

func (w *Wizard) Cancel(chatID int64) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()

	d, ok := w.drafts[chatID]
	if !ok {
		return Reply{Text: "Nothing to cancel."}
	}
	delete(w.drafts, chatID)

	reply := Reply{Text: "🚫 Announcement cancelled."}
	if d.ann.PreviewPath != "" {
		reply.Discard = []string{d.ann.PreviewPath}
	}
	return reply
}

func (w *Wizard) Handle(chatID int64, in Input) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()

	d, ok := w.drafts[chatID]
	if !ok {
		reply := Reply{Text: "Use /announce to compose an announcement."}
		if in.PhotoPath != "" {
			reply.Discard = []string{in.PhotoPath}
		}
		return reply
	}

	text := strings.TrimSpace(in.Text)

	if in.PhotoPath != "" && d.step != StepPreview {
		return Reply{Text: "A photo is only accepted as the preview.", Discard: []string{in.PhotoPath}}
	}

	switch d.step {
	case StepTitle:
		if text == "" {
			return Reply{Text: "The title cannot be empty."}
		}
		if utf8.RuneCountInString(text) > domain.MaxTitleLength {
			return Reply{Text: fmt.Sprintf("The title is too long, keep it under %d characters.", domain.MaxTitleLength)}
		}
		d.ann.Message = text
		d.step = StepPreview
		return Reply{Text: "🖼 Send a preview image: an image link, a photo, or \"skip\"."}

	case StepPreview:
		switch {
		case in.PhotoPath != "":
			d.ann.PreviewPath = in.PhotoPath
		case isSkip(text):
		case domain.IsHTTPURL(text) && domain.IsImageURL(text):
			d.ann.PreviewURL = text
		default:
			return Reply{Text: "That is not an image link (.jpg, .jpeg, .png, .gif). Send a link, a photo, or \"skip\"."}
		}
		d.step = StepLink
		return Reply{Text: "🔗 Send the link to attach, or \"skip\"."}

	case StepLink:
		switch {
		case isSkip(text):
		case domain.IsHTTPURL(text):
			d.ann.VideoURL = text
		default:
			return Reply{Text: "That is not an http(s) link. Send a link or \"skip\"."}
		}
		d.step = StepConfirm
		return Reply{Text: preview(d.ann) + "\n\nSend it? (yes/no)"}

	case StepConfirm:
		switch strings.ToLower(text) {
		case "yes", "y":
			delete(w.drafts, chatID)
			ann := d.ann
			return Reply{Text: "📤 Sending...", Submit: &ann}
		case "no", "n":
			delete(w.drafts, chatID)
			reply := Reply{Text: "🚫 Announcement cancelled."}
			if d.ann.PreviewPath != "" {
				reply.Discard = []string{d.ann.PreviewPath}
			}
			return reply
		default:
			return Reply{Text: "Please answer yes or no."}
		}
	}

	return Reply{}
}

func isSkip(text string) bool {
	return strings.EqualFold(text, "skip")
}

func preview(a domain.PendingAnnouncement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s", a.Message)
	switch {
	case a.PreviewURL != "":
		fmt.Fprintf(&b, "\nPreview: %s", a.PreviewURL)
	case a.PreviewPath != "":
		b.WriteString("\nPreview: uploaded photo")
	default:
		b.WriteString("\nPreview: none")
	}
	if a.VideoURL != "" {
		fmt.Fprintf(&b, "\nLink: %s", a.VideoURL)
	} else {
		b.WriteString("\nLink: none")
	}
	return b.String()
}
