package collect

import (
	"time"
)

const (
	LabelUnread = "UNREAD"
	LabelTrash  = "TRASH"

	// MaxCandidates caps a single listing pass.
	MaxCandidates = 1000
)

type LabelKind string

const (
	LabelKindSystem LabelKind = "system"
	LabelKindUser   LabelKind = "user"
)

// Principal is the authenticated owner of a mailbox.
type Principal struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type Actor struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Domain string `json:"domain"`
}

type Label struct {
	RemoteID        string    `json:"google_id" db:"google_id"`
	Name            string    `json:"name" db:"name"`
	Kind            LabelKind `json:"type" db:"type"`
	TextColor       string    `json:"text_color" db:"text_color"`
	BackgroundColor string    `json:"background_color" db:"background_color"`
}

// Candidate is a message reference returned by a listing call.
type Candidate struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

type NormalizedMessage struct {
	RemoteID        string    `json:"google_id"`
	ThreadID        string    `json:"thread_id"`
	Subject         string    `json:"subject,omitempty"`
	Snippet         string    `json:"snippet"`
	Sender          *Actor    `json:"sender,omitempty"`
	Receiver        string    `json:"receiver,omitempty"`
	DeliveredTo     string    `json:"delivered_to,omitempty"`
	Timestamp       time.Time `json:"time"`
	ListUnsubscribe string    `json:"list_unsubscribe,omitempty"`
	LabelIDs        []string  `json:"label_ids"`
	Labels          []Label   `json:"labels"`
	Locked          bool      `json:"locked"`
}

type ModifyRequest struct {
	IDs            []string `json:"ids"`
	AddLabelIDs    []string `json:"addLabelIds"`
	RemoveLabelIDs []string `json:"removeLabelIds"`
}
