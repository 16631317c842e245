package collect

import (
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

// MetadataHeaders are the only headers requested from and read off a message.
var MetadataHeaders = []string{"Delivered-To", "Subject", "From", "To", "List-Unsubscribe"}

// ParseMessage converts a provider message into its normalized form. Missing
// optional headers leave the matching field empty.
func ParseMessage(raw *gmail.Message, principal Principal) NormalizedMessage {
	msg := NormalizedMessage{
		Receiver: principal.Email,
		LabelIDs: []string{},
		Labels:   []Label{},
	}
	if raw == nil {
		return msg
	}
	msg.RemoteID = raw.Id
	msg.ThreadID = raw.ThreadId
	msg.Snippet = raw.Snippet
	msg.Timestamp = time.UnixMilli(raw.InternalDate).UTC()
	if raw.LabelIds != nil {
		msg.LabelIDs = raw.LabelIds
	}
	if raw.Payload == nil {
		return msg
	}

	// later duplicates overwrite earlier values
	headers := make(map[string]string)
	for _, h := range raw.Payload.Headers {
		if h == nil || !isMetadataHeader(h.Name) {
			continue
		}
		headers[h.Name] = h.Value
	}

	if v, ok := headers["From"]; ok {
		sender := ParseActor(v)
		msg.Sender = &sender
	}
	if v, ok := headers["To"]; ok {
		msg.Receiver = v
	}
	msg.Subject = headers["Subject"]
	msg.DeliveredTo = headers["Delivered-To"]
	msg.ListUnsubscribe = headers["List-Unsubscribe"]
	return msg
}

// ParseActor splits a From header such as `"Jane Doe" <jane@example.com>`.
// The split happens on the last space. A value without spaces is used as
// both name and email.
func ParseActor(value string) Actor {
	idx := strings.LastIndex(value, " ")
	if idx < 0 {
		return Actor{Name: value, Email: value, Domain: domainOf(value)}
	}
	name := stripQuotes(value[:idx])
	name = strings.ReplaceAll(name, "`", "'")

	email := value[idx+1:]
	if len(email) >= 2 {
		email = email[1 : len(email)-1]
	} else {
		email = ""
	}
	return Actor{Name: name, Email: email, Domain: domainOf(email)}
}

// ParseInternalDate converts the millisecond epoch string used in raw
// message JSON into a UTC time.
func ParseInternalDate(ms string) (time.Time, error) {
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(v).UTC(), nil
}

func isMetadataHeader(name string) bool {
	for _, h := range MetadataHeaders {
		if h == name {
			return true
		}
	}
	return false
}

func stripQuotes(s string) string {
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first != last || (first != '"' && first != '\'') {
			break
		}
		s = s[1 : len(s)-1]
	}
	return s
}

func domainOf(email string) string {
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	return domain
}
