package ingest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sajagshrestha/autofin-BE/internal/common"
)

// Notification is the decoded payload of one Gmail push notification: which
// mailbox changed and the history id the mailbox had reached when Gmail
// published the event.
type Notification struct {
	PublishTime  time.Time
	EmailAddress string
	MessageID    string
	HistoryID    uint64
}

// pubSubEnvelope is the wire shape of a Pub/Sub push delivery.
type pubSubEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// notificationData is the Gmail payload inside the envelope's base64 data.
// historyId arrives as a number or a string depending on the publisher.
type notificationData struct {
	EmailAddress string          `json:"emailAddress"`
	HistoryID    json.RawMessage `json:"historyId"`
}

// DecodeEnvelope parses a Pub/Sub push body into a Notification. Structural
// defects return common.ErrMalformedEnvelope, the only condition the HTTP
// surface answers with a 400; everything past this point is acked.
func DecodeEnvelope(body []byte) (*Notification, error) {
	var envelope pubSubEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
	}
	if envelope.Message.Data == "" {
		return nil, fmt.Errorf("%w: missing message data", common.ErrMalformedEnvelope)
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: undecodable message data", common.ErrMalformedEnvelope)
		}
	}

	var data notificationData
	if err := json.Unmarshal(decoded, &data); err != nil {
		return nil, fmt.Errorf("%w: invalid notification payload: %v", common.ErrMalformedEnvelope, err)
	}
	if data.EmailAddress == "" {
		return nil, fmt.Errorf("%w: missing email address", common.ErrMalformedEnvelope)
	}

	historyID, err := parseHistoryID(data.HistoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
	}

	n := &Notification{
		EmailAddress: data.EmailAddress,
		HistoryID:    historyID,
		MessageID:    envelope.Message.MessageID,
	}
	if envelope.Message.PublishTime != "" {
		if t, err := time.Parse(time.RFC3339, envelope.Message.PublishTime); err == nil {
			n.PublishTime = t
		}
	}

	return n, nil
}

func parseHistoryID(raw json.RawMessage) (uint64, error) {
	s := string(raw)
	if s == "" || s == "null" {
		return 0, fmt.Errorf("missing history id")
	}

	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		s = quoted
	}

	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid history id %q", s)
	}
	return id, nil
}
