package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Message is a single entry of a conversation. Model messages start empty and grow as fragments arrive,
// user messages are immutable once appended.
type Message struct {
	Role   Role
	Text   string
	Images []Image
}

// Image is an inline image payload attached to a user message. Data holds the base64 encoded bytes.
type Image struct {
	MIMEType string
	Data     string
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the person using the chat.
	RoleUser Role = "user"
	// RoleModel represents a message produced by the generation service, including the greeting and
	// the fixed error text.
	RoleModel Role = "model"
)

// ErrInvalidDataURL is returned by ParseDataURL when the input is not a base64 data URL.
var ErrInvalidDataURL = errors.New("invalid data url")

// ParseDataURL splits a "data:<mime>;base64,<data>" URL into an Image.
func ParseDataURL(s string) (Image, error) {
	head, data, ok := strings.Cut(s, ";base64,")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing base64 marker", ErrInvalidDataURL)
	}
	mime, ok := strings.CutPrefix(head, "data:")
	if !ok || mime == "" {
		return Image{}, fmt.Errorf("%w: missing mime type", ErrInvalidDataURL)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	return Image{MIMEType: mime, Data: data}, nil
}

// DataURL renders the image back into its data URL form, suitable for an <img> src attribute.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Data
}

// Bytes decodes the base64 payload.
func (i Image) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(i.Data)
}
