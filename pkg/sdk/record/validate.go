package record

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
)

var (
	// ErrMissingClientID is returned when a record has no tenant.
	ErrMissingClientID = errors.New("client_id is required")

	// ErrMissingMessage is returned when a record has no message.
	ErrMissingMessage = errors.New("message is required")

	// ErrInvalidEnum is returned for a categorical value outside its closed set.
	ErrInvalidEnum = errors.New("invalid enum value")

	// ErrFieldTooLong is returned when a field exceeds its cap.
	ErrFieldTooLong = errors.New("field too long")

	// ErrTooManyTags is returned when a record carries too many tags.
	ErrTooManyTags = fmt.Errorf("too many tags (max %d)", config.MaxTagsPerRecord)
)

// Validate checks required fields, enum membership and field caps.
func (r ErrorRecord) Validate() error {
	if r.ClientID == "" {
		return ErrMissingClientID
	}
	if r.Message == "" {
		return ErrMissingMessage
	}
	if !r.ErrorType.Valid() {
		return fmt.Errorf("%w: error_type %q", ErrInvalidEnum, r.ErrorType)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: severity %q", ErrInvalidEnum, r.Severity)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidEnum, r.Status)
	}
	if err := maxLen("message", r.Message, config.MaxMessageLength); err != nil {
		return err
	}
	if err := maxLen("stack_trace", r.StackTrace, config.MaxStackTraceLength); err != nil {
		return err
	}
	if err := maxLen("custom_data", r.CustomData, config.MaxCustomDataLength); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"url":        r.URL,
		"user_agent": r.UserAgent,
		"referrer":   r.Referrer,
		"endpoint":   r.Endpoint,
		"page_title": r.PageTitle,
	} {
		if err := maxLen(name, v, config.MaxFieldLength); err != nil {
			return err
		}
	}
	return validateTags(r.Tags)
}

// Validate checks required fields, the level and field caps.
func (r LogRecord) Validate() error {
	if r.ClientID == "" {
		return ErrMissingClientID
	}
	if r.Message == "" {
		return ErrMissingMessage
	}
	if !r.Level.Valid() {
		return fmt.Errorf("%w: level %q", ErrInvalidEnum, r.Level)
	}
	if err := maxLen("message", r.Message, config.MaxMessageLength); err != nil {
		return err
	}
	if err := maxLen("context", r.Context, config.MaxContextLength); err != nil {
		return err
	}
	return validateTags(r.Tags)
}

// Truncate clips message and stack_trace to their caps. Other capped fields
// are left alone so the endpoint can reject them.
func (r *ErrorRecord) Truncate() {
	r.Message = truncate(r.Message, config.MaxMessageLength)
	r.StackTrace = truncate(r.StackTrace, config.MaxStackTraceLength)
}

// Truncate clips the message to its cap.
func (r *LogRecord) Truncate() {
	r.Message = truncate(r.Message, config.MaxMessageLength)
}

func validateTags(tags []string) error {
	if len(tags) > config.MaxTagsPerRecord {
		return ErrTooManyTags
	}
	for _, t := range tags {
		if err := maxLen("tag", t, config.MaxTagLength); err != nil {
			return err
		}
	}
	return nil
}

func maxLen(field, v string, max int) error {
	if n := utf8.RuneCountInString(v); n > max {
		return fmt.Errorf("%w: %s has %d chars (max %d)", ErrFieldTooLong, field, n, max)
	}
	return nil
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
