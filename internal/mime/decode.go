// Package mime decodes raw mail messages using enmime.
package mime

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/akeely/mailharbor/internal/textutil"
)

// Message is a decoded mail message ready for persistence.
type Message struct {
	Subject     string       // decoded subject, "" if absent
	From        string       // sender header as decoded text
	Date        string       // normalized "2006-01-02 15:04:05", or the raw header on parse failure
	Content     string       // decoded body; HTML preferred over plain text
	Attachments []Attachment // every part carrying a filename
}

// Attachment is a decoded attachment payload with its sanitized filename.
type Attachment struct {
	Filename string
	Content  []byte
}

// Decode parses raw MIME data into a Message.
// Header and charset decoding never fails: bad input degrades to a
// replacement-character decode. Only structural parse failures return
// an error.
func Decode(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Subject: textutil.EnsureUTF8(env.GetHeader("Subject")),
		From:    textutil.EnsureUTF8(env.GetHeader("From")),
		Date:    NormalizeDate(env.GetHeader("Date")),
		Content: bodyContent(env),
	}

	for _, part := range bodyParts(env) {
		name := part.FileName
		if name == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename: SanitizeFilename(textutil.EnsureUTF8(name)),
			Content:  part.Content,
		})
	}

	return msg, nil
}

// bodyParts returns every leaf part of the envelope, attachments and
// inlines included.
func bodyParts(env *enmime.Envelope) []*enmime.Part {
	var parts []*enmime.Part
	parts = append(parts, env.Attachments...)
	parts = append(parts, env.Inlines...)
	parts = append(parts, env.OtherParts...)
	return parts
}

// bodyContent extracts the message body, preferring the HTML part over
// plain text when both are present. Parts marked as attachments are
// excluded by enmime's envelope classification.
func bodyContent(env *enmime.Envelope) string {
	if env.HTML != "" {
		return textutil.EnsureUTF8(env.HTML)
	}
	return textutil.EnsureUTF8(env.Text)
}

var unsafeFilenameRe = regexp.MustCompile(`[^\w.-]`)

// SanitizeFilename replaces every character outside word characters,
// dots and hyphens with an underscore. The result is safe to use as a
// single path element.
func SanitizeFilename(name string) string {
	return unsafeFilenameRe.ReplaceAllString(name, "_")
}

// DateLayout is the canonical timestamp format for stored messages.
const DateLayout = "2006-01-02 15:04:05"

// dateLayouts lists accepted Date header formats, tried in order.
// RFC 2822 style variants with and without weekday, with offset or
// named timezone. Go's "2" layout token accepts both padded and
// unpadded days.
var dateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
}

// dayMonthYearRe extracts a "D Mon YYYY H:M:S" substring from an
// otherwise unparseable Date header.
var dayMonthYearRe = regexp.MustCompile(`\d{1,2}\s+\w{3}\s+\d{4}\s+\d{1,2}:\d{1,2}:\d{1,2}`)

// NormalizeDate converts a Date header to the canonical DateLayout.
// An empty header yields the current time. When every layout fails, a
// regex pass extracts a date-like substring; if that also fails, the
// raw header string is returned unmodified.
func NormalizeDate(raw string) string {
	if raw == "" {
		return time.Now().Format(DateLayout)
	}

	s := strings.Join(strings.Fields(raw), " ")

	// Strip a trailing comment like "(UTC)" but keep the numeric offset.
	base := s
	if idx := strings.LastIndex(s, "("); idx > 0 {
		base = strings.TrimSpace(s[:idx])
	}

	for _, candidate := range []string{base, s} {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t.Format(DateLayout)
			}
		}
		if base == s {
			break
		}
	}

	if m := dayMonthYearRe.FindString(s); m != "" {
		for _, layout := range []string{"2 Jan 2006 15:04:05", "2 Jan 2006 15:4:5"} {
			if t, err := time.Parse(layout, m); err == nil {
				return t.Format(DateLayout)
			}
		}
	}

	return raw
}
