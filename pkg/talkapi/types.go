// Package talkapi is the client for the upstream talk-data API. It decodes
// the upstream representation of a talk, including the versioned-field
// convention where each logical field of the data object is wrapped as
// {"value": ...}.
package talkapi

import (
	"bytes"
	"encoding/json"
)

// FlexString decodes a scalar JSON value as its string form: strings decode
// directly, numbers and booleans keep their literal representation. The
// upstream stores e.g. talk length sometimes as "45" and sometimes as 45.
type FlexString string

// UnmarshalJSON implements the scalar coercion described on the type.
func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	*s = FlexString(b)
	return nil
}

// Field is the versioned-field wrapper for scalar values. A nil *Field or a
// nil Value both mean the logical field is absent.
type Field struct {
	Value *FlexString `json:"value"`
}

// StringOrNil unwraps the field, returning nil when it is absent.
func (f *Field) StringOrNil() *string {
	if f == nil || f.Value == nil {
		return nil
	}
	s := string(*f.Value)
	return &s
}

// ArrayField is the versioned-field wrapper for array values (tags, keywords).
// The element shape is opaque to the pipeline and is forwarded verbatim.
type ArrayField struct {
	Value json.RawMessage `json:"value"`
}

// Raw unwraps the array, returning nil when absent.
func (f *ArrayField) Raw() json.RawMessage {
	if f == nil {
		return nil
	}
	return f.Value
}

// FeedbackItem is one entry of the pkomfeedbacks collection. Comments and
// ratings share this shape and are distinguished by Type.
type FeedbackItem struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Author  string `json:"author"`
	Comment string `json:"comment"`
	Rating  string `json:"rating"`
	Created string `json:"created"`
}

// FeedbackField is the versioned-field wrapper around the feedback array.
type FeedbackField struct {
	Value []FeedbackItem `json:"value"`
}

// Items unwraps the feedback list, returning nil when absent.
func (f *FeedbackField) Items() []FeedbackItem {
	if f == nil {
		return nil
	}
	return f.Value
}

// TalkData is the nested data object of a talk, each logical field wrapped by
// the versioned-field convention.
type TalkData struct {
	Title     *Field         `json:"title"`
	Abstract  *Field         `json:"abstract"`
	Format    *Field         `json:"format"`
	Language  *Field         `json:"language"`
	Length    *Field         `json:"length"`
	Room      *Field         `json:"room"`
	StartTime *Field         `json:"starttime"`
	Tags      *ArrayField    `json:"tags"`
	Keywords  *ArrayField    `json:"keywords"`
	Feedback  *FeedbackField `json:"pkomfeedbacks"`
}

// SpeakerData is the nested data object of a speaker.
type SpeakerData struct {
	Bio *Field `json:"bio"`
}

// Speaker is one entry of a talk's speakers array.
type Speaker struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Data  SpeakerData `json:"data"`
}

// TalkRecord is the upstream representation of a talk.
type TalkRecord struct {
	ID           string    `json:"id"`
	ConferenceID string    `json:"conferenceid"`
	Status       string    `json:"status"`
	LastUpdated  string    `json:"lastUpdated"`
	PublishedAt  *string   `json:"publishedAt"`
	Data         TalkData  `json:"data"`
	Speakers     []Speaker `json:"speakers"`
}
