// Package esstore projects upstream talk records into flat search documents
// and writes them to Elasticsearch. The document id is always the talk id, so
// reprocessing a talk overwrites its document rather than duplicating it.
package esstore

import (
	"encoding/json"
	"time"
)

// CommentDocument is the reduced projection of a feedback comment.
type CommentDocument struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Comment string `json:"comment"`
	Created string `json:"created"`
}

// RatingDocument is the reduced projection of a feedback rating.
type RatingDocument struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Rating  string `json:"rating"`
	Created string `json:"created"`
}

// SpeakerDocument is the reduced projection of a talk speaker.
type SpeakerDocument struct {
	SpeakerID string  `json:"speakerId"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Bio       *string `json:"bio"`
}

// SearchDocument is the denormalized talk document written to the index.
type SearchDocument struct {
	TalkID       string            `json:"talkId"`
	ConferenceID string            `json:"conferenceId"`
	Title        *string           `json:"title"`
	Abstract     *string           `json:"abstract"`
	Status       string            `json:"status"`
	Format       *string           `json:"format"`
	Language     *string           `json:"language"`
	Length       *string           `json:"length"`
	Tags         json.RawMessage   `json:"tags"`
	Keywords     json.RawMessage   `json:"keywords"`
	Speakers     []SpeakerDocument `json:"speakers"`
	Comments     []CommentDocument `json:"comments"`
	Ratings      []RatingDocument  `json:"ratings"`
	AvgRating    float64           `json:"avgRating"`
	Room         *string           `json:"room"`
	Slot         *string           `json:"slot"`
	LastUpdated  string            `json:"lastUpdated"`
	PublishedAt  *string           `json:"publishedAt"`
	IndexedAt    time.Time         `json:"indexed_at"`
}
