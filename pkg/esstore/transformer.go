package esstore

import (
	"strings"
	"time"

	"github.com/confsearch/talk-indexer/pkg/talkapi"
)

// defaultRatingValue is assumed when a rating carries an unrecognized ordinal.
const defaultRatingValue = 3

// Transform projects an upstream talk record into its search document. It is
// a pure function of the record and the supplied timestamp: transforming the
// same record twice with the same now yields identical documents, which is
// what makes redelivered messages and repeated reindex runs harmless.
func Transform(talk *talkapi.TalkRecord, now time.Time) *SearchDocument {
	comments, ratings := partitionFeedback(talk.Data.Feedback.Items())

	status := talk.Status
	if status == "" {
		status = "DRAFT"
	}

	return &SearchDocument{
		TalkID:       talk.ID,
		ConferenceID: talk.ConferenceID,
		Title:        talk.Data.Title.StringOrNil(),
		Abstract:     talk.Data.Abstract.StringOrNil(),
		Status:       status,
		Format:       talk.Data.Format.StringOrNil(),
		Language:     talk.Data.Language.StringOrNil(),
		Length:       talk.Data.Length.StringOrNil(),
		Tags:         talk.Data.Tags.Raw(),
		Keywords:     talk.Data.Keywords.Raw(),
		Speakers:     projectSpeakers(talk.Speakers),
		Comments:     comments,
		Ratings:      ratings,
		AvgRating:    averageRating(ratings),
		Room:         talk.Data.Room.StringOrNil(),
		Slot:         talk.Data.StartTime.StringOrNil(),
		LastUpdated:  talk.LastUpdated,
		PublishedAt:  talk.PublishedAt,
		IndexedAt:    now,
	}
}

// partitionFeedback splits the mixed feedback collection into comments and
// ratings by the type discriminator. Items with any other type belong to
// neither projection.
func partitionFeedback(items []talkapi.FeedbackItem) ([]CommentDocument, []RatingDocument) {
	comments := make([]CommentDocument, 0)
	ratings := make([]RatingDocument, 0)
	for _, item := range items {
		switch item.Type {
		case "comment":
			comments = append(comments, CommentDocument{
				ID:      item.ID,
				Author:  item.Author,
				Comment: item.Comment,
				Created: item.Created,
			})
		case "rating":
			ratings = append(ratings, RatingDocument{
				ID:      item.ID,
				Author:  item.Author,
				Rating:  item.Rating,
				Created: item.Created,
			})
		}
	}
	return comments, ratings
}

// averageRating computes the mean of the ordinal rating values, or 0.0 when
// there are none.
func averageRating(ratings []RatingDocument) float64 {
	if len(ratings) == 0 {
		return 0.0
	}
	sum := 0
	for _, r := range ratings {
		sum += ratingValue(r.Rating)
	}
	return float64(sum) / float64(len(ratings))
}

// ratingValue maps the qualitative ONE..FIVE scale to 1..5. Unrecognized
// values count as the scale midpoint so a single bad entry cannot drag an
// average to an extreme.
func ratingValue(ordinal string) int {
	switch strings.ToUpper(ordinal) {
	case "ONE":
		return 1
	case "TWO":
		return 2
	case "THREE":
		return 3
	case "FOUR":
		return 4
	case "FIVE":
		return 5
	default:
		return defaultRatingValue
	}
}

// projectSpeakers reduces the speakers array to the indexed shape. The bio
// sits under the speaker's own versioned data object.
func projectSpeakers(speakers []talkapi.Speaker) []SpeakerDocument {
	out := make([]SpeakerDocument, 0, len(speakers))
	for _, s := range speakers {
		out = append(out, SpeakerDocument{
			SpeakerID: s.ID,
			Name:      s.Name,
			Email:     s.Email,
			Bio:       s.Data.Bio.StringOrNil(),
		})
	}
	return out
}
