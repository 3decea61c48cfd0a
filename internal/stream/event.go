package stream

import "time"

// CommentEvent is the enriched payload broadcast to every live subscriber of a
// review the moment a comment is stored. Immutable once constructed.
type CommentEvent struct {
	ID        int64     `json:"id"`
	ReviewID  int64     `json:"reviewId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"user"`
}

// Author is the denormalized author summary attached to each event so
// subscribers can render the comment without another round trip.
type Author struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}
