// Package domain holds the entities shared by the API, repositories, and the
// transcode worker.
package domain

import "time"

// TrackStatus enumerates the transcode lifecycle of a track. Transitions only
// move forward: uploaded -> processing -> ready | failed.
type TrackStatus string

const (
	StatusUploaded   TrackStatus = "uploaded"
	StatusProcessing TrackStatus = "processing"
	StatusReady      TrackStatus = "ready"
	StatusFailed     TrackStatus = "failed"
)

// Terminal reports whether no further automatic transition occurs.
func (s TrackStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// TrackPrivacy controls visibility of a track.
type TrackPrivacy string

const (
	PrivacyPublic    TrackPrivacy = "public"
	PrivacyPrivate   TrackPrivacy = "private"
	PrivacyScheduled TrackPrivacy = "scheduled"
)

// Track represents a row in the tracks table. ObjectKey points at the
// original upload and never changes; TranscodedObjectKey is set exactly once,
// by the worker, together with the transition to ready.
type Track struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	Tags        *string `json:"tags,omitempty"`
	ArtworkURL  *string `json:"artworkUrl,omitempty"`

	Privacy     TrackPrivacy `json:"privacy"`
	ScheduledAt *time.Time   `json:"scheduledAt,omitempty"`

	ObjectKey           string      `json:"-"`
	TranscodedObjectKey *string     `json:"-"`
	ContentType         string      `json:"contentType"`
	Size                int64       `json:"size"`
	DurationSeconds     *int64      `json:"durationSeconds,omitempty"`
	Status              TrackStatus `json:"status"`

	EnableDirectDownloads  bool `json:"enableDirectDownloads"`
	EnableOfflineListening bool `json:"enableOfflineListening"`
	AllowComments          bool `json:"allowComments"`

	PlayCount int64     `json:"playCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StreamObjectKey resolves which object to serve: the transcoded artifact
// once the track is ready, otherwise the original upload. A track still
// processing streams the original instead of erroring.
func (t *Track) StreamObjectKey() string {
	if t.TranscodedObjectKey != nil && t.Status == StatusReady {
		return *t.TranscodedObjectKey
	}
	return t.ObjectKey
}
