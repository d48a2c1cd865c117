package tiktok

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLimit is used when a Request leaves Limit at zero.
const DefaultLimit = 10

// Kind selects which TikTok surface a Request scrapes.
type Kind string

const (
	KindUser     Kind = "user"
	KindHashtag  Kind = "hashtag"
	KindTrend    Kind = "trend"
	KindMusic    Kind = "music"
	KindSearch   Kind = "search"
	KindComments Kind = "comments"
	KindVideo    Kind = "video"
)

var kinds = []Kind{KindUser, KindHashtag, KindTrend, KindMusic, KindSearch, KindComments, KindVideo}

// Kinds returns every supported kind.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind maps a name such as "hashtag" to its Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
	return k, nil
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// paginated kinds are served by JSON endpoints with a cursor.
func (k Kind) paginated() bool {
	return k == KindSearch || k == KindComments
}

// Request describes one scrape. Input is a username, hashtag, music id,
// keyword, post id or post URL depending on Kind; trend takes no input.
type Request struct {
	Kind   Kind   `json:"kind" yaml:"kind"`
	Input  string `json:"input,omitempty" yaml:"input,omitempty"`
	Limit  int    `json:"limit,omitempty" yaml:"limit,omitempty"`
	Cursor int64  `json:"cursor,omitempty" yaml:"cursor,omitempty"`
}

// Validate checks the request without touching the network.
func (r Request) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, r.Kind)
	}
	if r.Kind != KindTrend && strings.TrimSpace(r.Input) == "" {
		return fmt.Errorf("%w for kind %s", ErrInputRequired, r.Kind)
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, r.Limit)
	}
	return nil
}

func (r Request) limit() int {
	if r.Limit == 0 {
		return DefaultLimit
	}
	return r.Limit
}

// RawPage is a fetched document body and its response status.
type RawPage struct {
	URL    string
	Status int
	Body   []byte
}

// Record is one entry of a Result: *VideoItem, *UserProfile, *Comment or *MarkupItem.
type Record interface {
	RecordType() string
}

// VideoItem is a video mapped from embedded state or a JSON endpoint.
// Nested blocks are nil when the source item has no such object.
type VideoItem struct {
	ID          string      `json:"id" yaml:"id"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time   `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
	Video       *VideoMedia `json:"video,omitempty" yaml:"video,omitempty"`
	Author      *ItemAuthor `json:"author,omitempty" yaml:"author,omitempty"`
	Music       *Music      `json:"music,omitempty" yaml:"music,omitempty"`
	Stats       *ItemStats  `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// VideoMedia holds the playable media of a VideoItem.
type VideoMedia struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Width       int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int    `json:"height,omitempty" yaml:"height,omitempty"`
	Duration    int    `json:"duration,omitempty" yaml:"duration,omitempty"`
	Ratio       string `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	Covers      Covers `json:"covers,omitzero" yaml:"covers,omitempty"`
	PlayURL     string `json:"playUrl,omitempty" yaml:"playUrl,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty" yaml:"downloadUrl,omitempty"`
}

// Covers are the still and animated thumbnails of a video.
type Covers struct {
	Cover   string `json:"cover,omitempty" yaml:"cover,omitempty"`
	Origin  string `json:"origin,omitempty" yaml:"origin,omitempty"`
	Dynamic string `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
}

// ItemAuthor is the creator of a VideoItem.
type ItemAuthor struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Handle    string `json:"handle,omitempty" yaml:"handle,omitempty"`
	Nickname  string `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty"`
}

// Music is the sound attached to a video.
type Music struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	PlayURL    string `json:"playUrl,omitempty" yaml:"playUrl,omitempty"`
	AuthorName string `json:"authorName,omitempty" yaml:"authorName,omitempty"`
	IsOriginal bool   `json:"isOriginal,omitempty" yaml:"isOriginal,omitempty"`
}

// ItemStats are a video's engagement counters.
type ItemStats struct {
	Likes    int64 `json:"likes" yaml:"likes"`
	Shares   int64 `json:"shares" yaml:"shares"`
	Comments int64 `json:"comments" yaml:"comments"`
	Plays    int64 `json:"plays" yaml:"plays"`
}

func (*VideoItem) RecordType() string { return "video" }

// UserProfile is a user's public profile with their counters.
type UserProfile struct {
	ID             string `json:"id" yaml:"id"`
	Handle         string `json:"handle" yaml:"handle"`
	Nickname       string `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	Signature      string `json:"signature,omitempty" yaml:"signature,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty"`
	FollowerCount  int64  `json:"followerCount" yaml:"followerCount"`
	FollowingCount int64  `json:"followingCount" yaml:"followingCount"`
	HeartCount     int64  `json:"heartCount" yaml:"heartCount"`
	VideoCount     int64  `json:"videoCount" yaml:"videoCount"`
}

func (*UserProfile) RecordType() string { return "user" }

// Comment is a top-level comment on a post.
type Comment struct {
	Text       string         `json:"text" yaml:"text"`
	CreatedAt  time.Time      `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
	LikeCount  int64          `json:"likeCount" yaml:"likeCount"`
	ReplyCount int64          `json:"replyCount" yaml:"replyCount"`
	Author     *CommentAuthor `json:"author,omitempty" yaml:"author,omitempty"`
}

// CommentAuthor is the user who wrote a Comment.
type CommentAuthor struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Nickname  string `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty"`
}

func (*Comment) RecordType() string { return "comment" }

// MarkupItem is the minimal record recovered from visible markup when no
// embedded state could be used.
type MarkupItem struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

func (*MarkupItem) RecordType() string { return "markup" }

// Result is the ordered outcome of one Request. Records may be empty; an
// empty result is a success.
type Result struct {
	Kind     Kind     `json:"kind" yaml:"kind"`
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Records  []Record `json:"records" yaml:"records"`
	Cursor   int64    `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	HasMore  bool     `json:"hasMore,omitempty" yaml:"hasMore,omitempty"`
}
