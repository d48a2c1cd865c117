package tiktok

import (
	"time"

	"github.com/tidwall/gjson"
)

// Paths into TikTok's rehydration scope. Keys contain dots, hence the escapes.
const (
	userDetailPath  = `__DEFAULT_SCOPE__.webapp\.user-detail.userInfo`
	videoDetailPath = `__DEFAULT_SCOPE__.webapp\.video-detail.itemInfo.itemStruct`
)

// MapItems projects an extracted state into records for kind. It is pure:
// the same state always yields equal records. A missing top-level container
// yields an empty slice; missing nested attributes yield zero or nil fields.
func MapItems(state ExtractedState, kind Kind) []Record {
	records := []Record{}
	switch state.Strategy {
	case StrategyByID, StrategyByMarker:
		records = mapSIGI(records, state.Root, kind)
	case StrategyAlternate:
		records = mapUniversal(records, state.Root, kind)
	case StrategyAPI:
		records = mapAPI(records, state.Root, kind)
	}
	return records
}

func mapSIGI(records []Record, root gjson.Result, kind Kind) []Record {
	if kind == KindUser {
		stats := root.Get("UserModule.stats").Map()
		root.Get("UserModule.users").ForEach(func(key, user gjson.Result) bool {
			if user.IsObject() {
				records = append(records, mapProfile(user, stats[key.String()]))
			}
			return true
		})
	}
	root.Get("ItemModule").ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			records = append(records, mapVideo(item))
		}
		return true
	})
	return records
}

func mapUniversal(records []Record, root gjson.Result, kind Kind) []Record {
	if kind == KindUser {
		info := root.Get(userDetailPath)
		if user := info.Get("user"); user.IsObject() {
			records = append(records, mapProfile(user, info.Get("stats")))
		}
	}
	if item := root.Get(videoDetailPath); item.IsObject() {
		records = append(records, mapVideo(item))
	}
	return records
}

func mapAPI(records []Record, root gjson.Result, kind Kind) []Record {
	switch kind {
	case KindComments:
		root.Get("comments").ForEach(func(_, c gjson.Result) bool {
			if c.IsObject() {
				records = append(records, mapComment(c))
			}
			return true
		})
	case KindSearch:
		// general search wraps each hit; item search returns a flat list.
		root.Get("data").ForEach(func(_, hit gjson.Result) bool {
			if item := hit.Get("item"); item.IsObject() {
				records = append(records, mapVideo(item))
			}
			return true
		})
		root.Get("item_list").ForEach(func(_, item gjson.Result) bool {
			if item.IsObject() {
				records = append(records, mapVideo(item))
			}
			return true
		})
	}
	return records
}

// apiPaging reads the continuation of a JSON endpoint page.
func apiPaging(root gjson.Result) (cursor int64, hasMore bool) {
	return root.Get("cursor").Int(), root.Get("has_more").Bool()
}

func mapVideo(item gjson.Result) *VideoItem {
	v := &VideoItem{
		ID:          str(item.Get("id")),
		Description: str(item.Get("desc")),
		CreatedAt:   unixTime(item.Get("createTime")),
		Author:      mapItemAuthor(item),
	}

	if media := item.Get("video"); media.IsObject() {
		v.Video = &VideoMedia{
			ID:       str(media.Get("id")),
			Width:    int(media.Get("width").Int()),
			Height:   int(media.Get("height").Int()),
			Duration: int(media.Get("duration").Int()),
			Ratio:    str(media.Get("ratio")),
			Covers: Covers{
				Cover:   str(media.Get("cover")),
				Origin:  str(media.Get("originCover")),
				Dynamic: str(media.Get("dynamicCover")),
			},
			PlayURL:     str(media.Get("playAddr")),
			DownloadURL: str(media.Get("downloadAddr")),
		}
	}

	if music := item.Get("music"); music.IsObject() {
		v.Music = &Music{
			ID:         str(music.Get("id")),
			Title:      str(music.Get("title")),
			PlayURL:    str(music.Get("playUrl")),
			AuthorName: str(music.Get("authorName")),
			IsOriginal: music.Get("original").Bool(),
		}
	}

	if stats := item.Get("stats"); stats.IsObject() {
		v.Stats = &ItemStats{
			Likes:    stats.Get("diggCount").Int(),
			Shares:   stats.Get("shareCount").Int(),
			Comments: stats.Get("commentCount").Int(),
			Plays:    stats.Get("playCount").Int(),
		}
	}
	return v
}

// mapItemAuthor handles both shapes TikTok uses: an embedded author object,
// or a handle string with the rest of the author flattened onto the item.
func mapItemAuthor(item gjson.Result) *ItemAuthor {
	author := item.Get("author")
	switch {
	case author.IsObject():
		return &ItemAuthor{
			ID:        str(author.Get("id")),
			Handle:    str(author.Get("uniqueId")),
			Nickname:  str(author.Get("nickname")),
			AvatarURL: str(author.Get("avatarThumb")),
		}
	case author.Type == gjson.String:
		return &ItemAuthor{
			ID:        str(item.Get("authorId")),
			Handle:    author.String(),
			Nickname:  str(item.Get("nickname")),
			AvatarURL: str(item.Get("avatarThumb")),
		}
	}
	return nil
}

func mapProfile(user, stats gjson.Result) *UserProfile {
	hearts := stats.Get("heartCount")
	if !hearts.Exists() {
		hearts = stats.Get("heart")
	}
	return &UserProfile{
		ID:             str(user.Get("id")),
		Handle:         str(user.Get("uniqueId")),
		Nickname:       str(user.Get("nickname")),
		Signature:      str(user.Get("signature")),
		AvatarURL:      str(user.Get("avatarLarger")),
		FollowerCount:  stats.Get("followerCount").Int(),
		FollowingCount: stats.Get("followingCount").Int(),
		HeartCount:     hearts.Int(),
		VideoCount:     stats.Get("videoCount").Int(),
	}
}

func mapComment(c gjson.Result) *Comment {
	cm := &Comment{
		Text:       str(c.Get("text")),
		CreatedAt:  unixTime(c.Get("create_time")),
		LikeCount:  c.Get("digg_count").Int(),
		ReplyCount: c.Get("reply_comment_total").Int(),
	}
	if user := c.Get("user"); user.IsObject() {
		cm.Author = &CommentAuthor{
			ID:        str(user.Get("uid")),
			Nickname:  str(user.Get("nickname")),
			AvatarURL: str(user.Get("avatar_thumb.url_list.0")),
		}
	}
	return cm
}

// str returns scalar values as text and "" for objects, arrays and nulls.
func str(r gjson.Result) string {
	switch r.Type {
	case gjson.String, gjson.Number:
		return r.String()
	}
	return ""
}

// unixTime reads epoch seconds. Absent or zero timestamps stay zero.
func unixTime(r gjson.Result) time.Time {
	if r.Type != gjson.Number && r.Type != gjson.String {
		return time.Time{}
	}
	sec := r.Int()
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
