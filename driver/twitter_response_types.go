// ABOUTME: Structured bindings for the X/Twitter internal GraphQL responses
// ABOUTME: Covers user lookup and the user-tweets timeline with cursors and media entities

package driver

import "time"

// GraphQLError is one entry of the response-level errors array.
type GraphQLError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// GraphQLResponse is the outer envelope of every GraphQL call.
type GraphQLResponse struct {
	Data   UserData       `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// HasErrorCode reports whether any errors[] entry carries the given code.
func (r *GraphQLResponse) HasErrorCode(code int) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// UserData wraps the user payload for both user-by-screen-name and user-tweets.
type UserData struct {
	User struct {
		Result UserResult `json:"result"`
	} `json:"user"`
}

// UserResult carries the resolved user id and, for timeline queries, the
// timeline instructions.
type UserResult struct {
	TypeName   string `json:"__typename"`
	RestID     string `json:"rest_id"`
	TimelineV2 struct {
		Timeline struct {
			Instructions []TimelineInstruction `json:"instructions"`
		} `json:"timeline"`
	} `json:"timeline_v2"`
}

// TimelineInstruction is one timeline mutation; only TimelineAddEntries is
// consumed here.
type TimelineInstruction struct {
	Type    string          `json:"type"`
	Entries []TimelineEntry `json:"entries"`
}

// TimelineEntry is either a tweet item or a cursor.
type TimelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		EntryType   string `json:"entryType"`
		CursorType  string `json:"cursorType"`
		Value       string `json:"value"`
		ItemContent struct {
			TweetResults struct {
				Result TweetResult `json:"result"`
			} `json:"tweet_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

// TweetResult is the tweet payload. TweetWithVisibilityResults nests the real
// tweet one level deeper; Unwrap flattens that.
type TweetResult struct {
	TypeName string       `json:"__typename"`
	RestID   string       `json:"rest_id"`
	Tweet    *TweetResult `json:"tweet"`
	Legacy   TweetLegacy  `json:"legacy"`
	Core     struct {
		UserResults struct {
			Result struct {
				Legacy struct {
					ScreenName string `json:"screen_name"`
				} `json:"legacy"`
			} `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
}

// Unwrap returns the inner tweet for TweetWithVisibilityResults, or the
// receiver for a plain Tweet. Unknown typenames return nil.
func (t *TweetResult) Unwrap() *TweetResult {
	switch t.TypeName {
	case "Tweet":
		return t
	case "TweetWithVisibilityResults":
		if t.Tweet != nil {
			return t.Tweet
		}
		return nil
	default:
		return nil
	}
}

// TweetLegacy carries the created-at timestamp and the media entities.
type TweetLegacy struct {
	CreatedAt        string `json:"created_at"`
	ExtendedEntities struct {
		Media []MediaEntity `json:"media"`
	} `json:"extended_entities"`
}

// CreatedAtTime parses the legacy ruby-style timestamp; zero time on failure.
func (l *TweetLegacy) CreatedAtTime() time.Time {
	t, err := time.Parse(time.RubyDate, l.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// MediaEntity is one attached media: photo, video or animated_gif.
type MediaEntity struct {
	Type          string `json:"type"`
	MediaURLHTTPS string `json:"media_url_https"`
	VideoInfo     struct {
		Variants []VideoVariant `json:"variants"`
	} `json:"video_info"`
}

// VideoVariant is one rendition of a video or animated gif.
type VideoVariant struct {
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// BestMP4 returns the mp4 variant with the highest bitrate, or an empty URL
// when no mp4 rendition exists.
func (m *MediaEntity) BestMP4() string {
	best := ""
	bestBitrate := -1
	for _, v := range m.VideoInfo.Variants {
		if v.ContentType != "video/mp4" {
			continue
		}
		if v.Bitrate > bestBitrate {
			bestBitrate = v.Bitrate
			best = v.URL
		}
	}
	return best
}

// SessionStatus is the result of a session probe.
type SessionStatus struct {
	LoggedIn bool   `json:"logged_in"`
	Host     string `json:"host,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
