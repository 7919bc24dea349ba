package repository

import (
	"encoding/json"
	"net/url"
	"strconv"

	"vridge/internal/directory"
	"vridge/internal/models"
)

// Every entity has exactly one decode function. Missing or mistyped fields
// fall back to their zero value instead of rejecting the record.

func decodeUser(uid string, record directory.Record) models.User {
	user := models.User{
		UID:      uid,
		Username: stringField(record, "username"),
		Email:    stringField(record, "email"),
		Point:    intField(record, "point"),
		Type:     stringField(record, "type"),
	}

	if user.Point < 0 {
		user.Point = 0
	}

	if raw := stringField(record, "profileImageURL"); raw != "" {
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			user.ProfileImageURL = u.String()
		}
	}

	return user
}

func decodePost(postID string, record directory.Record) models.Post {
	return models.Post{
		PostID:    postID,
		AuthorID:  stringField(record, "uid"),
		Username:  stringField(record, "username"),
		Type:      stringField(record, "type"),
		Caption:   stringField(record, "caption"),
		Photos:    stringList(record, "images"),
		Timestamp: int64Field(record, "timestamp"),
		Point:     intField(record, "point"),
	}
}

func encodePost(post *models.Post) directory.Record {
	return directory.Record{
		"uid":       post.AuthorID,
		"username":  post.Username,
		"type":      post.Type,
		"caption":   post.Caption,
		"images":    append([]string{}, post.Photos...),
		"timestamp": post.Timestamp,
		"point":     post.Point,
	}
}

func decodeNotice(noticeID string, record directory.Record) models.Notice {
	return models.Notice{
		NoticeID:  noticeID,
		Title:     stringField(record, "title"),
		Content:   stringField(record, "content"),
		Timestamp: int64Field(record, "timestamp"),
	}
}

func stringField(record directory.Record, key string) string {
	s, _ := record[key].(string)
	return s
}

func intField(record directory.Record, key string) int {
	return int(int64Field(record, key))
}

func int64Field(record directory.Record, key string) int64 {
	switch v := record[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func stringList(record directory.Record, key string) []string {
	out := []string{}

	switch v := record[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}

	return out
}
