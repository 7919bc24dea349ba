package models

import (
	"time"
)

const MaxCaptionLength = 200

type User struct {
	UID             string `json:"uid"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Point           int    `json:"point"`
	ProfileImageURL string `json:"profileImageURL,omitempty"`
	Type            string `json:"type"`
}

type Post struct {
	PostID    string   `json:"postId"`
	AuthorID  string   `json:"uid"`
	Username  string   `json:"username"`
	Type      string   `json:"type"`
	Caption   string   `json:"caption"`
	Photos    []string `json:"images"`
	Timestamp int64    `json:"timestamp"`
	Point     int      `json:"point"`
	// IsReported is relative to the viewer and is never stored with the post.
	IsReported bool `json:"isReported"`
}

func (p Post) CreatedAt() time.Time {
	return time.UnixMilli(p.Timestamp)
}

type Notice struct {
	NoticeID  string `json:"noticeId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// FeedWindow is the half-open range [From, To) of the next posts to fetch.
type FeedWindow struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (w FeedWindow) Empty() bool {
	return w.From >= w.To
}

// NextWindow starts at the number of posts already loaded and never runs past total.
func NextWindow(loaded, total, pageSize int) FeedWindow {
	to := loaded + pageSize
	if to > total {
		to = total
	}
	return FeedWindow{From: loaded, To: to}
}

// RankingFilter selects either every user or the users of one type.
type RankingFilter struct {
	Type string `json:"type,omitempty"`
}

var RankingAll = RankingFilter{}

func RankingByType(userType string) RankingFilter {
	return RankingFilter{Type: userType}
}

func (f RankingFilter) All() bool {
	return f.Type == ""
}

func (f RankingFilter) Match(user User) bool {
	return f.All() || user.Type == f.Type
}

func (f RankingFilter) String() string {
	if f.All() {
		return "all"
	}
	return "type=" + f.Type
}

type Ranking struct {
	Filter     RankingFilter `json:"filter"`
	Users      []User        `json:"users"`
	ComputedAt time.Time     `json:"computedAt"`
}

type RankEntry struct {
	Rank int  `json:"rank"`
	User User `json:"user"`
}

// RankingBoard splits a ranking into the podium and the list body. The body
// starts at absolute rank 4.
type RankingBoard struct {
	Podium  []User      `json:"podium"`
	Entries []RankEntry `json:"entries"`
}

const PodiumSize = 3

func NewRankingBoard(users []User) RankingBoard {
	board := RankingBoard{
		Podium:  []User{},
		Entries: []RankEntry{},
	}

	for i, user := range users {
		if i < PodiumSize {
			board.Podium = append(board.Podium, user)
			continue
		}
		board.Entries = append(board.Entries, RankEntry{Rank: i + 1, User: user})
	}

	return board
}
