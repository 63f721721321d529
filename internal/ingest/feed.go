package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"syndicate/internal/content"
	"syndicate/internal/tagging"
)

// Feed is one provider feed document.
type Feed struct {
	Account     string      `yaml:"account"`
	Publication string      `yaml:"publication"`
	Entries     []FeedEntry `yaml:"entries"`
}

// FeedEntry is one article in a feed.
type FeedEntry struct {
	Title         string        `yaml:"title"`
	SubTitle      string        `yaml:"sub_title"`
	Slug          string        `yaml:"slug"`
	ByLine        string        `yaml:"by_line"`
	Body          string        `yaml:"body"`
	Excerpt       string        `yaml:"excerpt"`
	CreditLine    string        `yaml:"credit_line"`
	Location      string        `yaml:"location"`
	Keywords      string        `yaml:"keywords"`
	Tags          []string      `yaml:"tags"`
	Status        string        `yaml:"status"`
	PubDate       time.Time     `yaml:"pub_date"`
	ExcludeBuyers []string      `yaml:"exclude_buyers"`
	Entities      []tagging.Tag `yaml:"entities"`
}

// ParseFeed decodes and checks a feed document.
func ParseFeed(data []byte) (*Feed, error) {
	var feed Feed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	feed.Account = strings.TrimSpace(feed.Account)
	feed.Publication = strings.TrimSpace(feed.Publication)
	if feed.Account == "" || feed.Publication == "" {
		return nil, errors.New("feed requires account and publication")
	}
	if len(feed.Entries) == 0 {
		return nil, errors.New("feed has no entries")
	}
	return &feed, nil
}

// entry converts a feed entry into an editorial entry for publicationID.
// Buyer slugs are resolved by the caller.
func (f FeedEntry) entry(publicationID int64, buyers []int64) (*content.Entry, error) {
	if strings.TrimSpace(f.Title) == "" {
		return nil, errors.New("entry title is required")
	}
	status := content.StatusPublished
	if f.Status != "" {
		parsed, err := content.ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
		status = parsed
	}
	return &content.Entry{
		PublicationID: publicationID,
		Title:         strings.TrimSpace(f.Title),
		SubTitle:      f.SubTitle,
		Slug:          f.Slug,
		Body:          f.Body,
		Excerpt:       f.Excerpt,
		ByLine:        strings.TrimSpace(f.ByLine),
		CreditLine:    f.CreditLine,
		Location:      f.Location,
		Keywords:      f.Keywords,
		Tags:          f.Tags,
		Status:        status,
		PubDate:       f.PubDate.UTC(),
		ExcludeBuyers: buyers,
	}, nil
}
