// Package export renders transmission items as XML documents for buyers.
package export

import (
	"encoding/xml"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"syndicate/internal/content"
)

// releaseLayout is the timestamp format buyers parse in ReleaseTime and ContentDate.
const releaseLayout = "2006-01-02T15:04:05"

// Document is the default export format.
type Document struct {
	XMLName        xml.Name `xml:"Document"`
	ReleaseTime    string   `xml:"ReleaseTime,attr"`
	TransmissionID string   `xml:"TransmissionID,attr"`
	Headline       Headline `xml:"Headline"`
	Body           Body     `xml:"Body"`
	UniqID         string   `xml:"UniqID"`
	Contact        string   `xml:"Contact"`
	Copyright      string   `xml:"Copyright"`
}

// Headline carries the title and optional sub title.
type Headline struct {
	Primary   string `xml:"PrimaryHeadline"`
	Secondary string `xml:"SecondaryHeadline"`
}

// Body carries the dateline and content.
type Body struct {
	Dateline  Dateline `xml:"Dateline"`
	Content   string   `xml:"Content"`
	Copyright string   `xml:"Copyright"`
}

// Dateline identifies when, where, and by whom the content was produced.
type Dateline struct {
	ContentDate string `xml:"ContentDate"`
	Location    string `xml:"Location"`
	Attribution string `xml:"Attribution"`
}

// Source gathers everything needed to build a document.
type Source struct {
	Entry          content.Entry
	Publication    content.Publication
	Account        content.Account
	TransmissionID string
	Contact        string
	Company        string
	StripImages    bool
	Location       *time.Location
}

var imgTag = regexp.MustCompile(`(?is)<img\b[^>]*>`)

// UniqID is the stable identifier of an entry across transmissions.
func UniqID(accountSlug, publicationSlug string, entryID int64) string {
	return fmt.Sprintf("%s_%s_%010d", accountSlug, publicationSlug, entryID)
}

// FileName is the uploaded file name for an entry.
func FileName(accountSlug, publicationSlug string, entryID int64) string {
	return UniqID(accountSlug, publicationSlug, entryID) + ".xml"
}

// StripImages removes <img> tags from HTML.
func StripImages(html string) string {
	return imgTag.ReplaceAllString(html, "")
}

// Build assembles the document for an entry.
func Build(src Source) Document {
	loc := src.Location
	if loc == nil {
		loc = time.UTC
	}
	e := src.Entry
	copyright := strings.TrimSpace(src.Publication.Copyright)
	if copyright == "" {
		copyright = src.Account.Copyright(e.PubDate.In(loc).Year(), src.Company)
	}

	body := e.Body
	if src.StripImages {
		body = StripImages(body)
	}
	if disclaimer := strings.TrimSpace(src.Publication.Disclaimer); disclaimer != "" {
		body += "<p>" + disclaimer + "</p>"
	}

	return Document{
		ReleaseTime:    e.CreatedOn.In(loc).Format(releaseLayout),
		TransmissionID: src.TransmissionID,
		Headline:       Headline{Primary: e.Title, Secondary: e.SubTitle},
		Body: Body{
			Dateline: Dateline{
				ContentDate: e.PubDate.In(loc).Format(releaseLayout),
				Location:    e.Location,
				Attribution: src.Publication.Title,
			},
			Content:   body,
			Copyright: e.Credit(src.Publication, src.Account, e.PubDate.In(loc).Year(), src.Company),
		},
		UniqID:    UniqID(src.Account.Slug, src.Publication.Slug, e.ID),
		Contact:   src.Contact,
		Copyright: copyright,
	}
}

// Render encodes a document with the XML declaration.
func Render(doc Document) ([]byte, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render document %s: %w", doc.UniqID, err)
	}
	return append([]byte(xml.Header), out...), nil
}

// File is one rendered document ready for upload.
type File struct {
	Path string
	Data []byte
}

// Batch collects rendered files for one transmission run. When grouping per
// publication, files land under {batch id}/{publication slug}/.
type Batch struct {
	ID             string
	perPublication bool
	files          []File
}

// NewBatch starts an empty batch with a fresh identifier.
func NewBatch(perPublication bool) *Batch {
	return &Batch{ID: uuid.NewString(), perPublication: perPublication}
}

// Add records a rendered document and returns its upload path.
func (b *Batch) Add(publicationSlug, name string, data []byte) string {
	p := name
	if b.perPublication {
		p = path.Join(b.ID, publicationSlug, name)
	}
	b.files = append(b.files, File{Path: p, Data: data})
	return p
}

// Files returns the collected files in insertion order.
func (b *Batch) Files() []File {
	return b.files
}
