// Package seed loads reference data (accounts, publications, entity types,
// Qs, transmission queues, upload locations) from a YAML file. Applying the
// same file twice leaves the database unchanged: records are matched by slug
// and updated in place.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"syndicate/internal/content"
	"syndicate/internal/entity"
	"syndicate/internal/rules"
	"syndicate/internal/services"
	"syndicate/internal/transmission"
)

// File is the seed document.
type File struct {
	Accounts           []Account    `yaml:"accounts"`
	EntityTypes        []EntityType `yaml:"entity_types"`
	Qs                 []Q          `yaml:"qs"`
	TransmissionQueues []Queue      `yaml:"transmission_queues"`
}

// Account seeds an account and, for providers, its publications.
type Account struct {
	Slug         string        `yaml:"slug"`
	Title        string        `yaml:"title"`
	Kind         string        `yaml:"kind"`
	Email        string        `yaml:"email"`
	Active       *bool         `yaml:"active"`
	Publications []Publication `yaml:"publications"`
}

// Publication seeds a provider publication.
type Publication struct {
	Slug         string `yaml:"slug"`
	Title        string `yaml:"title"`
	Copyright    string `yaml:"copyright"`
	AutoSchedule bool   `yaml:"auto_schedule"`
	TimeZone     string `yaml:"time_zone"`
	Disclaimer   string `yaml:"disclaimer"`
	Active       *bool  `yaml:"active"`
}

// EntityType seeds an entity type.
type EntityType struct {
	Name               string  `yaml:"name"`
	Active             *bool   `yaml:"active"`
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	ScopeNote          string  `yaml:"scope_note"`
}

// Q seeds a Q with its rules.
type Q struct {
	Slug                 string     `yaml:"slug"`
	Title                string     `yaml:"title"`
	Type                 string     `yaml:"type"`
	ItemsAge             int        `yaml:"items_age"`
	PublishedNoLaterThan *time.Time `yaml:"published_no_later_than"`
	Rules                []Rule     `yaml:"rules"`
}

// Rule is one tag rule of a Q.
type Rule struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
}

// Queue seeds a buyer transmission queue. Publications are written as
// "account/publication".
type Queue struct {
	Buyer              string   `yaml:"buyer"`
	Slug               string   `yaml:"slug"`
	Title              string   `yaml:"title"`
	Kind               string   `yaml:"kind"`
	LoadFrequency      string   `yaml:"load_frequency"`
	AutoSchedule       bool     `yaml:"auto_schedule"`
	RefineTags         string   `yaml:"refine_tags"`
	StripImages        bool     `yaml:"strip_images"`
	FilePerPublication bool     `yaml:"file_per_publication"`
	FilePerIndustry    bool     `yaml:"file_per_industry"`
	BlackList          string   `yaml:"black_list"`
	WhiteList          string   `yaml:"white_list"`
	XMLFormat          string   `yaml:"xml_format"`
	Active             *bool    `yaml:"active"`
	Publications       []string `yaml:"publications"`
	FilterPublications []string `yaml:"filter_publications"`
	Qs                 []string `yaml:"qs"`
	Uploads            []Upload `yaml:"uploads"`
}

// Upload is one upload location of a queue.
type Upload struct {
	Kind     string `yaml:"kind"`
	Location string `yaml:"location"`
	Active   *bool  `yaml:"active"`
}

// Store is the persistence seeding writes to.
type Store interface {
	CreateAccount(ctx context.Context, a *content.Account) error
	UpdateAccount(ctx context.Context, a *content.Account) error
	AccountBySlug(ctx context.Context, slug string) (*content.Account, error)
	CreatePublication(ctx context.Context, p *content.Publication) error
	UpdatePublication(ctx context.Context, p *content.Publication) error
	PublicationBySlug(ctx context.Context, accountSlug, slug string) (*content.Publication, error)
	GetOrCreateEntityType(ctx context.Context, name string) (*entity.Type, bool, error)
	QBySlug(ctx context.Context, slug string) (*rules.Q, error)
	SaveTransmissionQ(ctx context.Context, q *transmission.Queue) error
	TransmissionQBySlug(ctx context.Context, buyerID int64, slug string) (*transmission.Queue, error)
	SaveUploadLocation(ctx context.Context, loc *transmission.UploadLocation) error
}

// QSaver stores a Q and rebuilds its membership.
type QSaver interface {
	SaveQ(ctx context.Context, q *rules.Q) (int, error)
}

// TypeSaver stores an entity type and recomputes the items it gates.
type TypeSaver interface {
	SaveType(ctx context.Context, t *entity.Type) (int, error)
}

// Services route Q and entity type writes through the domain services.
type Services struct {
	Qs    QSaver
	Types TypeSaver
}

// Summary counts what Apply wrote.
type Summary struct {
	Accounts     int
	Publications int
	EntityTypes  int
	Qs           int
	Queues       int
	Uploads      int
}

// Load reads and decodes a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document, rejecting unknown fields.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode seed: %w", services.ErrValidation, err)
	}
	return &f, nil
}

// Apply writes the document. Qs and entity types go through svc so
// memberships and entity item flags are recomputed.
func Apply(ctx context.Context, st Store, svc Services, f *File) (Summary, error) {
	var sum Summary
	if f == nil {
		return sum, errors.New("seed file is nil")
	}
	if svc.Qs == nil || svc.Types == nil {
		return sum, errors.New("seed requires Q and entity type services")
	}
	for _, a := range f.Accounts {
		n, err := applyAccount(ctx, st, a)
		if err != nil {
			return sum, fmt.Errorf("account %s: %w", a.Slug, err)
		}
		sum.Accounts++
		sum.Publications += n
	}
	for _, t := range f.EntityTypes {
		et, _, err := st.GetOrCreateEntityType(ctx, t.Name)
		if err != nil {
			return sum, fmt.Errorf("entity type %s: %w", t.Name, err)
		}
		et.Source = entity.SourceManual
		et.Active = boolOr(t.Active, true)
		et.RelevanceThreshold = t.RelevanceThreshold
		et.ScopeNote = t.ScopeNote
		if _, err := svc.Types.SaveType(ctx, et); err != nil {
			return sum, fmt.Errorf("entity type %s: %w", t.Name, err)
		}
		sum.EntityTypes++
	}
	for _, q := range f.Qs {
		if err := applyQ(ctx, st, svc.Qs, q); err != nil {
			return sum, fmt.Errorf("q %s: %w", q.Slug, err)
		}
		sum.Qs++
	}
	for _, q := range f.TransmissionQueues {
		n, err := applyQueue(ctx, st, q)
		if err != nil {
			return sum, fmt.Errorf("transmission queue %s/%s: %w", q.Buyer, q.Slug, err)
		}
		sum.Queues++
		sum.Uploads += n
	}
	return sum, nil
}

func applyAccount(ctx context.Context, st Store, in Account) (int, error) {
	kind, err := content.ParseAccountKind(in.Kind)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", services.ErrValidation, err)
	}
	acct, err := st.AccountBySlug(ctx, in.Slug)
	switch {
	case err == nil:
		if acct.Kind != kind {
			return 0, fmt.Errorf("%w: existing account is kind %s", services.ErrConflict, acct.Kind)
		}
		acct.Title, acct.Email, acct.Active = titleOr(in.Title, in.Slug), in.Email, boolOr(in.Active, true)
		if err := st.UpdateAccount(ctx, acct); err != nil {
			return 0, err
		}
	case errors.Is(err, services.ErrNotFound):
		acct = &content.Account{
			Slug:   strings.TrimSpace(in.Slug),
			Title:  titleOr(in.Title, in.Slug),
			Kind:   kind,
			Email:  in.Email,
			Active: boolOr(in.Active, true),
		}
		if err := st.CreateAccount(ctx, acct); err != nil {
			return 0, err
		}
	default:
		return 0, err
	}

	for _, p := range in.Publications {
		pub, err := st.PublicationBySlug(ctx, acct.Slug, p.Slug)
		fresh := errors.Is(err, services.ErrNotFound)
		if err != nil && !fresh {
			return 0, err
		}
		if fresh {
			pub = &content.Publication{AccountID: acct.ID, Slug: strings.TrimSpace(p.Slug)}
		}
		pub.Title = titleOr(p.Title, p.Slug)
		pub.Copyright = p.Copyright
		pub.AutoSchedule = p.AutoSchedule
		pub.TimeZone = p.TimeZone
		pub.Disclaimer = p.Disclaimer
		pub.Active = boolOr(p.Active, true)
		if fresh {
			err = st.CreatePublication(ctx, pub)
		} else {
			err = st.UpdatePublication(ctx, pub)
		}
		if err != nil {
			return 0, fmt.Errorf("publication %s: %w", p.Slug, err)
		}
	}
	return len(in.Publications), nil
}

func applyQ(ctx context.Context, st Store, qs QSaver, in Q) error {
	q, err := st.QBySlug(ctx, in.Slug)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			return err
		}
		q = &rules.Q{Slug: strings.TrimSpace(in.Slug)}
	}
	q.Title = titleOr(in.Title, in.Slug)
	q.ItemsAge = in.ItemsAge
	q.PublishedNoLaterThan = in.PublishedNoLaterThan
	switch strings.ToLower(strings.TrimSpace(in.Type)) {
	case "", "i", "internal":
		q.Type = rules.QInternal
	case "e", "external":
		q.Type = rules.QExternal
	default:
		return fmt.Errorf("%w: unknown q type %q", services.ErrValidation, in.Type)
	}
	q.Rules = q.Rules[:0]
	for _, r := range in.Rules {
		kind, err := rules.ParseKind(r.Kind)
		if err != nil {
			return fmt.Errorf("%w: %w", services.ErrValidation, err)
		}
		q.Rules = append(q.Rules, rules.TagRule{Kind: kind, Value: r.Value})
	}
	_, err = qs.SaveQ(ctx, q)
	return err
}

func applyQueue(ctx context.Context, st Store, in Queue) (int, error) {
	buyer, err := st.AccountBySlug(ctx, in.Buyer)
	if err != nil {
		return 0, fmt.Errorf("buyer: %w", err)
	}
	q, err := st.TransmissionQBySlug(ctx, buyer.ID, in.Slug)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			return 0, err
		}
		q = &transmission.Queue{BuyerID: buyer.ID, Slug: strings.TrimSpace(in.Slug)}
	}
	kind := transmission.Kind(strings.ToLower(strings.TrimSpace(in.Kind)))
	switch kind {
	case "":
		kind = transmission.KindStandard
	case transmission.KindStandard, transmission.KindKeyword:
	default:
		return 0, fmt.Errorf("%w: unknown queue kind %q", services.ErrValidation, in.Kind)
	}
	q.Title = titleOr(in.Title, in.Slug)
	q.Kind = kind
	q.LoadFrequency = in.LoadFrequency
	q.AutoSchedule = in.AutoSchedule
	q.RefineTags = in.RefineTags
	q.StripImages = in.StripImages
	q.FilePerPublication = in.FilePerPublication
	q.FilePerIndustry = in.FilePerIndustry
	q.BlackList = in.BlackList
	q.WhiteList = in.WhiteList
	q.XMLFormat = in.XMLFormat
	q.Active = boolOr(in.Active, true)
	if q.SubPublications, err = resolvePublications(ctx, st, in.Publications); err != nil {
		return 0, err
	}
	if q.FilterPublications, err = resolvePublications(ctx, st, in.FilterPublications); err != nil {
		return 0, err
	}
	q.Qs = q.Qs[:0]
	for _, slug := range in.Qs {
		rq, err := st.QBySlug(ctx, slug)
		if err != nil {
			return 0, fmt.Errorf("q %s: %w", slug, err)
		}
		q.Qs = append(q.Qs, rq.ID)
	}
	if err := st.SaveTransmissionQ(ctx, q); err != nil {
		return 0, err
	}

	for _, u := range in.Uploads {
		loc := &transmission.UploadLocation{
			QueueID:  q.ID,
			Kind:     transmission.LocationOther,
			Location: strings.TrimSpace(u.Location),
			Active:   boolOr(u.Active, true),
		}
		switch strings.ToLower(strings.TrimSpace(u.Kind)) {
		case "f", "ftp":
			loc.Kind = transmission.LocationFTP
		case "", "o", "other", "dir":
		default:
			return 0, fmt.Errorf("%w: unknown upload kind %q", services.ErrValidation, u.Kind)
		}
		if err := st.SaveUploadLocation(ctx, loc); err != nil {
			return 0, err
		}
	}
	return len(in.Uploads), nil
}

func resolvePublications(ctx context.Context, st Store, refs []string) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		account, slug, ok := strings.Cut(ref, "/")
		if !ok {
			return nil, fmt.Errorf("%w: publication %q must be written as account/publication", services.ErrValidation, ref)
		}
		pub, err := st.PublicationBySlug(ctx, account, slug)
		if err != nil {
			return nil, fmt.Errorf("publication %s: %w", ref, err)
		}
		ids = append(ids, pub.ID)
	}
	return ids, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func titleOr(title, slug string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return strings.TrimSpace(slug)
}
