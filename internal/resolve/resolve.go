// Package resolve maps the participants of a message onto the company and
// contact directory and keeps the message's thread record current.
package resolve

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/mailingest/internal/header"
	"github.com/matheus3301/mailingest/internal/store"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Directory is the storage the resolver reads and writes. *store.DB
// implements it.
type Directory interface {
	CompanyByDomain(domain string) (*store.Company, error)
	InsertCompany(c *store.Company) (*store.Company, error)
	UpsertContact(c *store.Contact) error
	UpsertThread(t *store.Thread) error
}

// Participants is what the resolver needs to know about one message.
type Participants struct {
	Sender     string
	SenderName string
	Recipients []string
	CC         []string

	ThreadID string
	Subject  string
	SentAt   *time.Time
}

// Result is the outcome of resolving one message.
type Result struct {
	// CompanyID is the company of the primary external domain. It is nil
	// when the message has no external participant or resolution failed.
	CompanyID *string
	// Domain is the primary external domain, if any.
	Domain   string
	External []string
	// Err is the storage error that aborted resolution, already logged.
	Err error
}

// Resolver classifies participants as internal or external and resolves
// companies, contacts and threads.
type Resolver struct {
	dir    Directory
	orgs   []string
	logger *zap.Logger
	newID  func() string
	upper  cases.Caser
	lower  cases.Caser
}

// New creates a resolver. orgDomains are the organization's own domains;
// their subdomains count as internal too.
func New(dir Directory, orgDomains []string, logger *zap.Logger) *Resolver {
	orgs := make([]string, 0, len(orgDomains))
	for _, d := range orgDomains {
		d = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(d, "@")))
		if d != "" {
			orgs = append(orgs, d)
		}
	}
	return &Resolver{
		dir:    dir,
		orgs:   orgs,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
		upper:  cases.Upper(language.Und),
		lower:  cases.Lower(language.Und),
	}
}

// IsInternal reports whether addr belongs to the organization.
func (r *Resolver) IsInternal(addr string) bool {
	domain, ok := header.Domain(addr)
	if !ok {
		return false
	}
	for _, org := range r.orgs {
		if domain == org || strings.HasSuffix(domain, "."+org) {
			return true
		}
	}
	return false
}

// External returns the external participants in sender, recipients, cc
// order, without duplicates or empty entries.
func (r *Resolver) External(p Participants) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		if !r.IsInternal(addr) {
			out = append(out, addr)
		}
	}
	add(p.Sender)
	for _, a := range p.Recipients {
		add(a)
	}
	for _, a := range p.CC {
		add(a)
	}
	return out
}

// Resolve links the message to a company, records an external sender as a
// contact and upserts the thread. Storage failures are logged and returned
// in Result.Err with a nil CompanyID; they never abort the message.
//
// When several external domains appear on one message only the primary one
// (the sender's, else the first external address) is linked.
func (r *Resolver) Resolve(p Participants) Result {
	res := Result{External: r.External(p)}

	companyID, err := r.link(p, &res)
	if err == nil {
		err = r.dir.UpsertThread(&store.Thread{
			ID:               p.ThreadID,
			Subject:          p.Subject,
			RelatedCompanyID: companyID,
			LastMessageAt:    p.SentAt,
		})
		if err != nil {
			err = fmt.Errorf("upsert thread %s: %w", p.ThreadID, err)
		}
	}
	if err != nil {
		r.logger.Warn("entity resolution failed",
			zap.Error(err),
			zap.String("domain", res.Domain),
			zap.String("thread_id", p.ThreadID))
		res.Err = err
		return res
	}
	res.CompanyID = companyID
	return res
}

func (r *Resolver) link(p Participants, res *Result) (*string, error) {
	if len(res.External) == 0 {
		return nil, nil
	}
	sender := strings.ToLower(strings.TrimSpace(p.Sender))
	senderExternal := sender != "" && res.External[0] == sender

	domain, ok := header.Domain(res.External[0])
	if !ok {
		return nil, nil
	}
	res.Domain = domain

	company, err := r.company(domain)
	if err != nil {
		return nil, err
	}

	if senderExternal {
		if err := r.dir.UpsertContact(&store.Contact{
			Email:     sender,
			CompanyID: company.ID,
			FullName:  p.SenderName,
		}); err != nil {
			return nil, fmt.Errorf("upsert contact %s: %w", sender, err)
		}
	}
	return &company.ID, nil
}

func (r *Resolver) company(domain string) (*store.Company, error) {
	c, err := r.dir.CompanyByDomain(domain)
	if err != nil {
		return nil, fmt.Errorf("lookup company %s: %w", domain, err)
	}
	if c != nil {
		return c, nil
	}
	c, err = r.dir.InsertCompany(&store.Company{
		ID:     r.newID(),
		Name:   r.CompanyName(domain),
		Domain: domain,
		Type:   store.CompanyUnclassified,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("company created", zap.String("domain", domain), zap.String("company_id", c.ID))
	return c, nil
}

// CompanyName derives the default company name from a domain: its first
// label with the first letter upper-cased and the rest lower-cased.
func (r *Resolver) CompanyName(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	if label == "" {
		return ""
	}
	first := []rune(label)[:1]
	return r.upper.String(string(first)) + r.lower.String(label[len(string(first)):])
}
