// Package quota tracks per-identity usage of the free allowance against an
// external PostgREST-style record store. Store failures degrade to
// "unavailable" rather than propagating: a quota-store outage must never be
// the reason an otherwise healthy request fails, except where policy
// explicitly requires blocking (insufficient quota).
package quota

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/kbukum/aiviz/internal/httpclient"
	"github.com/kbukum/aiviz/internal/logger"
)

const recordsPath = "/rest/v1/user_quotas"

// DefaultAllowance is the free allowance provisioned on first lookup.
const DefaultAllowance = 10

// Config configures the quota ledger.
type Config struct {
	// URL is the quota store base URL (e.g. the Supabase project URL).
	URL string `yaml:"url" mapstructure:"url"`
	// ServiceKey authenticates against the store.
	ServiceKey string `yaml:"service_key" mapstructure:"service_key"`
	// Allowance is the total quota provisioned for new identities.
	Allowance int `yaml:"allowance" mapstructure:"allowance"`
	// Timeout bounds each store round trip.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Allowance <= 0 {
		c.Allowance = DefaultAllowance
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Quota is a point-in-time usage snapshot for one identity.
type Quota struct {
	Total     int `json:"total"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// record is the store's wire representation.
type record struct {
	UserID     string `json:"user_id"`
	TotalQuota int    `json:"total_quota"`
	UsedQuota  int    `json:"used_quota"`
}

// Ledger reads and consumes per-identity quota records.
type Ledger struct {
	client    *httpclient.Client
	allowance int
	enabled   bool
	log       *logger.Logger
}

// New creates a quota ledger. With an unconfigured store (missing URL or
// key) the ledger reports every quota as unavailable.
func New(cfg Config, log *logger.Logger) *Ledger {
	cfg.ApplyDefaults()

	l := &Ledger{
		allowance: cfg.Allowance,
		enabled:   cfg.URL != "" && cfg.ServiceKey != "",
		log:       log.WithComponent("quota"),
	}
	if l.enabled {
		l.client = httpclient.New(httpclient.Config{
			BaseURL:     cfg.URL,
			Timeout:     cfg.Timeout,
			BearerToken: cfg.ServiceKey,
			Headers:     map[string]string{"apikey": cfg.ServiceKey},
		})
	}
	return l
}

// Get returns the current quota for identity, lazily provisioning a record
// with the default allowance on first lookup. A nil result means the store
// is unreachable or unconfigured — callers decide how to treat "cannot
// verify" per their own policy.
func (l *Ledger) Get(ctx context.Context, identity string) *Quota {
	if !l.enabled {
		l.log.Warn("quota store not configured, cannot check quota")
		return nil
	}

	var records []record
	query := "user_id=eq." + url.QueryEscape(identity) + "&select=*"
	if err := l.client.GetJSON(ctx, recordsPath, query, &records); err != nil {
		l.log.WithError(err).Warn("quota lookup failed")
		return nil
	}

	if len(records) > 0 {
		return l.snapshot(records[0])
	}
	return l.provision(ctx, identity)
}

// Consume records one unit of usage. It re-reads the current quota and
// refuses without mutation when nothing remains. The read and the write are
// two separate round trips with no compare-and-swap: concurrent consumers of
// the same identity can both pass the remaining-check before either writes.
// This lost-update race is an accepted property of the store protocol, not a
// bug to fix here.
func (l *Ledger) Consume(ctx context.Context, identity string) bool {
	if !l.enabled {
		return false
	}

	q := l.Get(ctx, identity)
	if q == nil || q.Remaining <= 0 {
		return false
	}

	_, err := l.client.Do(ctx, httpclient.Request{
		Method: http.MethodPatch,
		Path:   recordsPath,
		Query:  "user_id=eq." + url.QueryEscape(identity),
		Body:   map[string]int{"used_quota": q.Used + 1},
	})
	if err != nil {
		l.log.WithError(err).Warn("quota consume failed")
		return false
	}
	return true
}

// provision creates the initial record for an identity.
func (l *Ledger) provision(ctx context.Context, identity string) *Quota {
	_, err := l.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    recordsPath,
		Headers: map[string]string{"Prefer": "return=representation"},
		Body: record{
			UserID:     identity,
			TotalQuota: l.allowance,
			UsedQuota:  0,
		},
	})
	if err != nil {
		l.log.WithError(err).Warn("quota provisioning failed")
		return nil
	}

	return &Quota{Total: l.allowance, Used: 0, Remaining: l.allowance}
}

// snapshot converts a store record, defaulting a zero total to the
// configured allowance the way the store's seed data expects.
func (l *Ledger) snapshot(r record) *Quota {
	total := r.TotalQuota
	if total == 0 {
		total = l.allowance
	}
	return &Quota{
		Total:     total,
		Used:      r.UsedQuota,
		Remaining: total - r.UsedQuota,
	}
}
