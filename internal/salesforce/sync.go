package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
	"leadcrm_backend/platform/phone"
	"leadcrm_backend/platform/sanitize"

	"github.com/rotisserie/eris"
)

const (
	// DefaultWindow is how far back a sync looks by default.
	DefaultWindow = 24 * time.Hour
	// MaxWindow bounds on-demand syncs.
	MaxWindow = 30 * 24 * time.Hour

	fetchAttempts = 3
	uidAttempts   = 5
	soqlTime      = "2006-01-02T15:04:05Z"
)

// Lead is a Salesforce Lead record.
type Lead struct {
	ID               string `json:"Id" salesforce:"Id"`
	FirstName        string `json:"FirstName" salesforce:"FirstName"`
	LastName         string `json:"LastName" salesforce:"LastName"`
	Owner            *Owner `json:"Owner" salesforce:"Owner"`
	Phone            string `json:"Phone" salesforce:"Phone"`
	LeadSource       string `json:"LeadSource" salesforce:"LeadSource"`
	Status           string `json:"Status" salesforce:"Status"`
	CreatedDate      string `json:"CreatedDate" salesforce:"CreatedDate"`
	Branch           string `json:"Branch__c" salesforce:"Branch__c"`
	LastFollowUpDate string `json:"Last_Follow_Up_Date__c" salesforce:"Last_Follow_Up_Date__c"`
	FollowUpRemarks  string `json:"Last_3_Follow_Up_Remarks__c" salesforce:"Last_3_Follow_Up_Remarks__c"`
}

// Owner is the lead owner relationship.
type Owner struct {
	Name string `json:"Name" salesforce:"Name"`
}

// Record is a Salesforce lead normalised for lead_master.
type Record struct {
	SalesforceID string
	CustomerName string
	Mobile       string
	Source       string
	SubSource    string
	Date         time.Time
	FollowUpDate *time.Time
	Remarks      string
	CREName      string
	PS           PSOwner
}

// Result counts what a sync did.
type Result struct {
	Fetched    int            `json:"fetched"`
	Inserted   int            `json:"inserted"`
	Updated    int            `json:"updated"`
	Duplicates int            `json:"duplicates"`
	Skipped    map[string]int `json:"skipped"`
	Unassigned int            `json:"unassigned"`
	PSAssigned int            `json:"ps_assigned"`
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
}

func (r *Result) skip(reason string) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]int)
	}
	r.Skipped[reason]++
}

// Skip reasons.
const (
	skipMissingData   = "missing_source_or_phone"
	skipUnmapped      = "unmapped_source"
	skipInvalidPhone  = "invalid_phone"
	skipInvalidDate   = "invalid_created_date"
	skipExact         = "exact_duplicate"
	skipDuplicateFull = "duplicate_known_or_full"
	skipUIDExhausted  = "uid_exhausted"
)

// Store is what Syncer needs from the repository.
type Store interface {
	NextSequence(ctx context.Context) (int64, error)
	FindByMobile(ctx context.Context, mobile string) (*ExistingLead, error)
	UpdateExisting(ctx context.Context, id int64, remarks string, followUp *time.Time) error
	InsertLead(ctx context.Context, rec Record, uid string) (bool, error)
	AddDuplicate(ctx context.Context, original ExistingLead, rec Record) (bool, error)
}

// Syncer pulls recent Salesforce leads into lead_master.
type Syncer struct {
	client  Client
	store   Store
	owners  *OwnerMap
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSyncer creates a syncer. m may be nil.
func NewSyncer(client Client, store Store, owners *OwnerMap, m *metrics.Metrics, log *logger.Logger) *Syncer {
	if owners == nil {
		owners = &OwnerMap{}
	}
	return &Syncer{client: client, store: store, owners: owners, metrics: m, log: log, now: time.Now, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run syncs leads created within window of now.
func (s *Syncer) Run(ctx context.Context, window time.Duration) (Result, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if window > MaxWindow {
		window = MaxWindow
	}
	to := s.now().UTC()
	res := Result{From: to.Add(-window), To: to}
	log := s.log.WithContext(ctx)

	leads, err := s.fetch(ctx, res.From, res.To)
	if err != nil {
		return res, err
	}
	res.Fetched = len(leads)
	if len(leads) == 0 {
		log.Info("salesforce sync found no leads", "from", res.From, "to", res.To)
		return res, nil
	}

	seq, err := s.store.NextSequence(ctx)
	if err != nil {
		return res, err
	}

	for _, l := range leads {
		rec, reason := s.normalize(l)
		if reason != "" {
			res.skip(reason)
			continue
		}

		existing, err := s.store.FindByMobile(ctx, rec.Mobile)
		if err != nil {
			return res, err
		}
		if existing != nil {
			if err := s.mergeExisting(ctx, &res, *existing, rec); err != nil {
				return res, err
			}
			continue
		}

		inserted := false
		for i := 0; i < uidAttempts && !inserted; i++ {
			uid := GenerateUID(rec.SubSource, rec.Mobile, seq)
			seq++
			if inserted, err = s.store.InsertLead(ctx, rec, uid); err != nil {
				return res, err
			}
		}
		if !inserted {
			res.skip(skipUIDExhausted)
			continue
		}
		res.Inserted++
		switch {
		case rec.PS.Name != "":
			res.PSAssigned++
		case rec.CREName == "":
			res.Unassigned++
		}
	}

	s.observe(res)
	log.Info("salesforce sync finished",
		"fetched", res.Fetched, "inserted", res.Inserted, "updated", res.Updated,
		"duplicates", res.Duplicates, "unassigned", res.Unassigned, "skipped", res.Skipped)
	return res, nil
}

func (s *Syncer) mergeExisting(ctx context.Context, res *Result, existing ExistingLead, rec Record) error {
	if existing.Source == rec.Source && existing.SubSource == rec.SubSource {
		if !shouldUpdate(existing, rec) {
			res.skip(skipExact)
			return nil
		}
		if err := s.store.UpdateExisting(ctx, existing.ID, rec.Remarks, rec.FollowUpDate); err != nil {
			return err
		}
		res.Updated++
		return nil
	}
	recorded, err := s.store.AddDuplicate(ctx, existing, rec)
	if err != nil {
		return err
	}
	if !recorded {
		res.skip(skipDuplicateFull)
		return nil
	}
	res.Duplicates++
	return nil
}

func shouldUpdate(existing ExistingLead, rec Record) bool {
	if rec.Remarks != "" && rec.Remarks != existing.Remarks {
		return true
	}
	if rec.FollowUpDate != nil && (existing.FollowUpDate == nil || !existing.FollowUpDate.Equal(*rec.FollowUpDate)) {
		return true
	}
	return false
}

func (s *Syncer) fetch(ctx context.Context, from, to time.Time) ([]Lead, error) {
	soql := fmt.Sprintf(`SELECT Id, FirstName, LastName, Owner.Name, Phone, LeadSource, Status, CreatedDate, `+
		`Branch__c, Last_Follow_Up_Date__c, Last_3_Follow_Up_Remarks__c `+
		`FROM Lead WHERE CreatedDate >= %s AND CreatedDate <= %s`,
		from.Format(soqlTime), to.Format(soqlTime))

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, time.Duration(1<<(attempt-1))*time.Second); err != nil {
				return nil, eris.Wrap(err, "salesforce retry wait")
			}
		}
		var leads []Lead
		if err := s.client.Query(ctx, soql, &leads); err != nil {
			lastErr = err
			s.log.WithContext(ctx).Warn("salesforce query failed", "attempt", attempt+1, "error", err)
			continue
		}
		return leads, nil
	}
	return nil, eris.Wrapf(lastErr, "salesforce query failed after %d attempts", fetchAttempts)
}

// normalize returns a skip reason when l cannot be stored.
func (s *Syncer) normalize(l Lead) (Record, string) {
	if strings.TrimSpace(l.LeadSource) == "" || strings.TrimSpace(l.Phone) == "" {
		return Record{}, skipMissingData
	}
	source, sub, ok := MapSource(l.LeadSource)
	if !ok {
		return Record{}, skipUnmapped
	}
	mobile, ok := phone.NormalizeMobile(l.Phone)
	if !ok {
		return Record{}, skipInvalidPhone
	}
	created, err := parseSFTime(l.CreatedDate)
	if err != nil {
		return Record{}, skipInvalidDate
	}

	name := sanitize.Text(strings.TrimSpace(l.FirstName + " " + l.LastName))
	if name == "" {
		name = "Unknown"
	}
	rec := Record{
		SalesforceID: l.ID,
		CustomerName: name,
		Mobile:       mobile,
		Source:       source,
		SubSource:    sub,
		Date:         dateOnly(created),
		Remarks:      sanitize.Remarks(FormatRemarks(ParseRemarks(l.FollowUpRemarks))),
	}
	if fu, err := parseSFTime(l.LastFollowUpDate); err == nil {
		d := dateOnly(fu)
		rec.FollowUpDate = &d
	}

	owner := ""
	if l.Owner != nil {
		owner = l.Owner.Name
	}
	switch kind, cre, ps := s.owners.Resolve(owner); kind {
	case OwnerCRE:
		rec.CREName = cre
	case OwnerPS:
		rec.PS = ps
		rec.CREName = s.owners.DefaultCRE
	}
	return rec, ""
}

// parseSFTime accepts Salesforce datetimes (2026-10-15T04:30:00.000+0000)
// and plain dates.
func parseSFTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unparseable salesforce time %q", v)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Syncer) observe(res Result) {
	if s.metrics == nil {
		return
	}
	c := s.metrics.SalesforceLeads
	c.WithLabelValues("inserted").Add(float64(res.Inserted))
	c.WithLabelValues("updated").Add(float64(res.Updated))
	c.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	skipped := 0
	for _, n := range res.Skipped {
		skipped += n
	}
	c.WithLabelValues("skipped").Add(float64(skipped))
}
