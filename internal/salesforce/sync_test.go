package salesforce

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	leads    []Lead
	failures int
	calls    int
	soql     string
}

func (f *fakeClient) Query(_ context.Context, soql string, out any) error {
	f.calls++
	f.soql = soql
	if f.calls <= f.failures {
		return errors.New("INVALID_SESSION_ID")
	}
	reflect.ValueOf(out).Elem().Set(reflect.ValueOf(append([]Lead(nil), f.leads...)))
	return nil
}

type fakeStore struct {
	seq        int64
	byMobile   map[string]*ExistingLead
	inserted   map[string]Record
	takenUIDs  map[string]bool
	updated    []int64
	duplicates []Record
	dupResult  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{seq: 41, byMobile: map[string]*ExistingLead{}, inserted: map[string]Record{}, takenUIDs: map[string]bool{}, dupResult: true}
}

func (f *fakeStore) NextSequence(context.Context) (int64, error) { return f.seq, nil }

func (f *fakeStore) FindByMobile(_ context.Context, mobile string) (*ExistingLead, error) {
	return f.byMobile[mobile], nil
}

func (f *fakeStore) UpdateExisting(_ context.Context, id int64, _ string, _ *time.Time) error {
	f.updated = append(f.updated, id)
	return nil
}

func (f *fakeStore) InsertLead(_ context.Context, rec Record, uid string) (bool, error) {
	if f.takenUIDs[uid] {
		return false, nil
	}
	f.takenUIDs[uid] = true
	f.inserted[uid] = rec
	f.byMobile[rec.Mobile] = &ExistingLead{ID: int64(len(f.inserted)), UID: uid, Source: rec.Source, SubSource: rec.SubSource, Remarks: rec.Remarks}
	return true, nil
}

func (f *fakeStore) AddDuplicate(_ context.Context, _ ExistingLead, rec Record) (bool, error) {
	if f.dupResult {
		f.duplicates = append(f.duplicates, rec)
	}
	return f.dupResult, nil
}

var syncNow = time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)

func newTestSyncer(client Client, store Store, m *metrics.Metrics) *Syncer {
	owners, _ := ParseOwnerMap([]byte(ownerYAML))
	s := NewSyncer(client, store, owners, m, logger.Discard())
	s.now = func() time.Time { return syncNow }
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func sfLead(id, owner, phone, source string) Lead {
	l := Lead{ID: id, FirstName: "Ravi", LastName: "K", Phone: phone, LeadSource: source, CreatedDate: "2026-10-15T04:30:00.000+0000"}
	if owner != "" {
		l.Owner = &Owner{Name: owner}
	}
	return l
}

func TestRunInsertsMappedLeads(t *testing.T) {
	client := &fakeClient{leads: []Lead{
		sfLead("00Q1", "Keerthana B", "+91 98765 43210", "Website"),
		sfLead("00Q2", "Aravindan P", "09123456789", "Bikewale-Q"),
		sfLead("00Q3", "CRE-Q-1154-CHE", "9000000001", "ivr_sales"),
		sfLead("00Q4", "Nobody", "9000000002", "Telephonic"),
	}}
	store := newFakeStore()
	m := metrics.New(prometheus.NewRegistry(), nil)

	res, err := newTestSyncer(client, store, m).Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 4, res.Inserted)
	assert.Equal(t, 1, res.PSAssigned)
	assert.Equal(t, 2, res.Unassigned)
	assert.Equal(t, syncNow.Add(-DefaultWindow), res.From)
	assert.Contains(t, client.soql, "CreatedDate >= 2026-10-14T06:00:00Z AND CreatedDate <= 2026-10-15T06:00:00Z")

	cre := store.inserted["WP-3210-0042"]
	assert.Equal(t, "Keerthana", cre.CREName)
	assert.Equal(t, "9876543210", cre.Mobile)
	assert.Equal(t, "Ravi K", cre.CustomerName)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), cre.Date)

	ps := store.inserted["BQ-6789-0043"]
	assert.Equal(t, PSOwner{Name: "PARAVINDAN", Branch: "Chennai"}, ps.PS)
	assert.Equal(t, "Sangeetha", ps.CREName)

	queued := store.inserted["TR-0001-0044"]
	assert.Empty(t, queued.CREName)
	assert.Empty(t, queued.PS.Name)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.SalesforceLeads.WithLabelValues("inserted")))
}

func TestRunSkipsUntrackedLeads(t *testing.T) {
	bad := sfLead("00Q9", "", "9000000003", "Website")
	bad.CreatedDate = "yesterday"
	noName := sfLead("00Q8", "", "9000000004", "cb")
	noName.FirstName, noName.LastName = "", ""
	client := &fakeClient{leads: []Lead{
		sfLead("00Q5", "", "", "Website"),
		sfLead("00Q6", "", "9000000005", "Walk-in"),
		sfLead("00Q7", "", "12345", "Website"),
		bad,
		noName,
	}}
	store := newFakeStore()

	res, err := newTestSyncer(client, store, nil).Run(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		skipMissingData:  1,
		skipUnmapped:     1,
		skipInvalidPhone: 1,
		skipInvalidDate:  1,
	}, res.Skipped)
	require.Equal(t, 1, res.Inserted)
	for _, rec := range store.inserted {
		assert.Equal(t, "Unknown", rec.CustomerName)
	}
}

func TestRunMergesExistingMobiles(t *testing.T) {
	follow := sfLead("00Q1", "", "9876543210", "Website")
	follow.FollowUpRemarks = "1. rnr 2. call back"
	client := &fakeClient{leads: []Lead{
		follow,
		sfLead("00Q2", "", "9876543211", "Website"),
		sfLead("00Q3", "", "9876543212", "Bikedekho"),
	}}
	store := newFakeStore()
	store.byMobile["9876543210"] = &ExistingLead{ID: 7, Source: SourceOEM, SubSource: SubSourceWeb, Remarks: "1. rnr"}
	store.byMobile["9876543211"] = &ExistingLead{ID: 8, Source: SourceOEM, SubSource: SubSourceWeb}
	store.byMobile["9876543212"] = &ExistingLead{ID: 9, Source: SourceOEM, SubSource: SubSourceWeb}

	res, err := newTestSyncer(client, store, nil).Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, []int64{7}, store.updated)
	assert.Equal(t, 1, res.Skipped[skipExact])
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, store.duplicates, 1)
	assert.Equal(t, SubSourceBikedekho, store.duplicates[0].SubSource)
}

func TestRunRetriesQuery(t *testing.T) {
	client := &fakeClient{failures: 2, leads: []Lead{sfLead("00Q1", "", "9876543210", "Website")}}
	res, err := newTestSyncer(client, newFakeStore(), nil).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, 1, res.Inserted)

	client = &fakeClient{failures: 3}
	_, err = newTestSyncer(client, newFakeStore(), nil).Run(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, fetchAttempts, client.calls)
}

func TestRunRetriesTakenUID(t *testing.T) {
	store := newFakeStore()
	store.takenUIDs["WP-3210-0042"] = true
	client := &fakeClient{leads: []Lead{sfLead("00Q1", "", "9876543210", "Website")}}

	res, err := newTestSyncer(client, store, nil).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Contains(t, store.inserted, "WQ-3210-0043")
}

func TestParseSFTime(t *testing.T) {
	for _, v := range []string{"2026-10-15T04:30:00.000+0000", "2026-10-15T04:30:00Z", "2026-10-15"} {
		got, err := parseSFTime(v)
		require.NoError(t, err, v)
		assert.Equal(t, 15, got.Day())
	}
	_, err := parseSFTime("")
	assert.Error(t, err)
}
