package application_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/events"
	"github.com/example/appointment-scheduler/internal/jobs"
	"github.com/example/appointment-scheduler/internal/persistence"
	"github.com/example/appointment-scheduler/internal/refdata"
	"github.com/example/appointment-scheduler/internal/testfixtures"
)

type seriesRepoStub struct {
	mu     sync.Mutex
	series map[string]*appointment.Series
	saves  int
}

func newSeriesRepoStub() *seriesRepoStub {
	return &seriesRepoStub{series: make(map[string]*appointment.Series)}
}

func (s *seriesRepoStub) CreateSeries(_ context.Context, series *appointment.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[series.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.series[series.ID] = series
	return nil
}

func (s *seriesRepoStub) SaveSeries(_ context.Context, series *appointment.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[series.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.series[series.ID] = series
	s.saves++
	return nil
}

func (s *seriesRepoStub) GetSeries(_ context.Context, id string) (*appointment.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return series, nil
}

func (s *seriesRepoStub) GetSeriesByOccurrence(_ context.Context, occurrenceID string) (*appointment.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, series := range s.series {
		if _, ok := series.Occurrence(occurrenceID); ok {
			return series, nil
		}
	}
	return nil, persistence.ErrNotFound
}

func (s *seriesRepoStub) ListSeriesForFacility(_ context.Context, facilityCode string) ([]*appointment.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*appointment.Series
	for _, series := range s.series {
		if series.FacilityCode == facilityCode {
			matches = append(matches, series)
		}
	}
	return matches, nil
}

func (s *seriesRepoStub) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type setRepoStub struct {
	sets map[string]*appointment.Set
}

func newSetRepoStub() *setRepoStub {
	return &setRepoStub{sets: make(map[string]*appointment.Set)}
}

func (s *setRepoStub) CreateSet(_ context.Context, set *appointment.Set) error {
	if _, ok := s.sets[set.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.sets[set.ID] = set
	return nil
}

func (s *setRepoStub) GetSet(_ context.Context, id string) (*appointment.Set, error) {
	set, ok := s.sets[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return set, nil
}

type jobListerStub struct {
	filter persistence.JobFilter
	jobs   []persistence.Job
}

func (s *jobListerStub) ListJobs(_ context.Context, filter persistence.JobFilter) ([]persistence.Job, error) {
	s.filter = filter
	return s.jobs, nil
}

type emitterStub struct {
	mu     sync.Mutex
	events []events.AuditEvent
}

func (s *emitterStub) Emit(_ context.Context, event events.AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *emitterStub) all() []events.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.AuditEvent(nil), s.events...)
}

// runnerStub executes the definition inline and reports the outcome on done.
// A prepare hook, when set, runs just before the work so tests can disturb
// state between the synchronous phase and the background tail.
type runnerStub struct {
	prepare func()
	done    chan error
}

func newRunnerStub() *runnerStub {
	return &runnerStub{done: make(chan error, 1)}
}

func (r *runnerStub) RunWithRetry(ctx context.Context, def jobs.Definition) error {
	if r.prepare != nil {
		r.prepare()
	}
	err := def.Work(ctx)
	r.done <- err
	return err
}

type serviceHarness struct {
	service    *application.AppointmentService
	seriesRepo *seriesRepoStub
	setRepo    *setRepoStub
	jobLister  *jobListerStub
	emitter    *emitterStub
	runner     *runnerStub
	clock      *testfixtures.Clock
}

func newServiceHarness(t *testing.T, threshold int) *serviceHarness {
	t.Helper()

	resolver := &refdata.StaticResolver{
		Categories: map[string]refdata.Category{"CHAP": {Code: "CHAP", Description: "Chaplaincy"}},
		Tiers: map[string]refdata.Tier{
			"1": {Code: "1", Description: "Tier 1"},
			"2": {Code: "2", Description: "Tier 2"},
		},
		Locations:  map[int64]refdata.Location{27: {ID: 27, Description: "Chapel"}},
		Organisers: map[string]refdata.Organiser{"org-1": {ID: "org-1", Name: "Chaplain"}},
	}
	directory := &refdata.StaticDirectory{Bookings: map[string]map[string]int64{
		"MDI": {"A1234BC": 10001, "B5678CD": 10002},
	}}

	harness := &serviceHarness{
		seriesRepo: newSeriesRepoStub(),
		setRepo:    newSetRepoStub(),
		jobLister:  &jobListerStub{},
		emitter:    &emitterStub{},
		runner:     newRunnerStub(),
		clock:      testfixtures.NewClock(time.Date(2023, time.December, 1, 12, 0, 0, 0, time.UTC)),
	}
	ids := testfixtures.NewIDGenerator("id")
	harness.service = application.NewAppointmentService(
		harness.seriesRepo,
		harness.setRepo,
		harness.jobLister,
		resolver,
		directory,
		harness.emitter,
		harness.runner,
		nil,
		ids.NextFunc(),
		harness.clock.NowFunc(),
		threshold,
	)
	return harness
}

func validSeriesInput() application.SeriesInput {
	locationID := int64(27)
	return application.SeriesInput{
		FacilityCode:      "MDI",
		CategoryCode:      "CHAP",
		TierCode:          "1",
		Kind:              "GROUP",
		LocationID:        &locationID,
		StartDate:         time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		StartTime:         "09:00",
		EndTime:           "10:30",
		Repeat:            &application.RepeatInput{Frequency: "WEEKLY", Count: 3},
		AttendeePersonIDs: []string{"A1234BC"},
	}
}

func TestCreateSeries_MaterializesWeeklySeries(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 0)
	ctx := context.Background()

	result, err := harness.service.CreateSeries(ctx, application.CreateSeriesParams{
		Principal: application.Principal{Username: "TEST.USER"},
		Input:     validSeriesInput(),
	})
	if err != nil {
		t.Fatalf("create series: %v", err)
	}
	if result.Asynchronous {
		t.Fatal("below the threshold the whole series is materialized synchronously")
	}
	series := result.Series

	wantDates := []time.Time{
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
	}
	if len(series.Occurrences) != len(wantDates) {
		t.Fatalf("expected %d occurrences, got %d", len(wantDates), len(series.Occurrences))
	}
	for i, occurrence := range series.Occurrences {
		if !occurrence.Date.Equal(wantDates[i]) {
			t.Fatalf("occurrence %d: got %v want %v", i+1, occurrence.Date, wantDates[i])
		}
		attendee := occurrence.ActiveAttendee("A1234BC")
		if attendee == nil || attendee.BookingID != 10001 {
			t.Fatalf("occurrence %d: attendee not carried with booking id: %+v", i+1, attendee)
		}
	}

	if _, err := harness.seriesRepo.GetSeries(ctx, series.ID); err != nil {
		t.Fatalf("series not persisted: %v", err)
	}

	emitted := harness.emitter.all()
	if len(emitted) != 1 || emitted[0].Action != "CREATE_SERIES" || emitted[0].AffectedCount != 3 {
		t.Fatalf("unexpected audit events: %+v", emitted)
	}
}

func TestCreateSeries_SplitsAboveThreshold(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 1)
	ctx := context.Background()

	result, err := harness.service.CreateSeries(ctx, application.CreateSeriesParams{
		Principal: application.Principal{Username: "TEST.USER"},
		Input:     validSeriesInput(),
	})
	if err != nil {
		t.Fatalf("create series: %v", err)
	}

	if !result.Asynchronous {
		t.Fatal("above the threshold the tail must run in the background")
	}
	if len(result.Series.Occurrences) != 1 {
		t.Fatalf("only the first occurrence is materialized in the request, got %d", len(result.Series.Occurrences))
	}
	if result.Series.Occurrences[0].SequenceNumber != 1 {
		t.Fatalf("the synchronous occurrence must be the first, got %d", result.Series.Occurrences[0].SequenceNumber)
	}

	if err := <-harness.runner.done; err != nil {
		t.Fatalf("background creation: %v", err)
	}

	stored, err := harness.seriesRepo.GetSeries(ctx, result.Series.ID)
	if err != nil {
		t.Fatalf("series not persisted: %v", err)
	}
	if len(stored.Occurrences) != 3 {
		t.Fatalf("background creation left %d occurrences, want 3", len(stored.Occurrences))
	}
	for _, occurrence := range stored.Occurrences {
		if occurrence.ActiveAttendee("A1234BC") == nil {
			t.Fatalf("occurrence %s missing its attendee", occurrence.ID)
		}
	}
	if harness.seriesRepo.saveCount() != 1 {
		t.Fatalf("expected one background save, got %d", harness.seriesRepo.saveCount())
	}

	emitted := harness.emitter.all()
	if len(emitted) != 1 || emitted[0].Action != "CREATE_SERIES" || emitted[0].AffectedCount != 3 {
		t.Fatalf("one audit event covers the whole series: %+v", emitted)
	}
}

func TestCreateSeries_SplitIsolatesOccurrenceFailures(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 1)
	ctx := context.Background()

	// A duplicate sequence number makes one background materialization fail
	// while the rest of the batch keeps going.
	harness.runner.prepare = func() {
		stored := harness.seriesRepo.series["id-1"]
		clash := stored.NewOccurrence("intruder", 2, time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC))
		if err := stored.AddOccurrence(clash); err != nil {
			t.Errorf("seed clashing occurrence: %v", err)
		}
	}

	result, err := harness.service.CreateSeries(ctx, application.CreateSeriesParams{
		Principal: application.Principal{Username: "TEST.USER"},
		Input:     validSeriesInput(),
	})
	if err != nil {
		t.Fatalf("create series: %v", err)
	}
	if !result.Asynchronous {
		t.Fatal("above the threshold the tail must run in the background")
	}

	jobErr := <-harness.runner.done
	if jobErr == nil {
		t.Fatal("the job must report the failed occurrence")
	}
	if !strings.Contains(jobErr.Error(), "1 of 2") {
		t.Fatalf("unexpected failure summary: %v", jobErr)
	}

	stored, err := harness.seriesRepo.GetSeries(ctx, result.Series.ID)
	if err != nil {
		t.Fatalf("series not persisted: %v", err)
	}
	// Sequence 3 still materializes and the whole aggregate is saved despite
	// the sequence 2 failure.
	found := false
	for _, occurrence := range stored.Occurrences {
		if occurrence.SequenceNumber == 3 {
			found = true
			if occurrence.ActiveAttendee("A1234BC") == nil {
				t.Fatalf("occurrence %s missing its attendee", occurrence.ID)
			}
		}
	}
	if !found {
		t.Fatal("the occurrence after the failed one was not materialized")
	}
	if harness.seriesRepo.saveCount() != 1 {
		t.Fatalf("a partial failure must still save the aggregate, got %d saves", harness.seriesRepo.saveCount())
	}
}

func TestCreateSeries_ValidationFailures(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 0)
	ctx := context.Background()

	input := validSeriesInput()
	input.CategoryCode = "NOPE"
	input.TierCode = ""
	input.Kind = "PAIR"
	input.StartTime = "9am"
	input.Repeat = &application.RepeatInput{Frequency: "WEEKLY", Count: 0}
	input.AttendeePersonIDs = []string{"Z9999ZZ"}

	_, err := harness.service.CreateSeries(ctx, application.CreateSeriesParams{
		Principal: application.Principal{Username: "TEST.USER"},
		Input:     input,
	})

	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	for _, field := range []string{"categoryCode", "tierCode", "kind", "startTime", "repeat.count", "attendees"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected a %s error, got %v", field, vErr.FieldErrors)
		}
	}
	if len(harness.emitter.all()) != 0 {
		t.Fatal("a rejected create must not emit an audit event")
	}
}

func TestCreateSeries_OrganiserRequiresTierTwo(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 0)
	ctx := context.Background()
	organiser := "org-1"

	input := validSeriesInput()
	input.OrganiserID = &organiser

	_, err := harness.service.CreateSeries(ctx, application.CreateSeriesParams{
		Principal: application.Principal{Username: "TEST.USER"},
		Input:     input,
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["organiserId"]; !ok {
		t.Fatalf("expected an organiserId error, got %v", vErr.FieldErrors)
	}

	input.TierCode = "2"
	result, err := harness.service.CreateSeries(ctx, application.CreateSeriesParams{
		Principal: application.Principal{Username: "TEST.USER"},
		Input:     input,
	})
	if err != nil {
		t.Fatalf("tier 2 create: %v", err)
	}
	if result.Series.OrganiserID == nil || *result.Series.OrganiserID != organiser {
		t.Fatalf("organiser not recorded: %v", result.Series.OrganiserID)
	}
}

func TestGetSeries_MapsNotFound(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 0)
	if _, err := harness.service.GetSeries(context.Background(), "missing"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSeriesForFacility(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 0)
	ctx := context.Background()

	if _, err := harness.service.CreateSeries(ctx, application.CreateSeriesParams{
		Principal: application.Principal{Username: "TEST.USER"},
		Input:     validSeriesInput(),
	}); err != nil {
		t.Fatalf("create series: %v", err)
	}

	listed, err := harness.service.ListSeriesForFacility(ctx, "MDI")
	if err != nil {
		t.Fatalf("list series: %v", err)
	}
	if len(listed) != 1 || listed[0].FacilityCode != "MDI" {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	var vErr *application.ValidationError
	if _, err := harness.service.ListSeriesForFacility(ctx, ""); !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError for a blank facility, got %v", err)
	}
}

func TestCreateSet_CreatesOneOffSeries(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 0)
	ctx := context.Background()

	first := validSeriesInput()
	first.Repeat = nil
	first.AttendeePersonIDs = []string{"A1234BC"}
	second := validSeriesInput()
	second.Repeat = nil
	second.StartDate = time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	second.AttendeePersonIDs = []string{"B5678CD"}

	set, err := harness.service.CreateSet(ctx, application.CreateSetParams{
		Principal:    application.Principal{Username: "TEST.USER"},
		FacilityCode: "MDI",
		Series:       []application.SeriesInput{first, second},
	})
	if err != nil {
		t.Fatalf("create set: %v", err)
	}

	if len(set.Series) != 2 {
		t.Fatalf("expected two series, got %d", len(set.Series))
	}
	for _, series := range set.Series {
		if series.SetID == nil || *series.SetID != set.ID {
			t.Fatalf("set id not stamped on series %s", series.ID)
		}
		if len(series.Occurrences) != 1 {
			t.Fatalf("set members are one-off, got %d occurrences", len(series.Occurrences))
		}
		if _, err := harness.seriesRepo.GetSeries(ctx, series.ID); err != nil {
			t.Fatalf("series %s not persisted: %v", series.ID, err)
		}
	}
}

func TestCreateSet_RejectsRepeatingMembers(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 0)

	repeating := validSeriesInput()
	_, err := harness.service.CreateSet(context.Background(), application.CreateSetParams{
		Principal:    application.Principal{Username: "TEST.USER"},
		FacilityCode: "MDI",
		Series:       []application.SeriesInput{repeating},
	})

	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["series[0].repeat"]; !ok {
		t.Fatalf("expected a repeat error, got %v", vErr.FieldErrors)
	}
}

func TestListJobs_PassesFilter(t *testing.T) {
	t.Parallel()

	harness := newServiceHarness(t, 0)
	harness.jobLister.jobs = []persistence.Job{{ID: "job-1", Type: "CANCEL_APPOINTMENTS"}}

	jobs, err := harness.service.ListJobs(context.Background(), application.ListJobsParams{Type: "CANCEL_APPOINTMENTS", OnlyFailed: true})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if harness.jobLister.filter.Type != "CANCEL_APPOINTMENTS" || !harness.jobLister.filter.OnlyFailed {
		t.Fatalf("filter not passed through: %+v", harness.jobLister.filter)
	}
}
