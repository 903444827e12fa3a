package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/events"
	"github.com/example/appointment-scheduler/internal/refdata"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// AppointmentServiceDeps captures dependencies for constructing an
// appointment service. Nil fields fall back to factory defaults.
type AppointmentServiceDeps struct {
	Series        application.SeriesRepository
	Sets          application.SetRepository
	Jobs          application.JobLister
	Refdata       refdata.Resolver
	Bookings      refdata.BookingDirectory
	Emitter       events.Emitter
	Runner        application.BackgroundRunner
	IDGenerator   func() string
	Now           func() time.Time
	Logger        *slog.Logger
	BulkThreshold int
}

// NewAppointmentService builds an appointment service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewAppointmentService(deps AppointmentServiceDeps) *application.AppointmentService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	resolver := deps.Refdata
	if resolver == nil {
		resolver = DefaultResolver()
	}
	bookings := deps.Bookings
	if bookings == nil {
		bookings = DefaultDirectory()
	}
	return application.NewAppointmentService(
		deps.Series,
		deps.Sets,
		deps.Jobs,
		resolver,
		bookings,
		deps.Emitter,
		deps.Runner,
		deps.Logger,
		idGen,
		now,
		deps.BulkThreshold,
	)
}

// DefaultResolver returns a static reference data resolver covering the codes
// the fixtures use.
func DefaultResolver() *refdata.StaticResolver {
	return &refdata.StaticResolver{
		Categories: map[string]refdata.Category{
			"CHAP": {Code: "CHAP", Description: "Chaplaincy"},
			"MEDO": {Code: "MEDO", Description: "Medical - Doctor"},
		},
		Tiers: map[string]refdata.Tier{
			"1": {Code: "1", Description: "Tier 1"},
			"2": {Code: "2", Description: "Tier 2"},
		},
		Locations: map[int64]refdata.Location{
			27: {ID: 27, Description: "Chapel"},
			35: {ID: 35, Description: "Health Care Centre"},
		},
		Organisers: map[string]refdata.Organiser{
			"org-1": {ID: "org-1", Name: "Prison staff"},
		},
	}
}

// DefaultDirectory returns a static booking directory covering the people the
// fixtures use.
func DefaultDirectory() *refdata.StaticDirectory {
	return &refdata.StaticDirectory{
		Bookings: map[string]map[string]int64{
			"MDI": {
				"A1234BC": 10001,
				"B5678CD": 10002,
			},
		},
	}
}
