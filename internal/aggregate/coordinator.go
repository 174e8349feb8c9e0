// Package aggregate fetches a grouped record list together with the lookup
// tables needed to show names instead of ids, and joins them for display.
package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"biztrack/internal/api"
	"biztrack/internal/cache"
	"biztrack/internal/core"
	"biztrack/internal/grouping"
	"biztrack/internal/log"
	"biztrack/internal/metrics"
	"biztrack/internal/session"
)

// Lister lists every record of a collection.
type Lister[T any] interface {
	List(ctx context.Context, userID, token string) ([]T, error)
}

// GroupedLister lists records bucketed by a filter.
type GroupedLister[T any] interface {
	ListGrouped(ctx context.Context, userID, token string, f grouping.Filter) ([]grouping.Group[T], error)
}

// SessionSource supplies the signed-in user.
type SessionSource interface {
	Current(ctx context.Context) (session.Session, error)
}

// Sources are the collections the coordinator reads.
type Sources struct {
	Receipts   GroupedLister[core.Receipt]
	Jobs       GroupedLister[core.Job]
	TripLogs   GroupedLister[core.TripLog]
	Clients    Lister[core.Client]
	Categories Lister[core.Category]
	Vehicles   Lister[core.Vehicle]
}

func SourcesFrom(b *api.Backend) Sources {
	return Sources{
		Receipts:   b.Receipts,
		Jobs:       b.Jobs,
		TripLogs:   b.TripLogs,
		Clients:    b.Clients,
		Categories: b.Categories,
		Vehicles:   b.Vehicles,
	}
}

// Coordinator runs aggregate fetches for the signed-in user.
type Coordinator struct {
	src      Sources
	sessions SessionSource
	cache    cache.Cache[core.NameIndex]
	logger   *log.Logger
	metrics  *metrics.Metrics
	lookups  singleflight.Group

	// mu guards gens and orders cache writes against Invalidate.
	mu   sync.Mutex
	gens map[string]uint64

	receiptsTracker Tracker
	jobsTracker     Tracker
	tripLogsTracker Tracker
}

type Option func(*Coordinator)

// WithCache keeps lookup tables between fetches. Without it every fetch
// reads them from the backend.
func WithCache(c cache.Cache[core.NameIndex]) Option {
	return func(co *Coordinator) { co.cache = c }
}

func WithLogger(l *log.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l.WithComponent(log.ComponentAggregate)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

func New(src Sources, sessions SessionSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		src:      src,
		sessions: sessions,
		logger:   log.Discard().WithComponent(log.ComponentAggregate),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate drops the cached lookup tables of a user. Loads already in
// flight still answer their callers but are not cached.
func (c *Coordinator) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens == nil {
		c.gens = make(map[string]uint64)
	}
	c.gens[userID]++
	for _, name := range []string{LookupClients, LookupCategories, LookupVehicles} {
		c.lookups.Forget(userID + "/" + name)
	}
	if c.cache != nil {
		c.cache.DeletePrefix(userID + "/")
	}
}

func (c *Coordinator) generation(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID]
}

// store caches idx unless the user was invalidated since gen.
func (c *Coordinator) store(key, userID string, gen uint64, idx core.NameIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		c.logger.Debug("Lookup invalidated during load, not cached", "key", key)
		return
	}
	c.cache.Set(key, idx)
}

// FetchReceipts joins receipts grouped by f with client and category names.
func (c *Coordinator) FetchReceipts(ctx context.Context, f grouping.Filter) (*Feed[ReceiptRow], error) {
	j, err := run(ctx, c, "receipts", f,
		func(ctx context.Context, s session.Session) ([]grouping.Group[core.Receipt], error) {
			return c.src.Receipts.ListGrouped(ctx, s.UserID, s.Token, f)
		},
		c.clientLookup(), c.categoryLookup(),
	)
	if err != nil {
		return nil, err
	}

	clients, categories := j.names[LookupClients], j.names[LookupCategories]
	switch f {
	case grouping.Dimension:
		relabel(j.groups, categories)
	case grouping.ByClient:
		relabel(j.groups, clients)
	}

	groups := grouping.Map(j.groups, func(r core.Receipt) ReceiptRow {
		return ReceiptRow{
			Receipt:      r,
			ClientName:   clients.Resolve(r.ClientID),
			CategoryName: categories.Resolve(r.Category),
		}
	})
	feed := newFeed(j, groups)
	for _, r := range feed.Rows {
		feed.Total = feed.Total.Add(r.Total())
	}
	return feed, nil
}

// FetchJobs joins jobs grouped by f with client names.
func (c *Coordinator) FetchJobs(ctx context.Context, f grouping.Filter) (*Feed[JobRow], error) {
	j, err := run(ctx, c, "jobs", f,
		func(ctx context.Context, s session.Session) ([]grouping.Group[core.Job], error) {
			return c.src.Jobs.ListGrouped(ctx, s.UserID, s.Token, f)
		},
		c.clientLookup(),
	)
	if err != nil {
		return nil, err
	}

	clients := j.names[LookupClients]
	if f == grouping.ByClient {
		relabel(j.groups, clients)
	}

	groups := grouping.Map(j.groups, func(job core.Job) JobRow {
		return JobRow{Job: job, ClientName: clients.Resolve(job.ClientID)}
	})
	feed := newFeed(j, groups)
	for _, r := range feed.Rows {
		feed.Total = feed.Total.Add(core.Amount(r.Income))
	}
	return feed, nil
}

// FetchTripLogs joins trip logs grouped by f with client and vehicle names.
func (c *Coordinator) FetchTripLogs(ctx context.Context, f grouping.Filter) (*Feed[TripLogRow], error) {
	j, err := run(ctx, c, "triplogs", f,
		func(ctx context.Context, s session.Session) ([]grouping.Group[core.TripLog], error) {
			return c.src.TripLogs.ListGrouped(ctx, s.UserID, s.Token, f)
		},
		c.clientLookup(), c.vehicleLookup(),
	)
	if err != nil {
		return nil, err
	}

	clients, vehicles := j.names[LookupClients], j.names[LookupVehicles]
	switch f {
	case grouping.Dimension:
		relabel(j.groups, vehicles)
	case grouping.ByClient:
		relabel(j.groups, clients)
	}

	groups := grouping.Map(j.groups, func(t core.TripLog) TripLogRow {
		return TripLogRow{
			TripLog:     t,
			ClientName:  clients.Resolve(t.ClientID),
			VehicleName: vehicles.Resolve(t.Vehicle),
		}
	})
	feed := newFeed(j, groups)
	for _, r := range feed.Rows {
		feed.Total = feed.Total.Add(core.Amount(r.TripLog.Total))
	}
	return feed, nil
}

// lookup loads one name table for the session's user.
type lookup struct {
	name string
	load func(ctx context.Context, s session.Session) (core.NameIndex, error)
}

func (c *Coordinator) clientLookup() lookup {
	return lookup{LookupClients, func(ctx context.Context, s session.Session) (core.NameIndex, error) {
		clients, err := c.src.Clients.List(ctx, s.UserID, s.Token)
		return core.ClientNames(clients), err
	}}
}

func (c *Coordinator) categoryLookup() lookup {
	return lookup{LookupCategories, func(ctx context.Context, s session.Session) (core.NameIndex, error) {
		categories, err := c.src.Categories.List(ctx, s.UserID, s.Token)
		return core.CategoryNames(categories), err
	}}
}

func (c *Coordinator) vehicleLookup() lookup {
	return lookup{LookupVehicles, func(ctx context.Context, s session.Session) (core.NameIndex, error) {
		vehicles, err := c.src.Vehicles.List(ctx, s.UserID, s.Token)
		return core.VehicleNames(vehicles), err
	}}
}

// names returns a lookup table, from the cache when possible. Concurrent
// loads of the same table share one request.
func (c *Coordinator) names(ctx context.Context, s session.Session, l lookup) (core.NameIndex, error) {
	key := s.UserID + "/" + l.name
	if c.cache != nil {
		if idx, ok := c.cache.Get(key); ok {
			c.metrics.LookupCache(true)
			return idx, nil
		}
		c.metrics.LookupCache(false)
	}

	v, err, _ := c.lookups.Do(key, func() (any, error) {
		gen := c.generation(s.UserID)
		// shared by several fetches, so it must outlive the caller that started it
		idx, err := l.load(context.WithoutCancel(ctx), s)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.store(key, s.UserID, gen, idx)
		}
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.NameIndex), nil
}

type joined[T any] struct {
	entity string
	filter grouping.Filter
	groups []grouping.Group[T]
	names  map[string]core.NameIndex
	errs   map[string]error
}

// run issues the primary request and the lookups concurrently and waits for
// all of them. Only a primary failure fails the fetch.
func run[T grouping.Timed](
	ctx context.Context,
	c *Coordinator,
	entity string,
	f grouping.Filter,
	primary func(context.Context, session.Session) ([]grouping.Group[T], error),
	lookups ...lookup,
) (*joined[T], error) {
	if _, err := grouping.ParseFilter(int(f)); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", entity, err)
	}
	s, err := c.sessions.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", entity, err)
	}

	tables := make([]core.NameIndex, len(lookups))
	lookupErrs := make([]error, len(lookups))
	var groups []grouping.Group[T]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		groups, err = primary(gctx, s)
		return err
	})
	for i, l := range lookups {
		g.Go(func() error {
			tables[i], lookupErrs[i] = c.names(gctx, s, l)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.metrics.FetchCompleted(entity, metrics.OutcomeFailed)
		c.logger.WarnContext(ctx, "Aggregate fetch failed",
			log.NewFields().
				WithOperation(log.OpGrouped).
				WithRecord(entity, "").
				WithError(err).
				ToSlice()...)
		return nil, fmt.Errorf("fetch %s: %w", entity, err)
	}

	j := &joined[T]{
		entity: entity,
		filter: f,
		groups: grouping.Sort(f, groups),
		names:  make(map[string]core.NameIndex, len(lookups)),
	}
	for i, l := range lookups {
		if lookupErrs[i] != nil {
			if j.errs == nil {
				j.errs = make(map[string]error)
			}
			j.errs[l.name] = lookupErrs[i]
			j.names[l.name] = core.NameIndex{}
			c.logger.WarnContext(ctx, "Lookup failed, names will show as unknown",
				log.FieldResource, l.name,
				log.FieldError, lookupErrs[i].Error())
			continue
		}
		j.names[l.name] = tables[i]
	}

	outcome := metrics.OutcomeOK
	if len(j.errs) > 0 {
		outcome = metrics.OutcomePartial
	}
	c.metrics.FetchCompleted(entity, outcome)
	c.logger.DebugContext(ctx, "Aggregate fetch completed",
		log.FieldResource, entity,
		log.FieldFilter, f.String(),
		log.FieldGroups, len(j.groups),
		log.FieldUserID, s.UserID)
	return j, nil
}

func newFeed[T, R any](j *joined[T], groups []grouping.Group[R]) *Feed[R] {
	return &Feed[R]{
		Entity:       j.entity,
		Filter:       j.filter,
		Groups:       groups,
		Rows:         grouping.Flatten(groups),
		Names:        j.names,
		LookupErrors: j.errs,
		Total:        decimal.Zero,
	}
}

// relabel shows the resolved name for groups keyed by an id.
func relabel[T any](groups []grouping.Group[T], idx core.NameIndex) {
	for i := range groups {
		if name, ok := idx[groups[i].Key]; ok && name != "" {
			groups[i].Label = name
		}
	}
}
