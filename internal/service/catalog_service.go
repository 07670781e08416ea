package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/event"
	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/store"
)

// CatalogService loads and hierarchically indexes the course → module →
// topics catalog, caching it with a TTL and keeping the learner's selection
// persisted across runs.
type CatalogService struct {
	cfg    *config.Config
	client *api.Client
	st     store.Store
	bus    *event.Bus
	log    zerolog.Logger

	// load coalesces concurrent catalog fetches into one request.
	load singleflight.Group
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(cfg *config.Config, client *api.Client, st store.Store, bus *event.Bus, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		cfg:    cfg,
		client: client,
		st:     st,
		bus:    bus,
		log:    log.With().Str("component", "catalog").Logger(),
	}
}

// Start watches session events and drops the learner-bound selection when
// the session ends. Call in a goroutine.
func (s *CatalogService) Start(ctx context.Context) {
	ch, unsubscribe := s.bus.Subscribe(event.TypeLogout, event.TypeSessionExpired)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.ClearSelection()
		}
	}
}

// Load returns the catalog, cache-first. force bypasses the cached copy.
// Concurrent loads share one network call.
func (s *CatalogService) Load(ctx context.Context, force bool) (*model.Catalog, error) {
	if !force {
		var cached model.Catalog
		if err := s.st.Get(store.StateKey.Catalog, &cached); err == nil {
			return &cached, nil
		}
	}

	v, err, _ := s.load.Do("catalog", func() (any, error) {
		list, err := s.client.AllTopics(ctx)
		if err != nil {
			return nil, err
		}
		catalog := indexTopics(list)
		if err := s.st.Set(store.StateKey.Catalog, catalog, s.cfg.CatalogTTL); err != nil {
			s.log.Warn().Err(err).Msg("Catalog cache write failed")
		}
		s.log.Debug().Int("courses", len(catalog.Courses)).Msg("Catalog loaded")
		return catalog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Catalog), nil
}

// indexTopics builds the hierarchical index. TotalModules and TopicsCount are
// derived from the actual collections so the catalog invariants hold by
// construction.
func indexTopics(list *model.TopicsList) *model.Catalog {
	catalog := &model.Catalog{Courses: make(map[string]model.Course)}

	for _, entry := range list.Modules {
		course, ok := catalog.Courses[entry.Course]
		if !ok {
			course = model.Course{Modules: make(map[string]model.Module)}
		}
		course.Modules[entry.Module] = model.Module{
			Topics:      entry.Topics,
			TopicsCount: len(entry.Topics),
			LastUpdated: entry.LastUpdated,
			Program:     entry.Program,
			Level:       entry.Level,
		}
		course.TotalModules = len(course.Modules)
		catalog.Courses[entry.Course] = course
	}
	return catalog
}

// Courses returns the course names in stable order.
func (s *CatalogService) Courses(ctx context.Context) ([]string, error) {
	catalog, err := s.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(catalog.Courses))
	for name := range catalog.Courses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CourseTopics aggregates the topics of every module of a course.
func (s *CatalogService) CourseTopics(ctx context.Context, courseName string) ([]string, error) {
	modulesTopics, err := s.ModulesTopics(ctx, courseName)
	if err != nil {
		return nil, err
	}

	moduleNames := make([]string, 0, len(modulesTopics))
	for name := range modulesTopics {
		moduleNames = append(moduleNames, name)
	}
	sort.Strings(moduleNames)

	var topics []string
	seen := make(map[string]bool)
	for _, name := range moduleNames {
		for _, topic := range modulesTopics[name] {
			if !seen[topic] {
				seen[topic] = true
				topics = append(topics, topic)
			}
		}
	}
	return topics, nil
}

// ModulesTopics returns the per-module topic map of a course, as sent with
// positioning evaluation requests.
func (s *CatalogService) ModulesTopics(ctx context.Context, courseName string) (map[string][]string, error) {
	catalog, err := s.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	course, ok := catalog.Courses[courseName]
	if !ok {
		return nil, fmt.Errorf("unknown course %q", courseName)
	}

	modulesTopics := make(map[string][]string, len(course.Modules))
	for name, mod := range course.Modules {
		modulesTopics[name] = mod.Topics
	}
	return modulesTopics, nil
}

// ModuleTopics returns the topic list of one module.
func (s *CatalogService) ModuleTopics(ctx context.Context, courseName, moduleName string) ([]string, error) {
	catalog, err := s.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	course, ok := catalog.Courses[courseName]
	if !ok {
		return nil, fmt.Errorf("unknown course %q", courseName)
	}
	mod, ok := course.Modules[moduleName]
	if !ok {
		return nil, fmt.Errorf("unknown module %q in course %q", moduleName, courseName)
	}
	return mod.Topics, nil
}

// Selection returns the persisted course/module/topics choice, or nil.
func (s *CatalogService) Selection() *model.Selection {
	var sel model.Selection
	if err := s.st.Get(store.StateKey.Selection, &sel); err != nil {
		return nil
	}
	return &sel
}

// SetSelection persists the learner's choice across runs.
func (s *CatalogService) SetSelection(sel model.Selection) error {
	return s.st.Set(store.StateKey.Selection, sel, 0)
}

// ClearSelection drops the persisted choice.
func (s *CatalogService) ClearSelection() {
	_ = s.st.Delete(store.StateKey.Selection)
}
