// Package jobstore is the in-process registry for papers, jobs, episodes,
// and the per-job transition event feed.
package jobstore

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// subscriberBuffer is the per-subscriber channel depth. Slow subscribers
// drop events rather than block the orchestrator.
const subscriberBuffer = 32

// Store holds all in-memory state. Jobs handed out are deep clones; the
// orchestrator mutates through UpdateJob and Transition only.
type Store struct {
	mu          sync.RWMutex
	papers      map[string]*podcast.Paper
	jobs        map[string]*podcast.Job
	transitions map[string][]podcast.Transition
	episodes    map[string]*podcast.Episode
	subs        map[string]map[int]chan podcast.Transition
	nextSubID   int
	logger      *slog.Logger
	now         func() time.Time
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		papers:      make(map[string]*podcast.Paper),
		jobs:        make(map[string]*podcast.Job),
		transitions: make(map[string][]podcast.Transition),
		episodes:    make(map[string]*podcast.Episode),
		subs:        make(map[string]map[int]chan podcast.Transition),
		logger:      logger,
		now:         time.Now,
	}
}

// CreatePaper registers an ingested paper.
func (s *Store) CreatePaper(p *podcast.Paper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.papers[p.PaperID]; exists {
		return podcast.NewError(podcast.ErrBadInput, "paper %s already exists", p.PaperID)
	}
	s.papers[p.PaperID] = p
	return nil
}

// GetPaper returns a paper by id.
func (s *Store) GetPaper(paperID string) (*podcast.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.papers[paperID]
	if !ok {
		return nil, podcast.ErrPaperNotFound
	}
	return p, nil
}

// ListPapers returns all papers, newest first.
func (s *Store) ListPapers() []*podcast.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*podcast.Paper, 0, len(s.papers))
	for _, p := range s.papers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CreateJob registers a new job in the uploaded state and records the
// initial event.
func (s *Store) CreateJob(job *podcast.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; exists {
		return podcast.NewError(podcast.ErrBadInput, "job %s already exists", job.JobID)
	}
	if _, ok := s.papers[job.PaperID]; !ok {
		return podcast.ErrPaperNotFound
	}

	job.State = podcast.StateUploaded
	job.ProgressPct = podcast.ProgressFor(podcast.StateUploaded)
	job.StartedAt = s.now()
	s.jobs[job.JobID] = job

	event := podcast.Transition{
		Seq:         1,
		To:          podcast.StateUploaded,
		ProgressPct: job.ProgressPct,
		At:          job.StartedAt,
	}
	s.transitions[job.JobID] = []podcast.Transition{event}
	s.notifyLocked(job.JobID, event)
	return nil
}

// GetJob returns a deep snapshot of a job.
func (s *Store) GetJob(jobID string) (*podcast.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, podcast.ErrJobNotFound
	}
	return job.Clone(), nil
}

// ListJobs returns snapshots of all jobs, newest first.
func (s *Store) ListJobs() []*podcast.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*podcast.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// UpdateJob applies a mutation to a job under the store lock. The mutation
// must not change the state field; state moves only through Transition.
func (s *Store) UpdateJob(jobID string, mutate func(*podcast.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return podcast.ErrJobNotFound
	}
	before := job.State
	if err := mutate(job); err != nil {
		return err
	}
	if job.State != before {
		job.State = before
		return podcast.NewError(podcast.ErrInternal, "job %s: UpdateJob must not change state", jobID)
	}
	return nil
}

// Transition moves a job to a new state, appending to the event log and
// fanning out to subscribers. Illegal transitions are rejected.
func (s *Store) Transition(jobID string, to podcast.State, detail string) (*podcast.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, podcast.ErrJobNotFound
	}
	from := job.State
	if !podcast.CanTransition(from, to) {
		return nil, podcast.NewError(podcast.ErrInternal, "job %s: illegal transition %s -> %s", jobID, from, to)
	}

	job.PreviousState = from
	job.State = to
	job.ProgressPct = podcast.ProgressFor(to)
	if from != to {
		job.RetryCountForState = 0
	}
	if to.Terminal() {
		t := s.now()
		job.EndedAt = &t
	}

	event := podcast.Transition{
		Seq:         len(s.transitions[jobID]) + 1,
		From:        from,
		To:          to,
		ProgressPct: job.ProgressPct,
		At:          s.now(),
		Detail:      detail,
	}
	s.transitions[jobID] = append(s.transitions[jobID], event)
	s.notifyLocked(jobID, event)

	s.logger.Info("job transition",
		"job_id", jobID, "from", from, "to", to, "progress", job.ProgressPct, "detail", detail)
	return job.Clone(), nil
}

// Events returns a copy of a job's transition log.
func (s *Store) Events(jobID string) ([]podcast.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, podcast.ErrJobNotFound
	}
	return append([]podcast.Transition(nil), s.transitions[jobID]...), nil
}

// Subscribe returns the job's past events plus a live feed of future ones.
// The returned cancel function must be called to release the subscription.
// Events are dropped for subscribers that fall behind.
func (s *Store) Subscribe(jobID string) ([]podcast.Transition, <-chan podcast.Transition, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil, nil, nil, podcast.ErrJobNotFound
	}

	past := append([]podcast.Transition(nil), s.transitions[jobID]...)
	ch := make(chan podcast.Transition, subscriberBuffer)

	s.nextSubID++
	id := s.nextSubID
	if s.subs[jobID] == nil {
		s.subs[jobID] = make(map[int]chan podcast.Transition)
	}
	s.subs[jobID][id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[jobID][id]; ok {
			delete(s.subs[jobID], id)
			close(sub)
		}
	}
	return past, ch, cancel, nil
}

func (s *Store) notifyLocked(jobID string, event podcast.Transition) {
	for _, ch := range s.subs[jobID] {
		select {
		case ch <- event:
		default:
			s.logger.Warn("dropping event for slow subscriber", "job_id", jobID, "seq", event.Seq)
		}
	}
}

// SaveEpisode stores a completed episode.
func (s *Store) SaveEpisode(e *podcast.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.episodes[e.EpisodeID]; exists {
		return podcast.NewError(podcast.ErrInternal, "episode %s already exists", e.EpisodeID)
	}
	s.episodes[e.EpisodeID] = e
	return nil
}

// GetEpisode returns an episode by id.
func (s *Store) GetEpisode(episodeID string) (*podcast.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.episodes[episodeID]
	if !ok {
		return nil, podcast.ErrEpisodeNotFound
	}
	return e, nil
}

// ListEpisodes returns all episodes, newest first.
func (s *Store) ListEpisodes() []*podcast.Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*podcast.Episode, 0, len(s.episodes))
	for _, e := range s.episodes {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
