package api

import (
	"errors"
	"sync"

	"custody-workbench/internal/ordering"
	"custody-workbench/internal/quote"
	"custody-workbench/internal/session"
	"custody-workbench/internal/tracking"
)

var (
	errWorkspaceNotFound = errors.New("session not found")
	errNotTracked        = errors.New("transfer not tracked in this session")
)

// workspace is the set of components attached to one session.
type workspace struct {
	session *session.Session
	quotes  *quote.Manager
	orders  *ordering.Controller

	mu        sync.Mutex
	trackings map[string]*tracking.Tracking
}

// openWorkspace opens a session and attaches its quote manager, order
// controller and tracking set. Closing the session tears all of them down.
func (s *Server) openWorkspace(profile string) *workspace {
	sess := s.deps.Sessions.Open(profile)
	logger := s.deps.Logger.With().Str("session_id", sess.ID()).Logger()

	manager := quote.NewManager(s.deps.Upstream,
		quote.WithHolder(sess),
		quote.WithClock(s.deps.Clock),
		quote.WithTick(s.deps.QuoteTick),
		quote.WithLogger(logger),
	)

	opts := []ordering.Option{
		ordering.WithQuotes(manager),
		ordering.WithNotifier(s.deps.Notifier),
		ordering.WithClock(s.deps.Clock),
		ordering.WithLogger(logger),
	}
	if s.deps.Prices != nil {
		opts = append(opts, ordering.WithPrices(s.deps.Prices))
	}
	if s.deps.Journal != nil {
		opts = append(opts, ordering.WithJournal(s.deps.Journal))
	}

	ws := &workspace{
		session:   sess,
		quotes:    manager,
		orders:    ordering.NewController(sess.ID(), s.deps.Upstream, s.deps.Cache, opts...),
		trackings: make(map[string]*tracking.Tracking),
	}

	s.mu.Lock()
	s.workspaces[sess.ID()] = ws
	s.mu.Unlock()

	// Closers run in reverse order of registration.
	_ = sess.OnClose(func() {
		s.mu.Lock()
		delete(s.workspaces, sess.ID())
		s.mu.Unlock()
		if s.deps.Notices != nil {
			s.deps.Notices.Forget(sess.ID())
		}
	})
	_ = sess.OnClose(manager.Close)

	s.logger.Info().Str("session_id", sess.ID()).Str("profile", profile).Msg("session opened")
	return ws
}

func (s *Server) workspace(id string) (*workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[id]
	if !ok {
		return nil, errWorkspaceNotFound
	}
	return ws, nil
}

// addTracking ties tr to the session. A session closed while the withdrawal
// was in flight stops tr at once and reports session.ErrClosed.
func (ws *workspace) addTracking(tr *tracking.Tracking) error {
	if err := ws.session.OnClose(tr.Stop); err != nil {
		tr.Stop()
		return err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if prev, ok := ws.trackings[tr.TransferID()]; ok && prev != tr {
		prev.Stop()
	}
	ws.trackings[tr.TransferID()] = tr
	return nil
}

func (ws *workspace) tracking(transferID string) (*tracking.Tracking, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	tr, ok := ws.trackings[transferID]
	if !ok {
		return nil, errNotTracked
	}
	return tr, nil
}
