package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/padelclub/padelclub/internal/ledger"
	"github.com/padelclub/padelclub/internal/rating"
	"github.com/padelclub/padelclub/internal/schedule"
	"github.com/padelclub/padelclub/internal/store"
)

// Config holds the coordinator's club policy.
type Config struct {
	// GuestPrefix marks non-rated guest placeholder ids.
	GuestPrefix string
	// Admins may cancel matches, remove slots and submit results they are
	// not part of.
	Admins map[string]bool
	// Grid is the daily slot grid bookings must land on.
	Grid schedule.Grid
	// Location resolves slot (date, start) pairs to wall-clock times.
	Location *time.Location
}

// Coordinator processes every mutating lifecycle command on a single
// goroutine. That one-writer loop is what serializes read-modify-write
// cycles on match and player records; no per-record locking is needed on
// top of it.
type Coordinator struct {
	commands    chan Command
	events      chan Event
	subscribers []chan Event
	store       store.Store
	ledger      *ledger.Ledger
	rules       Rules
	grid        schedule.Grid
	admins      map[string]bool
	loc         *time.Location
	log         *logrus.Entry
	now         func() time.Time
}

// New creates a Coordinator.
func New(st store.Store, led *ledger.Ledger, cfg Config, log *logrus.Logger) *Coordinator {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Coordinator{
		commands: make(chan Command, 100),
		events:   make(chan Event, 100),
		store:    st,
		ledger:   led,
		rules:    Rules{GuestPrefix: cfg.GuestPrefix},
		grid:     cfg.Grid,
		admins:   cfg.Admins,
		loc:      loc,
		log:      log.WithField("component", "booking"),
		now:      time.Now,
	}
}

// Send submits a command to the coordinator.
func (c *Coordinator) Send(cmd Command) {
	c.commands <- cmd
}

// Events returns the main event channel for consumers.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Subscribe creates an additional event channel receiving every emitted
// event. Must be called before Run.
func (c *Coordinator) Subscribe() <-chan Event {
	ch := make(chan Event, 100)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Run starts the coordinator loop. It blocks until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Info("booking coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("booking coordinator shutting down")
			return
		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)
		}
	}
}

func (c *Coordinator) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.log.Warn("main event channel full, dropping event")
	}

	for _, ch := range c.subscribers {
		select {
		case ch <- e:
		default:
			c.log.Warn("subscriber event channel full, dropping event")
		}
	}
}

func (c *Coordinator) handleCommand(ctx context.Context, cmd Command) {
	switch cmd := cmd.(type) {
	case CreateMatch:
		res := c.handleCreate(ctx, cmd)
		if cmd.Response != nil {
			cmd.Response <- res
		}
	case JoinMatch:
		respond(cmd.Response, c.handleJoin(ctx, cmd))
	case LeaveMatch:
		respond(cmd.Response, c.handleLeave(ctx, cmd))
	case CloseMatch:
		respond(cmd.Response, c.handleClose(ctx, cmd))
	case ReopenMatch:
		respond(cmd.Response, c.handleReopen(ctx, cmd))
	case RemoveSlot:
		respond(cmd.Response, c.handleRemoveSlot(ctx, cmd))
	case InvitePlayer:
		respond(cmd.Response, c.handleInvite(ctx, cmd))
	case AcceptInvite:
		respond(cmd.Response, c.handleAcceptInvite(ctx, cmd))
	case RejectInvite:
		respond(cmd.Response, c.handleRejectInvite(ctx, cmd))
	case CancelMatch:
		respond(cmd.Response, c.handleCancel(ctx, cmd))
	case SubmitResult:
		respond(cmd.Response, c.handleSubmitResult(ctx, cmd))
	case ReplayRatings:
		respond(cmd.Response, c.handleReplay(ctx))
	case ExpireStale:
		respond(cmd.Response, c.handleExpireStale(ctx, cmd))
	case RemindUpcoming:
		c.handleRemindUpcoming(ctx, cmd)
	}
}

func respond(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func persistErr(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func (c *Coordinator) loadMatch(ctx context.Context, id string) (*store.Match, error) {
	m, err := c.store.GetMatch(ctx, id)
	if err != nil {
		return nil, persistErr(err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: match %s", ErrNotFound, id)
	}
	return m, nil
}

func (c *Coordinator) loadPlayer(ctx context.Context, id string) (*store.Player, error) {
	p, err := c.store.GetPlayer(ctx, id)
	if err != nil {
		return nil, persistErr(err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	return p, nil
}

func (c *Coordinator) isAdmin(id string) bool {
	return c.admins[id]
}

func (c *Coordinator) handleCreate(ctx context.Context, cmd CreateMatch) CreateMatchResult {
	fail := func(err error) CreateMatchResult { return CreateMatchResult{Err: err} }

	if cmd.Category != store.CategoryFriendly && cmd.Category != store.CategoryChallenge {
		return fail(fmt.Errorf("unknown category %q", cmd.Category))
	}
	if _, err := time.Parse(schedule.DateLayout, cmd.Date); err != nil {
		return fail(fmt.Errorf("bad date %q", cmd.Date))
	}
	if !c.grid.Contains(cmd.StartTime) {
		return fail(fmt.Errorf("start time %q is not on the daily grid", cmd.StartTime))
	}
	if cmd.LevelMin < rating.MinLevel || cmd.LevelMax > rating.MaxLevel || cmd.LevelMin > cmd.LevelMax {
		return fail(fmt.Errorf("bad level bounds [%.2f, %.2f]", cmd.LevelMin, cmd.LevelMax))
	}
	if len(cmd.Roster) > store.RosterSize-1 {
		return fail(ErrFull)
	}

	creator, err := c.loadPlayer(ctx, cmd.CreatorID)
	if err != nil {
		return fail(err)
	}

	// Best-effort double-booking pre-check. With strict slot uniqueness the
	// insert below backs it with a real constraint.
	existing, err := c.store.FindActiveMatch(ctx, cmd.Date, cmd.StartTime)
	if err != nil {
		return fail(persistErr(err))
	}
	if existing != nil {
		return fail(fmt.Errorf("%w: %s %s", ErrSlotConflict, cmd.Date, cmd.StartTime))
	}

	m := &store.Match{
		ID:        uuid.New().String(),
		Category:  cmd.Category,
		Date:      cmd.Date,
		StartTime: cmd.StartTime,
		LevelMin:  cmd.LevelMin,
		LevelMax:  cmd.LevelMax,
		Status:    store.StatusOpen,
		CreatorID: creator.ID,
		CreatedAt: c.now(),
	}
	// The creator takes the first slot and is not gated by the bounds they
	// chose themselves.
	m.Roster[0] = creator.ID

	var invited []string
	for _, id := range cmd.Roster {
		if m.HasPlayer(id) {
			return fail(fmt.Errorf("%w: %s listed twice", ErrAlreadyJoined, id))
		}
		if c.rules.IsGuest(id) {
			c.rules.fillFirstEmpty(m, id)
			continue
		}
		p, err := c.loadPlayer(ctx, id)
		if err != nil {
			return fail(err)
		}
		if p.Level < m.LevelMin || p.Level > m.LevelMax {
			return fail(fmt.Errorf("%w: %s at level %.2f", ErrIneligibleLevel, p.ID, p.Level))
		}
		c.rules.fillFirstEmpty(m, p.ID)
		if cmd.Category == store.CategoryChallenge {
			if m.Invited == nil {
				m.Invited = make(map[string]bool)
			}
			m.Invited[p.ID] = true
			invited = append(invited, p.ID)
		}
	}
	if m.IsFull() {
		m.Status = store.StatusClosed
	}

	if err := c.store.CreateMatch(ctx, m); err != nil {
		if store.IsUniqueViolation(err) {
			return fail(fmt.Errorf("%w: %s %s", ErrSlotConflict, cmd.Date, cmd.StartTime))
		}
		return fail(persistErr(err))
	}

	c.log.WithFields(logrus.Fields{
		"match":   m.ID,
		"creator": m.CreatorID,
		"slot":    cmd.Date + " " + cmd.StartTime,
	}).Info("match created")

	c.emit(MatchCreated{Match: m.Clone()})
	for _, id := range invited {
		c.emit(InviteSent{Match: m.Clone(), PlayerID: id})
	}
	if m.Status == store.StatusClosed {
		c.emit(MatchClosed{Match: m.Clone()})
	}
	return CreateMatchResult{Match: m.Clone()}
}

func (c *Coordinator) handleJoin(ctx context.Context, cmd JoinMatch) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}
	p, err := c.loadPlayer(ctx, cmd.PlayerID)
	if err != nil {
		return err
	}

	wasFull := m.IsFull()
	if err := c.rules.Join(m, p); err != nil {
		return err
	}
	if err := c.store.SaveMatch(ctx, m); err != nil {
		return persistErr(err)
	}

	c.log.WithFields(logrus.Fields{"match": m.ID, "player": p.ID}).Info("player joined")
	c.emit(RosterUpdated{Match: m.Clone()})
	if !wasFull && m.IsFull() {
		c.emit(MatchClosed{Match: m.Clone()})
	}
	return nil
}

func (c *Coordinator) handleLeave(ctx context.Context, cmd LeaveMatch) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}

	deleted, err := c.rules.Leave(m, cmd.PlayerID)
	if err != nil {
		return err
	}
	if deleted {
		if err := c.store.DeleteMatch(ctx, m.ID); err != nil {
			return persistErr(err)
		}
		c.log.WithField("match", m.ID).Info("match deleted after last leave")
		c.emit(MatchDeleted{MatchID: m.ID})
		return nil
	}

	if err := c.store.SaveMatch(ctx, m); err != nil {
		return persistErr(err)
	}
	c.log.WithFields(logrus.Fields{"match": m.ID, "player": cmd.PlayerID}).Info("player left")
	c.emit(RosterUpdated{Match: m.Clone()})
	return nil
}

func (c *Coordinator) handleClose(ctx context.Context, cmd CloseMatch) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}
	if err := c.rules.Close(m, cmd.ActorID); err != nil {
		return err
	}
	if err := c.store.SaveMatch(ctx, m); err != nil {
		return persistErr(err)
	}
	c.emit(MatchClosed{Match: m.Clone()})
	return nil
}

func (c *Coordinator) handleReopen(ctx context.Context, cmd ReopenMatch) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}
	if err := c.rules.Reopen(m, cmd.ActorID); err != nil {
		return err
	}
	if err := c.store.SaveMatch(ctx, m); err != nil {
		return persistErr(err)
	}
	c.emit(MatchReopened{Match: m.Clone()})
	return nil
}

func (c *Coordinator) handleRemoveSlot(ctx context.Context, cmd RemoveSlot) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}

	removed, deleted, err := c.rules.RemoveSlot(m, cmd.ActorID, c.isAdmin(cmd.ActorID), cmd.Index)
	if err != nil {
		return err
	}
	if deleted {
		if err := c.store.DeleteMatch(ctx, m.ID); err != nil {
			return persistErr(err)
		}
		c.emit(MatchDeleted{MatchID: m.ID})
		return nil
	}
	if err := c.store.SaveMatch(ctx, m); err != nil {
		return persistErr(err)
	}

	c.log.WithFields(logrus.Fields{
		"match": m.ID, "removed": removed, "actor": cmd.ActorID,
	}).Info("slot removed")
	c.emit(RosterUpdated{Match: m.Clone()})
	return nil
}

func (c *Coordinator) handleInvite(ctx context.Context, cmd InvitePlayer) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}
	p, err := c.loadPlayer(ctx, cmd.PlayerID)
	if err != nil {
		return err
	}

	wasFull := m.IsFull()
	if err := c.rules.Invite(m, cmd.ActorID, p); err != nil {
		return err
	}
	if err := c.store.SaveMatch(ctx, m); err != nil {
		return persistErr(err)
	}

	c.log.WithFields(logrus.Fields{"match": m.ID, "player": p.ID}).Info("invite sent")
	c.emit(InviteSent{Match: m.Clone(), PlayerID: p.ID})
	if !wasFull && m.IsFull() {
		c.emit(MatchClosed{Match: m.Clone()})
	}
	return nil
}

func (c *Coordinator) handleAcceptInvite(ctx context.Context, cmd AcceptInvite) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}
	if err := c.rules.AcceptInvite(m, cmd.PlayerID); err != nil {
		return err
	}
	if err := c.store.SaveMatch(ctx, m); err != nil {
		return persistErr(err)
	}
	c.emit(InviteAccepted{Match: m.Clone(), PlayerID: cmd.PlayerID})
	return nil
}

func (c *Coordinator) handleRejectInvite(ctx context.Context, cmd RejectInvite) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}

	deleted, err := c.rules.RejectInvite(m, cmd.PlayerID)
	if err != nil {
		return err
	}
	if deleted {
		if err := c.store.DeleteMatch(ctx, m.ID); err != nil {
			return persistErr(err)
		}
		c.emit(MatchDeleted{MatchID: m.ID})
		return nil
	}
	if err := c.store.SaveMatch(ctx, m); err != nil {
		return persistErr(err)
	}
	c.emit(InviteRejected{Match: m.Clone(), PlayerID: cmd.PlayerID})
	return nil
}

func (c *Coordinator) handleCancel(ctx context.Context, cmd CancelMatch) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}
	if err := c.rules.Cancel(m, cmd.ActorID, c.isAdmin(cmd.ActorID)); err != nil {
		return err
	}
	if err := c.store.DeleteMatch(ctx, m.ID); err != nil {
		return persistErr(err)
	}

	c.log.WithFields(logrus.Fields{"match": m.ID, "actor": cmd.ActorID}).Info("match cancelled")
	c.emit(MatchCancelled{Match: m.Clone(), ActorID: cmd.ActorID})
	return nil
}

func (c *Coordinator) handleSubmitResult(ctx context.Context, cmd SubmitResult) error {
	m, err := c.loadMatch(ctx, cmd.MatchID)
	if err != nil {
		return err
	}
	if err := c.rules.SubmitResult(m, cmd.ActorID, c.isAdmin(cmd.ActorID), cmd.Sets, c.now()); err != nil {
		return err
	}

	// The ledger persists the played match and all rating updates in one
	// transaction; on failure nothing is stored and the match stays
	// unplayed.
	deltas, err := c.ledger.ApplyResult(ctx, m)
	if err != nil {
		return persistErr(err)
	}

	c.log.WithFields(logrus.Fields{"match": m.ID, "actor": cmd.ActorID}).Info("result recorded")
	c.emit(ResultRecorded{Match: m.Clone()})
	c.emit(RatingsUpdated{MatchID: m.ID, Deltas: deltas})
	return nil
}

func (c *Coordinator) handleReplay(ctx context.Context) error {
	c.emit(ReplayStarted{})

	var total int
	err := c.ledger.ReplayAll(ctx, func(done, n int) {
		total = n
		c.emit(ReplayProgress{Done: done, Total: n})
	})
	c.emit(ReplayFinished{Total: total, Failed: err != nil})
	if err != nil {
		return persistErr(err)
	}
	return nil
}

func (c *Coordinator) handleExpireStale(ctx context.Context, cmd ExpireStale) error {
	matches, err := c.store.ListActiveMatches(ctx)
	if err != nil {
		return persistErr(err)
	}

	for i := range matches {
		m := &matches[i]
		at, err := schedule.SlotTime(m.Date, m.StartTime, c.loc)
		if err != nil {
			c.log.WithField("match", m.ID).Warnf("unparseable slot time: %v", err)
			continue
		}
		if !at.Before(cmd.Before) {
			continue
		}
		if err := c.store.DeleteMatch(ctx, m.ID); err != nil {
			return persistErr(err)
		}
		c.log.WithFields(logrus.Fields{
			"match": m.ID, "slot": m.Date + " " + m.StartTime,
		}).Info("expired stale match")
		c.emit(MatchCancelled{Match: m.Clone(), ActorID: "system"})
	}
	return nil
}

func (c *Coordinator) handleRemindUpcoming(ctx context.Context, cmd RemindUpcoming) {
	matches, err := c.store.ListActiveMatches(ctx)
	if err != nil {
		c.log.Warnf("listing matches for reminders: %v", err)
		return
	}

	for i := range matches {
		m := &matches[i]
		at, err := schedule.SlotTime(m.Date, m.StartTime, c.loc)
		if err != nil {
			continue
		}
		if at.Before(cmd.From) || !at.Before(cmd.To) {
			continue
		}
		c.emit(MatchReminder{Match: m.Clone()})
	}
}
