// internal/match/matchmaker.go
package match

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"virucide/internal/game"
)

// GroupWindow is how long the queue waits after reaching quorum for more
// seekers before grouping whoever is there.
const GroupWindow = 5 * time.Second

// Ticket is one seeker in the public queue.
type Ticket struct {
	UserID     uuid.UUID
	Name       string
	EnqueuedAt time.Time

	// Notify delivers the found_game code to the seeker. Called with the
	// queue lock held; must not block.
	Notify func(code string)
}

// Matchmaker pools public-game seekers and groups them FIFO into matchmade
// matches. Its lock covers only the queue, so queue traffic never blocks
// match traffic.
type Matchmaker struct {
	mu       sync.Mutex
	registry *Registry
	queue    []*Ticket

	groupTimer *time.Timer
	timerGen   int

	// GroupWindowDur and ConfirmWindowDur are overridable for tests.
	GroupWindowDur   time.Duration
	ConfirmWindowDur time.Duration

	logger *logrus.Logger
}

func NewMatchmaker(registry *Registry, logger *logrus.Logger) *Matchmaker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Matchmaker{
		registry:         registry,
		GroupWindowDur:   GroupWindow,
		ConfirmWindowDur: StartWindow,
		logger:           logger,
	}
}

// Search enqueues a ticket. A full group (MaxPlayers) is matched at once;
// otherwise reaching quorum arms the grouping timer, which matches
// whoever is queued when it fires. Searching twice is a validation error.
func (mm *Matchmaker) Search(t *Ticket) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	for _, queued := range mm.queue {
		if queued.UserID == t.UserID {
			return game.Invalidf("you are already searching for a match")
		}
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	mm.queue = append(mm.queue, t)
	mm.logger.WithFields(logrus.Fields{
		"user":    t.UserID,
		"waiting": len(mm.queue),
	}).Info("matchmaking: seeker enqueued")

	if len(mm.queue) >= MaxPlayers {
		mm.groupUnsafe()
		return nil
	}
	if len(mm.queue) == MinPlayers {
		mm.armGroupTimerUnsafe()
	}
	return nil
}

// StopSearching withdraws a seeker's ticket. Idempotent: withdrawing an
// absent ticket is a no-op. Dropping below quorum disarms the grouping
// timer so it cannot fire for a queue that no longer qualifies.
func (mm *Matchmaker) StopSearching(userID uuid.UUID) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	for i, t := range mm.queue {
		if t.UserID == userID {
			mm.queue = append(mm.queue[:i], mm.queue[i+1:]...)
			break
		}
	}
	if len(mm.queue) < MinPlayers {
		mm.disarmGroupTimerUnsafe()
	}
}

// Waiting reports the queue length.
func (mm *Matchmaker) Waiting() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.queue)
}

// armGroupTimerUnsafe schedules grouping after the window. The generation
// counter makes a stale fire (timer disarmed or already consumed by an
// early full group) a no-op. Assumes lock is held.
func (mm *Matchmaker) armGroupTimerUnsafe() {
	mm.disarmGroupTimerUnsafe()
	gen := mm.timerGen
	mm.groupTimer = time.AfterFunc(mm.GroupWindowDur, func() {
		mm.mu.Lock()
		defer mm.mu.Unlock()
		if mm.timerGen != gen {
			return
		}
		mm.groupTimer = nil
		if len(mm.queue) >= MinPlayers {
			mm.groupUnsafe()
		}
	})
}

func (mm *Matchmaker) disarmGroupTimerUnsafe() {
	mm.timerGen++
	if mm.groupTimer != nil {
		mm.groupTimer.Stop()
		mm.groupTimer = nil
	}
}

// groupUnsafe takes up to MaxPlayers tickets off the queue, creates the
// match, opens its confirmation window and notifies every grouped seeker.
// Assumes lock is held.
func (mm *Matchmaker) groupUnsafe() {
	mm.disarmGroupTimerUnsafe()

	n := len(mm.queue)
	if n > MaxPlayers {
		n = MaxPlayers
	}
	group := mm.queue[:n]
	mm.queue = append([]*Ticket(nil), mm.queue[n:]...)

	m := mm.registry.Create(VisibilityPublic, uuid.Nil, n)
	m.OpenConfirmWindow(mm.ConfirmWindowDur)

	mm.logger.WithFields(logrus.Fields{
		"code":    m.Code,
		"players": n,
	}).Info("matchmaking: group formed")

	for _, t := range group {
		if t.Notify != nil {
			t.Notify(m.Code)
		}
	}

	// leftover seekers start a fresh window if they still hold quorum
	if len(mm.queue) >= MinPlayers {
		mm.armGroupTimerUnsafe()
	}
}
