// Package notify buffers navigation requests and cues per user until the
// client polls the session state.
package notify

import (
	"context"
	"sync"

	"github.com/mansoorceksport/liftlog/internal/domain"
)

const maxCues = 16

const (
	CueFinalSeconds = "final_seconds"
	CueComplete     = "complete"
)

// Notifications is what the client has not seen yet.
type Notifications struct {
	Redirect domain.Destination `json:"redirect,omitempty"`
	Cues     []string           `json:"cues,omitempty"`
}

type Inbox struct {
	mu      sync.Mutex
	pending map[string]*Notifications
}

func NewInbox() *Inbox {
	return &Inbox{pending: make(map[string]*Notifications)}
}

// Navigate implements domain.Navigator. A newer destination replaces an unread one.
func (i *Inbox) Navigate(_ context.Context, userID string, to domain.Destination) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entryLocked(userID).Redirect = to
}

// PlayerFor returns a cue player that queues cues for userID.
func (i *Inbox) PlayerFor(userID string) domain.CuePlayer {
	return &inboxPlayer{inbox: i, userID: userID}
}

// Drain returns and forgets everything pending for userID.
func (i *Inbox) Drain(userID string) Notifications {
	i.mu.Lock()
	defer i.mu.Unlock()
	n, ok := i.pending[userID]
	if !ok {
		return Notifications{}
	}
	delete(i.pending, userID)
	return *n
}

func (i *Inbox) addCue(userID, cue string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := i.entryLocked(userID)
	n.Cues = append(n.Cues, cue)
	if len(n.Cues) > maxCues {
		n.Cues = n.Cues[len(n.Cues)-maxCues:]
	}
}

func (i *Inbox) entryLocked(userID string) *Notifications {
	n, ok := i.pending[userID]
	if !ok {
		n = &Notifications{}
		i.pending[userID] = n
	}
	return n
}

type inboxPlayer struct {
	inbox  *Inbox
	userID string
}

func (p *inboxPlayer) Play(final bool) {
	if final {
		p.inbox.addCue(p.userID, CueComplete)
		return
	}
	p.inbox.addCue(p.userID, CueFinalSeconds)
}
