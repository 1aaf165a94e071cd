// Package room implements the Room and Room Registry components (§3, §4.4,
// §4.5): per-room state, membership/access-control invariants, the replay
// log and shape index, and thread-safe creation/lookup/GC across rooms.
//
// All mutation on a single Room happens under that Room's own mutex —
// the single-writer-per-room model §5 calls for — so callers get
// sequential, total-ordered mutation+fan-out for free by holding the lock
// across "mutate, then enumerate recipients" (see internal/fanout).
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors matching the §4.5 validation order and §7 taxonomy.
var (
	ErrRoomNotFound  = errors.New("Room not found")
	ErrNotInvited    = errors.New("You are not invited to this room")
	ErrWrongPassword = errors.New("Incorrect password")
	ErrRoomFull      = errors.New("Room is full")
	ErrAlreadyInRoom = errors.New("already in a room")
	ErrNotInRoom     = errors.New("not in a room")
	ErrShapeNoID     = errors.New("shape envelope missing id")
	ErrNotCreator    = errors.New("only the room creator may do that")
)

const defaultMaxParticipants = 50

// Room is one collaborative whiteboard (§3).
type Room struct {
	mu sync.Mutex

	id        string
	name      string
	creator   string
	createdAt time.Time
	isPublic  bool
	password  string

	invitees     map[string]struct{}
	participants map[string]struct{}
	maxParticipants int

	replayLog   []replayEntry
	shapeIndex  map[string]ShapeData
	chatHistory []ChatEntry

	maxReplayLen int
	archiveDir   string
	archiveSeq   int
}

// replayEntry holds one raw outbound envelope of the replay log.
type replayEntry struct {
	payload []byte
}

// New constructs a room. maxReplayLen <= 0 disables the soft cap.
func New(name, creator string, isPublic bool, password string, invitees []string, maxReplayLen int, archiveDir string) *Room {
	inv := make(map[string]struct{}, len(invitees))
	for _, u := range invitees {
		inv[u] = struct{}{}
	}
	r := &Room{
		id:              "room_" + uuid.NewString(),
		name:            name,
		creator:         creator,
		createdAt:       time.Now(),
		isPublic:        isPublic,
		password:        password,
		invitees:        inv,
		participants:    make(map[string]struct{}),
		maxParticipants: defaultMaxParticipants,
		shapeIndex:      make(map[string]ShapeData),
		maxReplayLen:    maxReplayLen,
		archiveDir:      archiveDir,
	}
	return r
}

func (r *Room) ID() string      { return r.id }
func (r *Room) Name() string    { return r.name }
func (r *Room) Creator() string { r.mu.Lock(); defer r.mu.Unlock(); return r.creator }
func (r *Room) IsPublic() bool  { return r.isPublic }
func (r *Room) HasPassword() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.password != ""
}
func (r *Room) MaxParticipants() int { return r.maxParticipants }
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// VisibleTo implements the room-list filtering rule from §4.5: a room is
// visible to u iff isPublic, or u is an invitee, or u is the creator.
func (r *Room) VisibleTo(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isPublic {
		return true
	}
	if username == r.creator {
		return true
	}
	_, invited := r.invitees[username]
	return invited
}

// Participants returns a snapshot copy of current usernames.
func (r *Room) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.participants))
	for u := range r.participants {
		out = append(out, u)
	}
	return out
}

// ParticipantCount is a lock-free-ish convenience for registry GC checks
// (still takes the lock; "lock-free" would be a lie with a mutex present).
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Join validates and applies the §4.5 entry rules in their specified order:
// room exists (checked by caller, via registry lookup) -> invited/creator ->
// password -> not full. Returns the error for the first rule that fails.
func (r *Room) Join(username, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isPublic {
		_, invited := r.invitees[username]
		if !invited && username != r.creator {
			return ErrNotInvited
		}
	}
	if r.password != "" && password != r.password {
		return ErrWrongPassword
	}
	if len(r.participants) >= r.maxParticipants {
		return ErrRoomFull
	}
	r.participants[username] = struct{}{}
	return nil
}

// Leave removes a participant. Leaving a room one isn't in is a silent
// no-op — Connection-level bookkeeping is what decides whether Leave is
// called at all.
func (r *Room) Leave(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, username)
}

// ReplaySnapshot returns a copy of the current replay log, to be sent to a
// joiner strictly between roomJoined and any live event (§4.6, §8 property 3).
func (r *Room) ReplaySnapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.replayLog))
	for i, e := range r.replayLog {
		out[i] = e.payload
	}
	return out
}

// AppendReplay appends a raw outbound envelope to the log (draw, cursor is
// never passed here per §9 open question 4) and applies the soft-cap
// eviction policy if configured.
func (r *Room) AppendReplay(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendReplayLocked(payload)
}

func (r *Room) appendReplayLocked(payload []byte) {
	r.replayLog = append(r.replayLog, replayEntry{payload: payload})
	if r.maxReplayLen > 0 && len(r.replayLog) > r.maxReplayLen {
		r.trimLocked()
	}
}

// UpsertShape applies addShape/updateShape semantics: upsert shapeIndex[id],
// append the raw envelope to the replay log (never replacing a prior entry
// for the same id — §9 open question 3, conservative append-only choice).
func (r *Room) UpsertShape(id string, sd ShapeData, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shapeIndex[id] = sd
	r.appendReplayLocked(payload)
}

// DeleteShape removes id from the shape index and appends the raw delete
// envelope to the log.
func (r *Room) DeleteShape(id string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shapeIndex, id)
	r.appendReplayLocked(payload)
}

// Clear truncates the replay log and shape index atomically (§3 invariant).
func (r *Room) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replayLog = nil
	r.shapeIndex = make(map[string]ShapeData)
}

// ShapeSnapshot returns a copy of the current shape index, used by save and
// by the spatial-query supplement.
func (r *Room) ShapeSnapshot() map[string]ShapeData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ShapeData, len(r.shapeIndex))
	for k, v := range r.shapeIndex {
		out[k] = v
	}
	return out
}

// AppendChat records a chat message in bounded history (§3).
func (r *Room) AppendChat(e ChatEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendChat(e)
}

// ChatSnapshot returns a copy of the current chat history.
func (r *Room) ChatSnapshot() []ChatEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChatEntry, len(r.chatHistory))
	copy(out, r.chatHistory)
	return out
}

// TransferCreator reassigns Creator, enforcing that only the current
// creator may do so (Part D.3 supplement).
func (r *Room) TransferCreator(requestor, newCreator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if requestor != r.creator {
		return ErrNotCreator
	}
	r.creator = newCreator
	return nil
}
