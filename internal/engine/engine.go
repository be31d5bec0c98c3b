// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/splain/internal/identity"
	"github.com/jeranaias/splain/internal/model"
)

// mirrorTimeout bounds each background store call.
const mirrorTimeout = 15 * time.Second

// =============================================================================
// STORE CONTRACTS
// =============================================================================

// LocalStore persists the full chat list for anonymous sessions.
type LocalStore interface {
	Save(chats []model.Chat, activeID string) error
	Load() ([]model.Chat, string, error)
	Clear() error
}

// RemoteStore persists chats per authenticated user.
type RemoteStore interface {
	Insert(ctx context.Context, userID string, rec model.ChatRecord) (string, error)
	Update(ctx context.Context, userID, id string, rec model.ChatRecord) error
	Delete(ctx context.Context, userID, id string) error
	ListByUser(ctx context.Context, userID string) ([]model.ChatRecord, error)
}

// =============================================================================
// ENGINE
// =============================================================================

// handle is a stable internal key for a chat. The external id is a mutable
// attribute of the entry, so promotion never invalidates a handle.
type handle uint64

// entry is one chat in the arena with its private mirror queue.
type entry struct {
	chat  model.Chat
	queue *mirrorQueue
}

// Engine holds the canonical chat list and the active-chat pointer.
// All methods are safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	order    []handle
	entries  map[handle]*entry
	byID     map[string]handle
	activeID string
	next     handle

	ident       identity.State
	loadedLocal bool

	local  LocalStore
	remote RemoteStore

	// localQueue serializes whole-document local saves.
	localQueue *mirrorQueue

	// wg tracks outstanding mirror tasks so Wait can drain them.
	wg sync.WaitGroup

	// transMu serializes identity transitions: a sign-in and a sign-out
	// must each run their full store-clearing and load logic, in order.
	transMu sync.Mutex
}

// New creates an engine over the given stores, starting anonymous with no
// chats. Callers normally follow with HandleIdentity (or Watch) to load
// initial state.
func New(local LocalStore, remote RemoteStore) *Engine {
	return &Engine{
		entries:    make(map[handle]*entry),
		byID:       make(map[string]handle),
		ident:      identity.AnonymousState(),
		local:      local,
		remote:     remote,
		localQueue: newMirrorQueue(),
	}
}

// Wait blocks until every queued mirror task has finished. Used by tests
// and shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Chats returns a deep copy of the canonical chat list in display order.
func (e *Engine) Chats() []model.Chat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// ActiveID returns the active-chat pointer, which may be empty.
func (e *Engine) ActiveID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID
}

// ActiveChat returns a deep copy of the active chat, if one exists.
func (e *Engine) ActiveChat() (model.Chat, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.byID[e.activeID]; ok {
		return e.entries[h].chat.Clone(), true
	}
	return model.Chat{}, false
}

// Chat returns a deep copy of the chat with the given id.
func (e *Engine) Chat(id string) (model.Chat, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.byID[id]; ok {
		return e.entries[h].chat.Clone(), true
	}
	return model.Chat{}, false
}

// Identity returns the identity state the engine last observed.
func (e *Engine) Identity() identity.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ident
}

// snapshotLocked deep-copies the list in order. Caller must hold mu.
func (e *Engine) snapshotLocked() []model.Chat {
	out := make([]model.Chat, 0, len(e.order))
	for _, h := range e.order {
		out = append(out, e.entries[h].chat.Clone())
	}
	return out
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateNewChat mints a chat with a temporary id, prepends it, and makes it
// active. With a non-empty firstMessage the chat starts with that user
// message. While authenticated, a best-effort background persist is
// enqueued; its failure leaves the chat valid locally. Returns the
// temporary id.
func (e *Engine) CreateNewChat(title, firstMessage string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	chat := model.NewChat(title, firstMessage)
	for _, other := range e.entries {
		other.chat.IsActive = false
	}

	h := e.addLocked(chat, true)
	e.activeID = chat.ID

	e.mirrorLocked(h)
	return chat.ID
}

// SelectChat makes the chat with the given id active. The pointer is set
// unconditionally even when no chat matches; the invariant-repair pass on
// the next identity transition reconciles a dangling pointer.
func (e *Engine) SelectChat(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ent := range e.entries {
		ent.chat.IsActive = false
	}
	if h, ok := e.byID[id]; ok {
		e.entries[h].chat.IsActive = true
	}
	e.activeID = id

	e.mirrorLocalLocked()
}

// DeleteChat removes the chat. Deleting the active chat activates the
// first remaining chat, or synthesizes a fresh empty one so the list is
// never left empty. A remote delete is fired only for durable ids under an
// authenticated identity; temporary ids have nothing remote to delete.
func (e *Engine) DeleteChat(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.byID[id]
	if !ok {
		return
	}
	ent := e.entries[h]
	wasActive := ent.chat.IsActive || e.activeID == id
	durable := !model.IsTempID(id)
	queue := ent.queue

	e.removeLocked(h)

	if wasActive {
		if len(e.order) == 0 {
			fresh := model.NewChat("", "")
			e.addLocked(fresh, true)
			e.activeID = fresh.ID
		} else {
			first := e.entries[e.order[0]]
			first.chat.IsActive = true
			e.activeID = first.chat.ID
		}
	}

	if durable && e.ident.Status == identity.SignedIn {
		userID := e.ident.UserID
		e.wg.Add(1)
		// The dead chat's own queue, so a pending content mirror cannot
		// land after the delete.
		queue.enqueue(func() {
			defer e.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
			defer cancel()
			if err := e.remote.Delete(ctx, userID, id); err != nil {
				log.Printf("WARNING: remote delete of chat %s failed: %v", id, err)
			}
		})
	}
	e.mirrorLocalLocked()
}

// RenameChat sets the chat's title. The conversation topic is untouched;
// renaming is a label change, not a content change. Mirrored remotely only
// for already-promoted chats.
func (e *Engine) RenameChat(id, newTitle string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.byID[id]
	if !ok {
		return
	}
	e.entries[h].chat.Title = newTitle

	if !model.IsTempID(id) {
		e.mirrorRemoteLocked(h)
	}
	e.mirrorLocalLocked()
}

// UpdateConversation replaces the chat's conversation wholesale, bumps its
// timestamp, and adopts a non-empty conversation topic as the title. This
// is the promotion trigger for temporary-id chats under an authenticated
// identity: the background mirror inserts a remote record and swaps the id
// atomically on success.
func (e *Engine) UpdateConversation(id string, conv *model.Conversation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateConversationLocked(id, conv)
}

// AppendMessage appends one message to the chat's conversation and runs
// the same update path as UpdateConversation.
func (e *Engine) AppendMessage(id string, msg model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.byID[id]
	if !ok {
		return
	}
	chat := &e.entries[h].chat

	var conv model.Conversation
	if chat.Conversation != nil {
		conv = *chat.Conversation
	} else {
		topic := chat.Title
		if msg.IsUser {
			topic = msg.Content
		}
		conv = model.NewConversation(topic)
	}
	conv = model.AppendItem(conv, model.MessageItem(msg))
	e.updateConversationLocked(id, &conv)
}

// updateConversationLocked is the shared mutation core. Caller holds mu.
func (e *Engine) updateConversationLocked(id string, conv *model.Conversation) {
	h, ok := e.byID[id]
	if !ok {
		return
	}
	chat := &e.entries[h].chat

	if conv != nil {
		c := conv.Clone()
		chat.Conversation = &c
		if c.Topic != "" {
			chat.Title = model.DeriveTitle(c.Topic)
		}
	} else {
		chat.Conversation = nil
	}
	chat.UpdatedAt = time.Now()

	e.mirrorLocked(h)
}

// =============================================================================
// ARENA PLUMBING
// =============================================================================

// addLocked inserts a chat into the arena. Caller holds mu.
func (e *Engine) addLocked(chat model.Chat, prepend bool) handle {
	e.next++
	h := e.next
	e.entries[h] = &entry{chat: chat, queue: newMirrorQueue()}
	e.byID[chat.ID] = h
	if prepend {
		e.order = append([]handle{h}, e.order...)
	} else {
		e.order = append(e.order, h)
	}
	return h
}

// removeLocked deletes a chat from the arena, including any promotion
// aliases pointing at it. Caller holds mu.
func (e *Engine) removeLocked(h handle) {
	delete(e.entries, h)
	for key, o := range e.byID {
		if o == h {
			delete(e.byID, key)
		}
	}
	for i, o := range e.order {
		if o == h {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// promote swaps a chat's temporary id for the store-assigned one. The
// handle, the id index, and the active pointer all move together. The old
// id stays in the index as an alias, so a caller that captured it before
// the promotion (a pending reveal commit, for instance) still reaches the
// same chat. Returns false if the chat was deleted while the insert was in
// flight.
func (e *Engine) promote(h handle, newID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[h]
	if !ok {
		return false
	}
	oldID := ent.chat.ID
	ent.chat.ID = newID
	e.byID[newID] = h
	e.byID[oldID] = h
	if e.activeID == oldID {
		e.activeID = newID
	}
	return true
}

// =============================================================================
// MIRRORING
// =============================================================================

// mirrorLocked routes a chat mutation to the store matching the current
// identity. Caller holds mu.
func (e *Engine) mirrorLocked(h handle) {
	if e.ident.Status == identity.SignedIn {
		e.mirrorRemoteLocked(h)
		return
	}
	e.mirrorLocalLocked()
}

// mirrorLocalLocked enqueues a whole-document local save of the current
// state. Caller holds mu; the snapshot is taken now so saves apply in
// mutation order.
func (e *Engine) mirrorLocalLocked() {
	if e.ident.Status != identity.Anonymous {
		return
	}
	chats := e.snapshotLocked()
	activeID := e.activeID

	e.wg.Add(1)
	e.localQueue.enqueue(func() {
		defer e.wg.Done()
		if err := e.local.Save(chats, activeID); err != nil {
			log.Printf("WARNING: local history save failed: %v", err)
		}
	})
}

// mirrorRemoteLocked enqueues a remote write for one chat on that chat's
// queue. The record is snapshotted now; whether it becomes an insert
// (promotion) or an update is decided when the task runs, so two queued
// mirrors for a still-temporary chat can never both insert. Caller holds
// mu.
func (e *Engine) mirrorRemoteLocked(h handle) {
	rec := model.ToRecord(e.entries[h].chat)
	userID := e.ident.UserID

	e.wg.Add(1)
	e.entries[h].queue.enqueue(func() {
		defer e.wg.Done()
		e.mirrorRemote(h, userID, rec)
	})
}

// mirrorRemote performs one remote write. Failures are logged and
// swallowed: the in-memory chat stays valid, and a failed promotion is
// retried by the next mutation's mirror.
func (e *Engine) mirrorRemote(h handle, userID string, rec model.ChatRecord) {
	e.mu.Lock()
	ent, ok := e.entries[h]
	var curID string
	if ok {
		curID = ent.chat.ID
	}
	e.mu.Unlock()
	if !ok {
		// Chat deleted while this mirror was queued.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if model.IsTempID(curID) {
		newID, err := e.remote.Insert(ctx, userID, rec)
		if err != nil {
			log.Printf("WARNING: remote insert of chat %s failed: %v", curID, err)
			return
		}
		if !e.promote(h, newID) {
			// Deleted mid-insert; remove the orphan record.
			if err := e.remote.Delete(ctx, userID, newID); err != nil {
				log.Printf("WARNING: cleanup of orphan remote chat %s failed: %v", newID, err)
			}
		}
		return
	}

	if err := e.remote.Update(ctx, userID, curID, rec); err != nil {
		log.Printf("WARNING: remote update of chat %s failed: %v", curID, err)
	}
}

// =============================================================================
// IDENTITY TRANSITIONS
// =============================================================================

// Watch feeds identity states from ch into the engine until ctx is done.
func (e *Engine) Watch(ctx context.Context, ch <-chan identity.State) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-ch:
				if !ok {
					return
				}
				e.HandleIdentity(st)
			}
		}
	}()
}

// HandleIdentity reacts to an identity state. Transitions are processed
// strictly in call order; each runs its full store-clearing and load
// logic even when another transition is already waiting.
func (e *Engine) HandleIdentity(next identity.State) {
	e.transMu.Lock()
	defer e.transMu.Unlock()

	e.mu.Lock()
	prev := e.ident
	e.ident = next
	e.mu.Unlock()

	switch identity.Classify(prev, next) {
	case identity.TransitionSignIn, identity.TransitionSwitchUser:
		e.signIn(next.UserID)
	case identity.TransitionSignOut:
		e.signOut()
	case identity.TransitionNone:
		if next.Status == identity.Anonymous {
			e.loadLocalOnce()
		}
	}
}

// signIn abandons the anonymous chats (no merge), clears the local store,
// and replaces the canonical list with the user's remote chats, most
// recent first and active. A user with no remote chats gets a fresh one.
func (e *Engine) signIn(userID string) {
	if err := e.local.Clear(); err != nil {
		log.Printf("WARNING: failed to clear local history on sign-in: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	var chats []model.Chat
	recs, err := e.remote.ListByUser(ctx, userID)
	if err != nil {
		// Store failure is non-fatal: start the session with a fresh chat.
		log.Printf("WARNING: failed to load remote chats for sign-in: %v", err)
	} else {
		for _, rec := range recs {
			chats = append(chats, model.FromRecord(rec))
		}
	}

	e.resetWith(chats)
}

// signOut discards the signed-in user's in-memory chats, clears local
// remnants, and starts over with one fresh chat.
func (e *Engine) signOut() {
	if err := e.local.Clear(); err != nil {
		log.Printf("WARNING: failed to clear local history on sign-out: %v", err)
	}
	e.resetWith(nil)
}

// loadLocalOnce restores anonymous history from the local store on first
// observation only; afterwards the local store is write-through.
func (e *Engine) loadLocalOnce() {
	e.mu.Lock()
	if e.loadedLocal {
		e.mu.Unlock()
		return
	}
	e.loadedLocal = true
	e.mu.Unlock()

	chats, activeID, err := e.local.Load()
	if err != nil {
		log.Printf("WARNING: failed to load local history: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.installLocked(chats, activeID)
	e.repairLocked()
}

// resetWith replaces the canonical list. The first chat becomes active; an
// empty list synthesizes a fresh chat.
func (e *Engine) resetWith(chats []model.Chat) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.installLocked(chats, "")
	e.repairLocked()
}

// installLocked rebuilds the arena from a plain chat list. Caller holds mu.
func (e *Engine) installLocked(chats []model.Chat, activeID string) {
	e.order = nil
	e.entries = make(map[handle]*entry)
	e.byID = make(map[string]handle)
	e.activeID = activeID

	for _, chat := range chats {
		e.addLocked(chat.Clone(), false)
	}
}

// repairLocked enforces the activation invariants: the active pointer
// matches a real chat and exactly one chat is active. Missing chats get
// synthesized; a dangling pointer falls back to the first chat. Idempotent
// and deliberately free of store writes. Caller holds mu.
func (e *Engine) repairLocked() {
	if len(e.order) == 0 {
		fresh := model.NewChat("", "")
		e.addLocked(fresh, true)
		e.activeID = fresh.ID
		return
	}

	target, ok := e.byID[e.activeID]
	if !ok {
		target = e.order[0]
	}
	for h, ent := range e.entries {
		ent.chat.IsActive = h == target
	}
	e.activeID = e.entries[target].chat.ID
}
