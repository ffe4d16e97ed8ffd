package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"sensaygw/internal/models"
	"sensaygw/internal/sensay"
)

// placeholderReply is returned when the upstream answered but its reply field
// could not be read; the task portion of the response still proceeds.
const placeholderReply = "Sorry, the replica's reply could not be read."

var (
	// ErrMissingIdentity means no caller identity reached the gateway.
	ErrMissingIdentity = errors.New("user identity required")
	// ErrInvalidRequest means the message list was empty or malformed.
	ErrInvalidRequest = errors.New("at least one message is required")
)

// TaskStore is the slice of the datastore the gateway needs. Ownership checks
// are the store's responsibility; the gateway only passes the identity through.
type TaskStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
	Insert(ctx context.Context, ownerID, text string) (*models.Task, error)
	SetCompleted(ctx context.Context, ownerID string, id int64, completed bool) error
	Delete(ctx context.Context, ownerID string, id int64) error
}

// Completer produces an assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, []models.Attempt, error)
}

// Result is the gateway's answer: the assistant reply plus the current task
// snapshot for the user.
type Result struct {
	Reply string        `json:"reply"`
	Tasks []models.Task `json:"tasks"`
}

// Gateway forwards a conversation to the replica API with task context
// injected, applies task commands found in the last message, and returns the
// reply together with a post-mutation task snapshot.
type Gateway struct {
	store    TaskStore
	upstream Completer
}

// New wires the gateway to its two collaborators.
func New(store TaskStore, upstream Completer) *Gateway {
	return &Gateway{store: store, upstream: upstream}
}

// Handle runs one chat exchange for userID. On total upstream failure the
// returned error is a *sensay.UpstreamError and the Result still carries
// whatever tasks were fetched, so the caller is not left without state.
func (g *Gateway) Handle(ctx context.Context, userID string, messages []models.ChatMessage) (*Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingIdentity
	}
	if len(messages) == 0 {
		return nil, ErrInvalidRequest
	}
	reqID := uuid.NewString()

	// Step 1: task context. A store outage must not block the conversation.
	tasks, err := g.store.ListByOwner(ctx, userID)
	if err != nil {
		log.Printf("gateway[%s]: task context read failed, continuing without: %v", reqID, err)
		tasks = nil
	}

	// Step 2: the replica has no memory between calls, so the task state is
	// re-asserted in a system message on every request.
	outbound := make([]models.ChatMessage, 0, len(messages)+1)
	outbound = append(outbound, taskContextMessage(tasks))
	outbound = append(outbound, messages...)

	// Step 3/4: ordered fallback against the replica API.
	reply, attempts, err := g.upstream.Complete(ctx, outbound)
	if err != nil {
		if errors.Is(err, sensay.ErrNoReply) {
			log.Printf("gateway[%s]: upstream reply unparsable, using placeholder", reqID)
			reply = placeholderReply
		} else {
			log.Printf("gateway[%s]: upstream exhausted after %d attempts", reqID, len(attempts))
			return &Result{Tasks: tasks}, err
		}
	}

	// Step 5: task commands are read off the last message as supplied by the
	// caller, whatever its role. (A trailing assistant or system message is
	// treated the same way; see the intent tests.)
	mutated := g.applyIntent(ctx, reqID, userID, tasks, messages[len(messages)-1])

	// Step 6: after a mutation the list is re-read so the caller sees a
	// consistent post-mutation snapshot; on re-read failure the stale
	// in-memory list is better than nothing.
	if mutated {
		if fresh, err := g.store.ListByOwner(ctx, userID); err != nil {
			log.Printf("gateway[%s]: post-mutation refresh failed, returning stale list: %v", reqID, err)
		} else {
			tasks = fresh
		}
	}

	return &Result{Reply: reply, Tasks: tasks}, nil
}

// applyIntent performs at most one best-effort datastore write. Write failures
// are logged and absorbed; the reply already in hand is still returned.
func (g *Gateway) applyIntent(ctx context.Context, reqID, userID string, tasks []models.Task, last models.ChatMessage) bool {
	in := detectIntent(last.Content)
	switch in.kind {
	case intentAdd:
		if _, err := g.store.Insert(ctx, userID, in.text); err != nil {
			log.Printf("gateway[%s]: add task failed: %v", reqID, err)
			return false
		}
		return true
	case intentComplete:
		idx := in.index - 1
		if idx < 0 || idx >= len(tasks) || tasks[idx].Completed {
			return false
		}
		if err := g.store.SetCompleted(ctx, userID, tasks[idx].ID, true); err != nil {
			log.Printf("gateway[%s]: complete task %d failed: %v", reqID, in.index, err)
			return false
		}
		return true
	case intentDelete:
		idx := in.index - 1
		if idx < 0 || idx >= len(tasks) {
			return false
		}
		if err := g.store.Delete(ctx, userID, tasks[idx].ID); err != nil {
			log.Printf("gateway[%s]: delete task %d failed: %v", reqID, in.index, err)
			return false
		}
		return true
	default:
		return false
	}
}

// taskContextMessage renders the current task list as a numbered system
// message, or a short sentence when the list is empty.
func taskContextMessage(tasks []models.Task) models.ChatMessage {
	if len(tasks) == 0 {
		return models.ChatMessage{
			Role:    models.RoleSystem,
			Content: "The user currently has no tasks.",
		}
	}
	var b strings.Builder
	b.WriteString("Current tasks for this user:\n")
	for i, t := range tasks {
		status := "[Pending]"
		if t.Completed {
			status = "[Completed]"
		}
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, t.Text, status)
	}
	return models.ChatMessage{Role: models.RoleSystem, Content: strings.TrimRight(b.String(), "\n")}
}
