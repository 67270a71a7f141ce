package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
	"gorm.io/gorm"
)

// Assignment records one session claimed during a sweep.
type Assignment struct {
	Session *models.ChatSession
	AgentID string
}

// Failure records a session the sweep could not process.
type Failure struct {
	SessionID string
	Err       error
}

// SweepResult summarizes one AutoAssign pass.
type SweepResult struct {
	Assigned []Assignment
	Failures []Failure // sessions that hit an unexpected storage error
	Skipped  int       // sessions claimed, closed or removed by someone else mid-sweep
	Waiting  int       // sessions left waiting because no eligible agent had room
}

var (
	// errSessionGone means another actor resolved the session first.
	errSessionGone = errors.New("session no longer waiting")
	// errOnlyRequester means the requester was the one agent with room.
	errOnlyRequester = errors.New("no agent other than the requester")
)

// AutoAssign walks waiting sessions oldest first and claims each for the
// least-loaded eligible agent. Agents are re-ranked per session so load from
// earlier assignments in the same pass is taken into account. It is safe to
// run concurrently with itself and with manual claims: every claim is
// atomic, and losing a race simply moves the sweep along.
func AutoAssign(ctx context.Context, db *gorm.DB) (*SweepResult, error) {
	waiting, err := session.List(db, session.ListOpts{
		Status: models.SessionWaiting,
		Limit:  session.MaxListLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: list waiting: %w", err)
	}

	result := &SweepResult{}
	for i, s := range waiting {
		if err := ctx.Err(); err != nil {
			result.Waiting += len(waiting) - i
			return result, err
		}

		sess, agentID, err := assignOne(db, &s)
		switch {
		case errors.Is(err, errSessionGone):
			result.Skipped++
		case errors.Is(err, errOnlyRequester):
			result.Waiting++
		case err != nil:
			result.Failures = append(result.Failures, Failure{SessionID: s.ID, Err: err})
		case sess == nil:
			// Nobody had room. Later sessions cannot fare better in this pass.
			result.Waiting += len(waiting) - i
			return result, nil
		default:
			result.Assigned = append(result.Assigned, Assignment{Session: sess, AgentID: agentID})
		}
	}
	return result, nil
}

// assignOne tries eligible agents for one session in rank order, passing
// over the requester. It returns a nil session when no agent could take it.
func assignOne(db *gorm.DB, waiting *models.ChatSession) (*models.ChatSession, string, error) {
	candidates, err := agent.EligibleAgents(db)
	if err != nil {
		return nil, "", err
	}

	passedRequester := false
	for _, agentID := range candidates {
		if agentID == waiting.RequesterID {
			passedRequester = true
			continue
		}
		sess, err := Claim(db, waiting.ID, agentID)
		switch {
		case err == nil:
			return sess, agentID, nil
		case errors.Is(err, models.ErrCapacityExceeded), errors.Is(err, models.ErrUnknownAgent):
			// Filled up (or went away) since ranking; try the next agent.
			continue
		case errors.Is(err, models.ErrAlreadyClaimed),
			errors.Is(err, models.ErrAlreadyClosed),
			errors.Is(err, models.ErrNotFound):
			return nil, "", errSessionGone
		default:
			return nil, "", err
		}
	}
	if passedRequester {
		return nil, "", errOnlyRequester
	}
	return nil, "", nil
}
