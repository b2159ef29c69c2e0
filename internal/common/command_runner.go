package common

import (
	"context"
	"fmt"
	"iter"

	"resumetailor/internal/conversation"
	"resumetailor/internal/errors"
	"resumetailor/internal/session"
)

// TurnHandler is the part of the conversation engine a scripted command drives.
type TurnHandler interface {
	Start(s *session.Session) iter.Seq[conversation.Event]
	Handle(ctx context.Context, s *session.Session, input string) iter.Seq[conversation.Event]
}

// RunConversation starts s and plays inputs through handler in order, passing
// every event to onEvent. It fails on the first input that does not move the
// conversation forward or whose turn ends in an error event.
func RunConversation(
	ctx context.Context,
	logger *errors.Logger,
	handler TurnHandler,
	s *session.Session,
	inputs []string,
	onEvent func(conversation.Event),
) error {
	for ev := range handler.Start(s) {
		onEvent(ev)
	}

	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}

		from := s.Step
		var last conversation.Event
		for ev := range handler.Handle(ctx, s, input) {
			onEvent(ev)
			last = ev
		}

		logger.Debug("Scripted turn finished", "input", i+1, "from", from.String(), "to", s.Step.String())

		switch {
		case last.Kind == conversation.KindError && s.Step == from:
			return errors.NewAIError(errors.ErrCodeAIServiceFailed, last.Entry.Text, nil).
				WithContext("step", from.String())
		case last.Kind == conversation.KindError:
			return errors.NewExportError(errors.ErrCodeExportFailed, last.Entry.Text, nil)
		case s.Step == from:
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("input %d was not accepted at step %s: %s", i+1, from, last.Entry.Text), nil)
		}
	}
	return nil
}
