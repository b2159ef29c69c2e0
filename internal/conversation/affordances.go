package conversation

import "resumetailor/internal/session"

// Affordances tells a front end which input surfaces to show.
type Affordances struct {
	// TextInput is a multi-line area for pasting a resume or job posting.
	TextInput bool `json:"text_input"`
	// ChoiceInput is the Yes/No download question.
	ChoiceInput bool `json:"choice_input"`
	// EditInput is the single-line edit instruction box.
	EditInput bool `json:"edit_input"`
}

var affordancesByStep = map[session.Step]Affordances{
	session.AwaitingResume:         {TextInput: true},
	session.AwaitingJobPosting:     {TextInput: true},
	session.AwaitingDownloadChoice: {ChoiceInput: true},
	session.AwaitingEdits:          {EditInput: true},
}

// busyAffordances hides every input while a turn is still being worked on.
var busyAffordances = Affordances{}

// AffordancesFor returns the input surfaces of step.
func AffordancesFor(step session.Step) Affordances {
	return affordancesByStep[step]
}

// Busy reports whether no input is accepted.
func (a Affordances) Busy() bool {
	return a == busyAffordances
}
