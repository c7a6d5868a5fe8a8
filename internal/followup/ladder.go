package followup

// Step is one rung of a re-engagement ladder.
type Step struct {
	Number      int
	MinDays     int
	SendMessage bool
	PlaceCall   bool
	Complete    bool
	MessageKind string
}

// Message kinds the sequencer knows how to compose.
const (
	MsgRescheduleNudge = "reschedule_nudge"
	MsgSocialProof     = "social_proof"
	MsgReserveSpot     = "reserve_spot"
	MsgGentleReminder  = "gentle_reminder"
)

// New patients get the aggressive four-step ladder, returning patients the
// light two-step one.
var (
	newPatientLadder = []Step{
		{Number: 1, MinDays: 1, SendMessage: true, MessageKind: MsgRescheduleNudge},
		{Number: 2, MinDays: 3, SendMessage: true, MessageKind: MsgSocialProof},
		{Number: 3, MinDays: 7, SendMessage: true, PlaceCall: true, MessageKind: MsgReserveSpot},
		{Number: 4, MinDays: 14, Complete: true},
	}
	returningLadder = []Step{
		{Number: 1, MinDays: 1, SendMessage: true, MessageKind: MsgRescheduleNudge},
		{Number: 2, MinDays: 3, SendMessage: true, Complete: true, MessageKind: MsgGentleReminder},
	}
)

// NextStep returns the next due rung for an appointment, given how many days
// have passed since the no-show and the current step. The boolean is false
// when nothing is due yet or the ladder is exhausted.
func NextStep(isNewPatient bool, daysSince, currentStep int) (Step, bool) {
	ladder := returningLadder
	if isNewPatient {
		ladder = newPatientLadder
	}
	for _, step := range ladder {
		if currentStep >= step.Number {
			continue
		}
		if daysSince >= step.MinDays {
			return step, true
		}
		// Steps are ordered; a rung that is not due yet blocks the rest.
		return Step{}, false
	}
	return Step{}, false
}
