package conversation

import "time"

// FormKind names one of the fixed multi-step request types.
type FormKind string

const (
	FormApplication   FormKind = "application"
	FormLeaveRequest  FormKind = "leave"
	FormReprimand     FormKind = "reprimand"
	FormPromotion     FormKind = "promotion"
	FormProfileRefill FormKind = "profile_refill"
)

// Step identifies a node in a form's step graph. Steps are namespaced per
// form so an invalid step/form pairing cannot be expressed by accident.
type Step string

const (
	StepApplicationName       Step = "application/name"
	StepApplicationDepartment Step = "application/department"
	StepApplicationEvidence   Step = "application/evidence"

	StepLeaveRecipient  Step = "leave/recipient"
	StepLeaveDuration   Step = "leave/duration"
	StepLeaveDepartment Step = "leave/department"

	StepReprimandOffense  Step = "reprimand/offense"
	StepReprimandDate     Step = "reprimand/date"
	StepReprimandOffender Step = "reprimand/offender"
	StepReprimandIssuer   Step = "reprimand/issuer"
	StepReprimandPenalty  Step = "reprimand/penalty"

	StepPromotionCandidate     Step = "promotion/candidate"
	StepPromotionDepartment    Step = "promotion/department"
	StepPromotionRank          Step = "promotion/rank"
	StepPromotionJustification Step = "promotion/justification"

	StepProfileName       Step = "profile/name"
	StepProfileRank       Step = "profile/rank"
	StepProfileDepartment Step = "profile/department"
)

// Field names one validated value in a form's accumulated record.
type Field string

const (
	FieldName          Field = "name"
	FieldDepartment    Field = "department"
	FieldRecipient     Field = "recipient"
	FieldDuration      Field = "duration"
	FieldOffense       Field = "offense"
	FieldDate          Field = "date"
	FieldOffender      Field = "offender"
	FieldIssuer        Field = "issuer"
	FieldPenalty       Field = "penalty"
	FieldCandidate     Field = "candidate"
	FieldCandidateRank Field = "candidate_rank"
	FieldRequestedRank Field = "requested_rank"
	FieldJustification Field = "justification"
	FieldInGameName    Field = "in_game_name"
	FieldRank          Field = "rank"
)

// State is one actor's in-progress form. Owned exclusively by that actor; at
// most one exists per actor id.
type State struct {
	ActorID   int64
	Form      FormKind
	Step      Step
	Fields    map[Field]string
	Evidence  []string
	StartedAt time.Time

	// FailStreak counts consecutive validation failures on the current step;
	// reset on every successful transition.
	FailStreak int
}

// Submission is the completed-fields snapshot a terminal step produces.
type Submission struct {
	ActorID  int64
	Form     FormKind
	Fields   map[Field]string
	Evidence []string
}
