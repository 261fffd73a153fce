// Package apply walks a fixed catalog of per-entity configuration stages
// over a list of input records, honoring operator decisions per stage and
// recording a before/after snapshot around every mutation.
package apply

// Stage is one discrete, independently decidable mutation step. The set is
// closed and the order below is the execution order.
type Stage string

const (
	StageAssignLicense   Stage = "assign_license"
	StageUpdateNumbers   Stage = "update_numbers"
	StageForwarding      Stage = "forwarding"
	StageVoicemail       Stage = "voicemail"
	StageIntercept       Stage = "intercept"
	StagePermissions     Stage = "permissions"
	StageQueueMembership Stage = "queue_membership"
)

// StageOrder is the fixed catalog order. Applicable stages always execute in
// this sequence because later stages may depend on earlier ones (queue
// membership needs the calling license assigned first).
var StageOrder = []Stage{
	StageAssignLicense,
	StageUpdateNumbers,
	StageForwarding,
	StageVoicemail,
	StageIntercept,
	StagePermissions,
	StageQueueMembership,
}

// stageFields maps each optional stage to the record payload fields whose
// presence activates it. StageAssignLicense has no entry: it always applies.
var stageFields = map[Stage][]string{
	StageUpdateNumbers:   {"phone_number", "extension"},
	StageForwarding:      {"forward_to", "forward_enabled"},
	StageVoicemail:       {"voicemail_enabled", "voicemail_email"},
	StageIntercept:       {"intercept_enabled", "intercept_number"},
	StagePermissions:     {"outgoing_permission"},
	StageQueueMembership: {"queue_name"},
}

// Decision is the operator's per-stage choice for the whole run.
type Decision string

const (
	// DecisionYes applies the stage using each record's payload.
	DecisionYes Decision = "yes"
	// DecisionNo skips the stage for every record; the skip is logged.
	DecisionNo Decision = "no"
	// DecisionYesBut applies the stage with per-record overrides merged over
	// the record payload.
	DecisionYesBut Decision = "yesbut"
)

// ApplicableStages computes which stages a record activates, in catalog
// order, from which optional payload fields are populated. The calling
// license stage is always included.
func ApplicableStages(rec InputRecord) []Stage {
	out := []Stage{StageAssignLicense}
	for _, stage := range StageOrder[1:] {
		for _, field := range stageFields[stage] {
			if value, ok := rec.Payload[field]; ok && value != "" {
				out = append(out, stage)
				break
			}
		}
	}
	return out
}
