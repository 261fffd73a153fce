package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"telinv/internal/capability"
	"telinv/internal/normalize"
)

// Caller dispatches one capability call. *capability.Invoker satisfies it.
type Caller interface {
	Call(ctx context.Context, name string, args capability.Args) (any, error)
}

// stageBinding wires one stage to its read and mutation operations. The read
// operation serves both the before and after snapshots.
type stageBinding struct {
	readMethod  string
	writeMethod string
	buildArgs   func(ids resolvedIDs, payload map[string]string) capability.Args
}

// resolvedIDs carries the identities resolved for one record.
type resolvedIDs struct {
	personID   string
	locationID string
	queueID    string
}

var stageBindings = map[Stage]stageBinding{
	StageAssignLicense: {
		readMethod:  "people.get",
		writeMethod: "licenses.assign",
		buildArgs: func(ids resolvedIDs, payload map[string]string) capability.Args {
			return capability.Args{"personId": ids.personID, "licenseId": payload["license_id"]}
		},
	},
	StageUpdateNumbers: {
		readMethod:  "telephony.numbers.get",
		writeMethod: "telephony.numbers.update",
		buildArgs: func(ids resolvedIDs, payload map[string]string) capability.Args {
			return capability.Args{
				"personId":    ids.personID,
				"locationId":  ids.locationID,
				"phoneNumber": payload["phone_number"],
				"extension":   payload["extension"],
			}
		},
	},
	StageForwarding: {
		readMethod:  "telephony.forwarding.get",
		writeMethod: "telephony.forwarding.update",
		buildArgs: func(ids resolvedIDs, payload map[string]string) capability.Args {
			return capability.Args{
				"personId":    ids.personID,
				"enabled":     payload["forward_enabled"],
				"destination": payload["forward_to"],
			}
		},
	},
	StageVoicemail: {
		readMethod:  "telephony.voicemail.get",
		writeMethod: "telephony.voicemail.update",
		buildArgs: func(ids resolvedIDs, payload map[string]string) capability.Args {
			return capability.Args{
				"personId": ids.personID,
				"enabled":  payload["voicemail_enabled"],
				"email":    payload["voicemail_email"],
			}
		},
	},
	StageIntercept: {
		readMethod:  "telephony.intercept.get",
		writeMethod: "telephony.intercept.update",
		buildArgs: func(ids resolvedIDs, payload map[string]string) capability.Args {
			return capability.Args{
				"personId": ids.personID,
				"enabled":  payload["intercept_enabled"],
				"number":   payload["intercept_number"],
			}
		},
	},
	StagePermissions: {
		readMethod:  "telephony.permissions.get",
		writeMethod: "telephony.permissions.update",
		buildArgs: func(ids resolvedIDs, payload map[string]string) capability.Args {
			return capability.Args{
				"personId":   ids.personID,
				"permission": payload["outgoing_permission"],
			}
		},
	},
	StageQueueMembership: {
		readMethod:  "telephony.queues.members.list",
		writeMethod: "telephony.queues.members.add",
		buildArgs: func(ids resolvedIDs, payload map[string]string) capability.Args {
			return capability.Args{"queueId": ids.queueID, "personId": ids.personID}
		},
	},
}

// Policy supplies default field values per stage, merged under each record's
// payload.
type Policy map[Stage]map[string]string

// Summary tallies one apply run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Engine executes the staged apply flow: records run concurrently under a
// bounded limit, stages within one record strictly sequentially.
type Engine struct {
	caller      Caller
	lookups     *Lookups
	provider    DecisionProvider
	overrides   Overrides
	policy      Policy
	log         *ChangeLog
	state       *RunState
	stateMu     sync.Mutex
	logger      *slog.Logger
	concurrency int
}

// Config assembles an Engine.
type Config struct {
	Caller      Caller
	Lookups     *Lookups
	Provider    DecisionProvider
	Overrides   Overrides
	Policy      Policy
	Log         *ChangeLog
	State       *RunState
	Logger      *slog.Logger
	Concurrency int
}

// NewEngine validates and constructs the engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Caller == nil {
		return nil, fmt.Errorf("caller required")
	}
	if cfg.Lookups == nil {
		return nil, fmt.Errorf("lookups required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("decision provider required")
	}
	if cfg.Log == nil {
		cfg.Log = NewChangeLog(nil)
	}
	if cfg.State == nil {
		cfg.State = NewRunState("", nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Engine{
		caller:      cfg.Caller,
		lookups:     cfg.Lookups,
		provider:    cfg.Provider,
		overrides:   cfg.Overrides,
		policy:      cfg.Policy,
		log:         cfg.Log,
		state:       cfg.State,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}, nil
}

// Log exposes the change log for reporting.
func (e *Engine) Log() *ChangeLog { return e.log }

// State exposes the run state for persistence.
func (e *Engine) State() *RunState { return e.state }

// Run collects one decision per stage, then processes every record. A
// record's failure never aborts the others.
func (e *Engine) Run(ctx context.Context, records []InputRecord) (Summary, error) {
	decisions := make(map[Stage]Decision, len(StageOrder))
	for _, stage := range StageOrder {
		d, err := e.provider.Decide(stage)
		if err != nil {
			return Summary{}, fmt.Errorf("collect decision for %s: %w", stage, err)
		}
		decisions[stage] = d
	}
	e.withState(func() {
		if e.state.Decisions == nil {
			e.state.Decisions = make(map[Stage]Decision, len(decisions))
		}
		for stage, d := range decisions {
			e.state.Decisions[stage] = d
		}
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)
	for _, rec := range records {
		group.Go(func() error {
			e.runRecord(groupCtx, rec, decisions)
			return nil
		})
	}
	_ = group.Wait()

	summary := Summary{Total: len(records)}
	e.withState(func() {
		for _, rec := range records {
			result, ok := e.state.Records[rec.Key()]
			if !ok {
				continue
			}
			if result.Status == RecordSuccess {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		}
	})
	return summary, ctx.Err()
}

func (e *Engine) runRecord(ctx context.Context, rec InputRecord, decisions map[Stage]Decision) {
	email := rec.Key()

	personID, ok := e.lookups.PersonID(email)
	if !ok {
		e.log.AddFailure(FailureEntry{
			Email:     email,
			ErrorType: "unresolved_identity",
			Details:   "not found in inventory map",
		})
		e.setResult(email, RecordResult{Status: RecordFailed, Reason: "unresolved_identity"})
		e.logger.Warn("record identity unresolved", "email", email)
		return
	}
	ids := resolvedIDs{
		personID:   personID,
		locationID: e.lookups.LocationID(rec.Location),
	}
	if queue := rec.Payload["queue_name"]; queue != "" {
		ids.queueID = e.lookups.QueueID(queue)
	}

	var executed []Stage
	for _, stage := range ApplicableStages(rec) {
		decision := decisions[stage]
		if decision == DecisionNo {
			e.log.AddChange(ChangeEntry{
				Email:  email,
				Stage:  stage,
				Status: ChangeSkipped,
				Detail: "skipped_by_operator",
			})
			continue
		}

		payload := e.effectivePayload(rec, stage, decision)
		if err := e.runStage(ctx, email, stage, ids, payload); err != nil {
			e.log.AddFailure(FailureEntry{
				Email:      email,
				Stage:      stage,
				ErrorType:  errorTypeName(err),
				HTTPStatus: capability.StatusOf(err),
				TrackingID: capability.TrackingIDOf(err),
				Details:    err.Error(),
			})
			e.setResult(email, RecordResult{
				Status:      RecordFailed,
				FailedStage: stage,
				Reason:      err.Error(),
				Stages:      executed,
			})
			e.logger.Warn("record halted", "email", email, "stage", stage, "error", err)
			return
		}
		executed = append(executed, stage)
	}

	// Final verification read of the primary entity.
	if _, err := e.caller.Call(ctx, "people.get", capability.Args{"personId": ids.personID}); err != nil {
		e.logger.Warn("verification read failed", "email", email, "error", err)
	}
	e.setResult(email, RecordResult{Status: RecordSuccess, Stages: executed})
	e.logger.Info("record applied", "email", email, "stages", len(executed))
}

// runStage performs the before-read, mutation, and after-read for one stage.
func (e *Engine) runStage(ctx context.Context, email string, stage Stage, ids resolvedIDs, payload map[string]string) error {
	binding := stageBindings[stage]
	args := binding.buildArgs(ids, payload)

	before := e.snapshot(ctx, binding.readMethod, ids)
	_, mutErr := e.caller.Call(ctx, binding.writeMethod, args)
	after := e.snapshot(ctx, binding.readMethod, ids)

	if mutErr != nil {
		e.log.AddChange(ChangeEntry{
			Email:  email,
			Stage:  stage,
			Status: ChangeFailed,
			Before: before,
			After:  after,
			Detail: mutErr.Error(),
		})
		return mutErr
	}
	e.log.AddChange(ChangeEntry{
		Email:  email,
		Stage:  stage,
		Status: ChangeSuccess,
		Before: before,
		After:  after,
		Detail: "applied",
	})
	return nil
}

// snapshot reads stage state for the audit trail. Read failures never halt a
// record; they surface inside the snapshot itself.
func (e *Engine) snapshot(ctx context.Context, method string, ids resolvedIDs) normalize.Row {
	args := capability.Args{"personId": ids.personID}
	if ids.queueID != "" {
		args["queueId"] = ids.queueID
	}
	raw, err := e.caller.Call(ctx, method, args)
	if err != nil {
		return normalize.Row{"read_error": err.Error()}
	}
	rows := normalize.MaterializeRows(raw)
	if len(rows) == 0 {
		return normalize.Row{}
	}
	if len(rows) == 1 {
		return rows[0]
	}
	return normalize.Row{"items": rows}
}

// effectivePayload merges the policy defaults, the record payload, and (for
// yesbut) the per-record override table, in ascending precedence.
func (e *Engine) effectivePayload(rec InputRecord, stage Stage, decision Decision) map[string]string {
	out := make(map[string]string)
	for field, value := range e.policy[stage] {
		out[field] = value
	}
	for field, value := range rec.Payload {
		out[field] = value
	}
	if out["license_id"] == "" {
		out["license_id"] = rec.LicenseID
	}
	if decision == DecisionYesBut {
		for field, value := range e.overrides[rec.Key()] {
			out[field] = value
		}
	}
	return out
}

func (e *Engine) setResult(email string, result RecordResult) {
	e.withState(func() {
		e.state.SetResult(email, result)
	})
}

// withState serializes run-state mutation across record workers.
func (e *Engine) withState(fn func()) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	fn()
}

func errorTypeName(err error) string {
	var apiErr *capability.APIError
	if errors.As(err, &apiErr) {
		return "APIError"
	}
	name := fmt.Sprintf("%T", err)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimPrefix(name, "*")
}
