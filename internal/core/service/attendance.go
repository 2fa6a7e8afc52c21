package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/keylock"
)

// AttendanceServiceConfig holds configuration for AttendanceService.
type AttendanceServiceConfig struct {
	// SubmitTimeout bounds one submission end to end (default: 3s).
	SubmitTimeout time.Duration

	// ReorderHold is how long events of one employee are collected before
	// being applied in device-time order. 0 disables holding (default: 200ms).
	ReorderHold time.Duration

	// ReconcileWindow is the oldest device timestamp accepted (default: 24h).
	ReconcileWindow time.Duration

	// MaxClockSkew is how far a device timestamp may lead server time (default: 5m).
	MaxClockSkew time.Duration

	// LateThreshold flags events received this long after capture (default: 10m).
	LateThreshold time.Duration

	// OverrideLeeway is the clock skew tolerated on override token expiry (default: 30s).
	OverrideLeeway time.Duration

	// MaxBatchSize caps SubmitBatch (default: 500).
	MaxBatchSize int
}

// DefaultAttendanceServiceConfig returns default configuration.
func DefaultAttendanceServiceConfig() *AttendanceServiceConfig {
	return &AttendanceServiceConfig{
		SubmitTimeout:   3 * time.Second,
		ReorderHold:     200 * time.Millisecond,
		ReconcileWindow: 24 * time.Hour,
		MaxClockSkew:    5 * time.Minute,
		LateThreshold:   10 * time.Minute,
		OverrideLeeway:  30 * time.Second,
		MaxBatchSize:    500,
	}
}

// AttendanceService validates attendance events and maintains sessions.
//
// Per event the order is: authorization, input validation, idempotency
// lookup, session transition pre-check, spoof heuristics, zone matching,
// audit append, conditional commit. Only Accepted decisions mutate
// sessions; every decision is audited and stored for replay.
type AttendanceService struct {
	sessions  SessionRepository
	audit     AuditLog
	zones     *ZoneRegistry
	spoof     *SpoofDetector
	engine    *ValidationEngine
	overrides *OverrideVerifier
	locks     *keylock.Table
	reorder   *reorderQueue
	cfg       AttendanceServiceConfig
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewAttendanceService creates a new AttendanceService.
func NewAttendanceService(sessions SessionRepository, audit AuditLog, zones *ZoneRegistry, cfg *AttendanceServiceConfig, logger *slog.Logger) *AttendanceService {
	def := DefaultAttendanceServiceConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = def.SubmitTimeout
	}
	if c.ReorderHold < 0 {
		c.ReorderHold = 0
	}
	if c.ReconcileWindow <= 0 {
		c.ReconcileWindow = def.ReconcileWindow
	}
	if c.MaxClockSkew <= 0 {
		c.MaxClockSkew = def.MaxClockSkew
	}
	if c.LateThreshold <= 0 {
		c.LateThreshold = def.LateThreshold
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceService{
		sessions:  sessions,
		audit:     audit,
		zones:     zones,
		spoof:     NewSpoofDetector(),
		engine:    NewValidationEngine(),
		overrides: NewOverrideVerifier(c.OverrideLeeway),
		locks:     keylock.New(),
		reorder:   newReorderQueue(c.ReorderHold, c.SubmitTimeout),
		cfg:       c,
		observer:  nopObserver{},
		logger:    logger.With("component", "attendance"),
		now:       time.Now,
	}
}

// SetObserver installs an observer for decisions and audit appends.
func (s *AttendanceService) SetObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

// ============================================================================
// Submit
// ============================================================================

// SubmitRequest contains one event submission.
type SubmitRequest struct {
	Principal *domain.APIKey
	Event     *domain.AttendanceEvent
}

// SubmitResponse contains the decision for a submission.
type SubmitResponse struct {
	Result *domain.ValidationResult
}

// Submit validates one event and, if accepted, advances the session.
//
// Errors are reserved for failures that are not decisions: credential
// problems (ErrUnauthorized and friends), malformed input
// (ErrInvalidCoordinate, ErrInvalidEvent, ErrEventTooOld, ErrEventInFuture)
// and infrastructure trouble (retryable, see domain.IsRetryable).
func (s *AttendanceService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.Event == nil {
		return nil, domain.ErrMissingArgument.WithDetails("event is required")
	}
	if err := s.authorize(req.Principal, domain.PermAttendanceSubmit, req.Event.TenantID); err != nil {
		return nil, err
	}

	e, replay, err := s.prepare(ctx, req.Event)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return &SubmitResponse{Result: replay}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	actor := req.Principal.KeyID
	r, err := s.reorder.Do(ctx, e, func(ctx context.Context, e *domain.AttendanceEvent) (*domain.ValidationResult, error) {
		return s.process(ctx, e, actor)
	})
	if err != nil {
		return nil, err
	}
	return &SubmitResponse{Result: r}, nil
}

// BatchItem is the outcome for one event of a batch. Exactly one of
// Result and Err is set.
type BatchItem struct {
	ClientEventID string
	Result        *domain.ValidationResult
	Err           error
}

// SubmitBatchRequest contains an offline flush from a device.
type SubmitBatchRequest struct {
	Principal *domain.APIKey
	Events    []*domain.AttendanceEvent
}

// SubmitBatchResponse contains per-event outcomes in request order.
type SubmitBatchResponse struct {
	Items []BatchItem
}

// SubmitBatch applies a batch of events. Events are grouped per employee
// and applied in device-timestamp order; malformed events fail
// individually without affecting the rest.
func (s *AttendanceService) SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*SubmitBatchResponse, error) {
	if len(req.Events) == 0 {
		return nil, domain.ErrMissingArgument.WithDetails("events is empty")
	}
	if len(req.Events) > s.cfg.MaxBatchSize {
		return nil, domain.ErrInvalidArgument.WithDetails("batch exceeds maximum size")
	}
	if req.Principal == nil {
		return nil, domain.ErrAPIKeyMissing
	}

	items := make([]BatchItem, len(req.Events))
	prepared := make([]*domain.AttendanceEvent, len(req.Events))
	groups := make(map[string][]int)
	var order []string

	for i, raw := range req.Events {
		if raw == nil {
			items[i].Err = domain.ErrMissingArgument.WithDetails("event is required")
			continue
		}
		items[i].ClientEventID = raw.ClientEventID
		if err := s.authorize(req.Principal, domain.PermAttendanceSubmit, raw.TenantID); err != nil {
			items[i].Err = err
			continue
		}
		e, replay, err := s.prepare(ctx, raw)
		if err != nil {
			items[i].Err = err
			continue
		}
		if replay != nil {
			items[i].Result = replay
			continue
		}
		prepared[i] = e
		k := domain.EmployeeKey(e.TenantID, e.EmployeeID)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	// Batches may be large; scale the deadline with the number of events.
	timeout := s.cfg.SubmitTimeout * time.Duration(1+len(req.Events)/50)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	actor := req.Principal.KeyID
	for _, k := range order {
		idx := groups[k]
		events := make([]*domain.AttendanceEvent, len(idx))
		for j, i := range idx {
			events[j] = prepared[i]
		}
		outs := s.reorder.DoOrdered(ctx, k, events, func(ctx context.Context, e *domain.AttendanceEvent) (*domain.ValidationResult, error) {
			return s.process(ctx, e, actor)
		})
		for j, i := range idx {
			items[i].Result = outs[j].result
			items[i].Err = outs[j].err
		}
	}
	return &SubmitBatchResponse{Items: items}, nil
}

// prepare validates a submitted event and returns an engine-owned copy
// with EventID and ServerReceivedAt assigned. An event that falls outside
// the reconciliation window but was already processed returns its stored
// result as replay instead of an error, so late retries stay idempotent.
func (s *AttendanceService) prepare(ctx context.Context, in *domain.AttendanceEvent) (*domain.AttendanceEvent, *domain.ValidationResult, error) {
	if in == nil {
		return nil, nil, domain.ErrMissingArgument.WithDetails("event is required")
	}
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	now := s.now()
	if err := in.CheckWindow(now, s.cfg.ReconcileWindow, s.cfg.MaxClockSkew); err != nil {
		if r, lerr := s.storedResult(ctx, in); lerr == nil && r != nil {
			return nil, r, nil
		}
		return nil, nil, err
	}

	e := in.Clone()
	id, err := domain.GenerateEventID()
	if err != nil {
		return nil, nil, err
	}
	e.EventID = id
	e.ServerReceivedAt = now.UTC()
	return e, nil, nil
}

// process runs the decision pipeline for one prepared event. It must be
// called in employee order (see reorderQueue).
func (s *AttendanceService) process(ctx context.Context, e *domain.AttendanceEvent, actor string) (*domain.ValidationResult, error) {
	start := s.now()

	if r, err := s.storedResult(ctx, e); err != nil || r != nil {
		return r, err
	}

	lookup, err := s.zones.ZonesFor(ctx, e.TenantID, e.DeviceTimestamp)
	if err != nil {
		return nil, err
	}

	key := e.SessionKey(lookup.Policy.Location())
	unlock, err := s.locks.LockContext(ctx, key.String())
	if err != nil {
		return nil, domain.ErrDeadlineExceeded.WithCause(err)
	}
	defer unlock()

	session, err := s.sessions.GetSession(ctx, key)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}

	result, accepted, err := s.decide(ctx, e, session, lookup)
	if err != nil {
		return nil, err
	}

	c := &domain.Commit{
		TenantID:      e.TenantID,
		EmployeeID:    e.EmployeeID,
		ClientEventID: e.ClientEventID,
		Result:        result,
	}
	if accepted {
		next := session.Clone()
		if err := next.Apply(e); err != nil {
			return nil, domain.ErrInternalServer.WithCause(err)
		}
		c.Session = next
		c.ExpectedVersion = session.Version
		c.Fix, err = s.newerFix(ctx, e)
		if err != nil {
			return nil, err
		}
		result.SessionState = next.State
	} else {
		result.SessionState = session.State
	}
	result.Normalize()

	if err := s.appendAudit(ctx, domain.NewAuditRecord(domain.AuditEvaluation, e, result, actor)); err != nil {
		return nil, err
	}

	if err := s.sessions.Commit(ctx, c); err != nil {
		if !errors.Is(err, domain.ErrSessionVersionConflict) {
			return nil, domain.ErrStorageError.WithCause(err)
		}
		result, err = s.supersede(ctx, e, key, result, actor)
		if err != nil {
			return nil, err
		}
	}

	s.observer.ObserveDecision(result.Decision, s.now().Sub(start))
	s.logDecision(e, result)
	return result, nil
}

// decide runs the structural, spoof and zone checks. It reports whether
// the event is accepted.
func (s *AttendanceService) decide(ctx context.Context, e *domain.AttendanceEvent, session *domain.AttendanceSession, lookup *ZoneLookup) (*domain.ValidationResult, bool, error) {
	policy := lookup.Policy
	result := domain.NewResult(e.EventID, "")
	if lookup.Stale {
		result.AddFlag(domain.FlagZoneDataStale)
	}
	if e.ServerReceivedAt.Sub(e.DeviceTimestamp) > s.cfg.LateThreshold {
		result.AddFlag(domain.FlagLateSubmission)
	}

	if !session.CanApply(e.Type) {
		result.Decision = domain.DecisionRejectedInvalidTransition
		return result, false, nil
	}

	last, err := s.sessions.LastFix(ctx, e.TenantID, e.EmployeeID)
	if err != nil {
		return nil, false, domain.ErrStorageError.WithCause(err)
	}
	verdict := s.spoof.Inspect(e, last, policy)
	for _, f := range verdict.Flags {
		result.AddFlag(f)
	}
	if verdict.Rejected() {
		result.Decision = verdict.Decision
		s.logger.Info("event rejected by spoof heuristics",
			"event_id", e.EventID, "tenant_id", e.TenantID, "employee_id", e.EmployeeID,
			"decision", verdict.Decision, "reason", verdict.Reason)
		return result, false, nil
	}

	overrideValid := false
	if e.OverrideToken != "" {
		if _, err := s.overrides.Verify(e.OverrideToken, e, policy); err != nil {
			s.logger.Warn("override token rejected", "event_id", e.EventID, "tenant_id", e.TenantID, "error", err)
		} else {
			overrideValid = true
		}
	}

	eval := s.engine.Evaluate(e, lookup, overrideValid)
	result.Decision = eval.Decision
	result.DistanceMeters = eval.DistanceMeters
	for _, f := range eval.Flags {
		result.AddFlag(f)
	}
	radius := 0.0
	if eval.Matched || eval.Overridden {
		result.SetMatchedZone(eval.Match.Zone.ZoneID)
		radius = eval.Match.Zone.RadiusMeters
	} else if eval.Match.Zone != nil {
		radius = eval.Match.Zone.RadiusMeters
	}
	result.Confidence = Confidence(e.AccuracyMeters, radius, result.Flags)

	if eval.Overridden {
		s.logger.Warn("admin override token applied",
			"event_id", e.EventID, "tenant_id", e.TenantID, "employee_id", e.EmployeeID,
			"distance_meters", eval.DistanceMeters)
	}
	return result, eval.Decision.IsAccepted(), nil
}

// supersede handles a lost conditional write: another writer advanced the
// session first. The event is re-judged structurally against the new state.
func (s *AttendanceService) supersede(ctx context.Context, e *domain.AttendanceEvent, key domain.SessionKey, prev *domain.ValidationResult, actor string) (*domain.ValidationResult, error) {
	current, err := s.sessions.GetSession(ctx, key)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	result := domain.NewResult(e.EventID, domain.DecisionRejectedInvalidTransition)
	for _, f := range prev.Flags {
		result.AddFlag(f)
	}
	result.SessionState = current.State
	result.Normalize()

	if err := s.appendAudit(ctx, domain.NewAuditRecord(domain.AuditSuperseded, e, result, actor)); err != nil {
		return nil, err
	}
	c := &domain.Commit{
		TenantID:      e.TenantID,
		EmployeeID:    e.EmployeeID,
		ClientEventID: e.ClientEventID,
		Result:        result,
	}
	if err := s.sessions.Commit(ctx, c); err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	s.logger.Info("commit lost to concurrent writer", "event_id", e.EventID, "session", key.String())
	return result, nil
}

func (s *AttendanceService) storedResult(ctx context.Context, e *domain.AttendanceEvent) (*domain.ValidationResult, error) {
	r, err := s.sessions.GetResult(ctx, e.TenantID, e.EmployeeID, e.ClientEventID)
	if err == nil {
		s.logger.Debug("replaying stored result", "client_event_id", e.ClientEventID, "event_id", r.EventID)
		return r, nil
	}
	if errors.Is(err, domain.ErrResultNotFound) {
		return nil, nil
	}
	return nil, domain.ErrStorageError.WithCause(err)
}

// newerFix returns the fix for e if it is more recent than the stored one.
func (s *AttendanceService) newerFix(ctx context.Context, e *domain.AttendanceEvent) (*domain.LocationFix, error) {
	last, err := s.sessions.LastFix(ctx, e.TenantID, e.EmployeeID)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	if last != nil && !e.DeviceTimestamp.After(last.DeviceTimestamp) {
		return nil, nil
	}
	return domain.FixFromEvent(e), nil
}

func (s *AttendanceService) appendAudit(ctx context.Context, rec *domain.AuditRecord) error {
	err := s.audit.Append(ctx, rec)
	s.observer.ObserveAuditAppend(err)
	if err != nil {
		s.logger.Error("audit append failed", "event_id", rec.EventID, "error", err)
		return domain.ErrAuditLogUnavailable.WithCause(err)
	}
	return nil
}

func (s *AttendanceService) logDecision(e *domain.AttendanceEvent, r *domain.ValidationResult) {
	s.logger.Info("attendance decision",
		"event_id", e.EventID,
		"tenant_id", e.TenantID,
		"employee_id", e.EmployeeID,
		"type", e.Type,
		"decision", r.Decision,
		"distance_meters", r.DistanceMeters,
		"matched_zone", r.MatchedZone(),
		"flags", r.Flags,
	)
}

// ============================================================================
// Override
// ============================================================================

// OverrideRequest contains an administrator's override of a rejected event.
type OverrideRequest struct {
	Principal *domain.APIKey
	EventID   string
	Reason    string
}

// OverrideResponse contains the new result of the overridden event.
type OverrideResponse struct {
	Result *domain.ValidationResult
}

// overridable lists the decisions an administrator may overturn. Duplicate
// and invalid-transition rejections are structural and stay rejected.
var overridable = map[domain.Decision]bool{
	domain.DecisionRejectedOutsideZone:        true,
	domain.DecisionRejectedLowAccuracy:        true,
	domain.DecisionRejectedSuspiciousMovement: true,
}

// Override accepts a previously rejected event. The session transition
// rules still apply, so an override can never produce a double check-in.
// The stored result for the event's client event ID is replaced.
func (s *AttendanceService) Override(ctx context.Context, req *OverrideRequest) (*OverrideResponse, error) {
	if req.Principal == nil {
		return nil, domain.ErrAPIKeyMissing
	}
	if !domain.IsValidEventID(req.EventID) {
		return nil, domain.ErrInvalidArgument.WithDetails("malformed event id")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	rec, err := s.audit.Get(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil, err
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	e := rec.Event
	if err := s.authorize(req.Principal, domain.PermAttendanceOverride, e.TenantID); err != nil {
		return nil, err
	}
	if rec.Result == nil {
		return nil, domain.ErrOverrideNotApplicable.WithDetails("event has no recorded decision")
	}
	if !overridable[rec.Result.Decision] {
		return nil, domain.ErrOverrideNotApplicable.WithDetails("decision " + string(rec.Result.Decision) + " cannot be overridden")
	}

	policy, err := s.zones.PolicyFor(ctx, e.TenantID)
	if err != nil {
		return nil, err
	}
	key := e.SessionKey(policy.Location())

	unlockEmp, err := s.reorder.employees.LockContext(ctx, key.EmployeeKey())
	if err != nil {
		return nil, domain.ErrDeadlineExceeded.WithCause(err)
	}
	defer unlockEmp()
	unlock, err := s.locks.LockContext(ctx, key.String())
	if err != nil {
		return nil, domain.ErrDeadlineExceeded.WithCause(err)
	}
	defer unlock()

	session, err := s.sessions.GetSession(ctx, key)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	next := session.Clone()
	if err := next.Apply(e); err != nil {
		return nil, domain.ErrOverrideNotApplicable.WithDetails("session is " + string(session.State)).WithCause(err)
	}

	result := rec.Result.Clone()
	result.Decision = domain.DecisionAccepted
	result.AddFlag(domain.FlagAdminOverride)
	result.SessionState = next.State
	result.Normalize()

	auditRec := domain.NewAuditRecord(domain.AuditOverride, e, result, req.Principal.KeyID)
	auditRec.Reason = req.Reason
	if err := s.appendAudit(ctx, auditRec); err != nil {
		return nil, err
	}

	fix, err := s.newerFix(ctx, e)
	if err != nil {
		return nil, err
	}
	c := &domain.Commit{
		Session:         next,
		ExpectedVersion: session.Version,
		Fix:             fix,
		TenantID:        e.TenantID,
		EmployeeID:      e.EmployeeID,
		ClientEventID:   e.ClientEventID,
		Result:          result,
	}
	if err := s.sessions.Commit(ctx, c); err != nil {
		if errors.Is(err, domain.ErrSessionVersionConflict) {
			return nil, err
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}

	s.logger.Warn("admin override applied",
		"event_id", e.EventID,
		"tenant_id", e.TenantID,
		"employee_id", e.EmployeeID,
		"previous_decision", rec.Result.Decision,
		"actor", req.Principal.KeyID,
		"reason", req.Reason,
	)
	s.observer.ObserveDecision(domain.DecisionAccepted, 0)
	return &OverrideResponse{Result: result}, nil
}

// ============================================================================
// Reads
// ============================================================================

// GetSessionRequest identifies one attendance session.
type GetSessionRequest struct {
	Principal *domain.APIKey
	Key       domain.SessionKey
}

// GetSession returns an attendance session. Days without events are
// reported as NotStarted.
func (s *AttendanceService) GetSession(ctx context.Context, req *GetSessionRequest) (*domain.AttendanceSession, error) {
	if err := s.authorize(req.Principal, domain.PermAttendanceRead, req.Key.TenantID); err != nil {
		return nil, err
	}
	if err := req.Key.Validate(); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetSession(ctx, req.Key)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return session, nil
}

// ListSessionsRequest selects an employee's sessions over a date range.
type ListSessionsRequest struct {
	Principal  *domain.APIKey
	TenantID   string
	EmployeeID string
	From       string
	To         string
}

// ListSessions returns stored sessions ordered by date.
func (s *AttendanceService) ListSessions(ctx context.Context, req *ListSessionsRequest) ([]*domain.AttendanceSession, error) {
	if err := s.authorize(req.Principal, domain.PermAttendanceRead, req.TenantID); err != nil {
		return nil, err
	}
	if err := (domain.SessionKey{TenantID: req.TenantID, EmployeeID: req.EmployeeID, Date: req.From}).Validate(); err != nil {
		return nil, err
	}
	for _, d := range []string{req.From, req.To} {
		if _, err := time.Parse(domain.CalendarDateLayout, d); err != nil {
			return nil, domain.ErrInvalidArgument.WithDetails("dates must be YYYY-MM-DD")
		}
	}
	if req.From > req.To {
		return nil, domain.ErrInvalidArgument.WithDetails("from must not be after to")
	}
	sessions, err := s.sessions.ListSessions(ctx, req.TenantID, req.EmployeeID, req.From, req.To)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Date < sessions[j].Date })
	return sessions, nil
}

// GetEvent returns the latest audit record of an event.
func (s *AttendanceService) GetEvent(ctx context.Context, principal *domain.APIKey, eventID string) (*domain.AuditRecord, error) {
	if principal == nil {
		return nil, domain.ErrAPIKeyMissing
	}
	rec, err := s.audit.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil, err
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	if err := s.authorize(principal, domain.PermAttendanceReview, rec.Event.TenantID); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListForReviewRequest selects rejected events awaiting review.
type ListForReviewRequest struct {
	Principal  *domain.APIKey
	TenantID   string
	EmployeeID string
	Limit      int
}

// ListForReview returns the tenant's most recent rejected events.
func (s *AttendanceService) ListForReview(ctx context.Context, req *ListForReviewRequest) ([]*domain.AuditRecord, error) {
	if err := s.authorize(req.Principal, domain.PermAttendanceReview, req.TenantID); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	recs, err := s.audit.List(ctx, AuditFilter{
		TenantID:     req.TenantID,
		EmployeeID:   req.EmployeeID,
		RejectedOnly: true,
		Limit:        limit,
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return recs, nil
}

// ============================================================================
// Recovery
// ============================================================================

// RecoverStats summarizes a replay.
type RecoverStats struct {
	Records  int
	Events   int
	Applied  int
	Rejected int
	Skipped  int
}

// Recover rebuilds sessions, last fixes and stored results from audit
// records, given in append order. It is meant for stores that do not
// survive a restart; the target store should be empty.
func (s *AttendanceService) Recover(ctx context.Context, records []*domain.AuditRecord) (*RecoverStats, error) {
	stats := &RecoverStats{Records: len(records)}

	latest := make(map[string]*domain.AuditRecord, len(records))
	for _, rec := range records {
		if rec.Event == nil || rec.Result == nil {
			continue
		}
		latest[rec.EventID] = rec
	}
	stats.Events = len(latest)

	for _, rec := range records {
		if latest[rec.EventID] != rec {
			continue
		}
		e := rec.Event
		c := &domain.Commit{
			TenantID:      e.TenantID,
			EmployeeID:    e.EmployeeID,
			ClientEventID: e.ClientEventID,
			Result:        rec.Result,
		}
		if rec.IsAccepted() {
			policy, err := s.zones.PolicyFor(ctx, e.TenantID)
			if err != nil {
				return stats, err
			}
			key := e.SessionKey(policy.Location())
			session, err := s.sessions.GetSession(ctx, key)
			if err != nil {
				return stats, domain.ErrStorageError.WithCause(err)
			}
			next := session.Clone()
			if err := next.Apply(e); err != nil {
				s.logger.Warn("skipping unreplayable audit record", "event_id", e.EventID, "error", err)
				stats.Skipped++
				continue
			}
			c.Session = next
			c.ExpectedVersion = session.Version
			if c.Fix, err = s.newerFix(ctx, e); err != nil {
				return stats, err
			}
			stats.Applied++
		} else {
			stats.Rejected++
		}
		if err := s.sessions.Commit(ctx, c); err != nil {
			return stats, domain.ErrStorageError.WithCause(err)
		}
	}

	s.logger.Info("attendance state recovered from audit log",
		"records", stats.Records, "events", stats.Events,
		"applied", stats.Applied, "rejected", stats.Rejected, "skipped", stats.Skipped)
	return stats, nil
}

// authorize checks that principal is active, holds perm and may act on tenantID.
func (s *AttendanceService) authorize(principal *domain.APIKey, perm domain.Permission, tenantID string) error {
	if principal == nil {
		return domain.ErrAPIKeyMissing
	}
	if !principal.IsActive() {
		return domain.ErrAPIKeyDisabled
	}
	if !domain.HasPermission(principal.Role, perm) {
		return domain.ErrPermissionDenied.WithDetails("role " + string(principal.Role) + " lacks " + string(perm))
	}
	if !principal.CanActOn(tenantID) {
		return domain.ErrUnauthorized.WithDetails("key " + principal.KeyID + " is not scoped to tenant " + tenantID)
	}
	return nil
}
