package command

import "time"

// eventInput is one event as read from flags or a batch file. YAML and
// JSON files use the same camelCase keys as the API.
type eventInput struct {
	TenantID         string    `json:"tenantId,omitempty" yaml:"tenantId"`
	EmployeeID       string    `json:"employeeId" yaml:"employeeId"`
	ClientEventID    string    `json:"clientEventId" yaml:"clientEventId"`
	Type             string    `json:"type" yaml:"type"`
	Lat              *float64  `json:"lat" yaml:"lat"`
	Lng              *float64  `json:"lng" yaml:"lng"`
	AccuracyMeters   float64   `json:"accuracyMeters" yaml:"accuracyMeters"`
	DeviceTimestamp  time.Time `json:"deviceTimestamp" yaml:"deviceTimestamp"`
	DeviceID         string    `json:"deviceId,omitempty" yaml:"deviceId"`
	MockLocationFlag bool      `json:"mockLocationFlag,omitempty" yaml:"mockLocationFlag"`
	OverrideToken    string    `json:"overrideToken,omitempty" yaml:"overrideToken"`
}

type validationResult struct {
	EventID        string   `json:"eventId"`
	Decision       string   `json:"decision"`
	DistanceMeters float64  `json:"distanceMeters"`
	MatchedZoneID  *string  `json:"matchedZoneId"`
	Confidence     float64  `json:"confidence"`
	Flags          []string `json:"flags"`
	SessionState   string   `json:"sessionState"`
}

type batchItem struct {
	Index         int               `json:"index"`
	ClientEventID string            `json:"clientEventId"`
	Result        *validationResult `json:"result,omitempty"`
	Error         *errorBody        `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type batchResponse struct {
	Items    []batchItem `json:"items"`
	Accepted int         `json:"accepted"`
	Rejected int         `json:"rejected"`
	Failed   int         `json:"failed"`
}

// batchRow flattens a batch item for table output.
type batchRow struct {
	Index         int      `json:"index"`
	ClientEventID string   `json:"clientEventId"`
	EventID       string   `json:"eventId"`
	Decision      string   `json:"decision"`
	Distance      float64  `json:"distanceMeters"`
	Flags         []string `json:"flags" table:"wide"`
	Error         string   `json:"error"`
}

type eventRecord struct {
	EventID          string    `json:"eventId"`
	TenantID         string    `json:"tenantId"`
	EmployeeID       string    `json:"employeeId"`
	ClientEventID    string    `json:"clientEventId"`
	Type             string    `json:"type"`
	Lat              float64   `json:"lat"`
	Lng              float64   `json:"lng"`
	AccuracyMeters   float64   `json:"accuracyMeters"`
	DeviceTimestamp  time.Time `json:"deviceTimestamp"`
	ServerReceivedAt time.Time `json:"serverReceivedAt"`
	DeviceID         string    `json:"deviceId,omitempty"`
	MockLocationFlag bool      `json:"mockLocationFlag"`
}

type auditRecord struct {
	Seq        uint64            `json:"seq"`
	Kind       string            `json:"kind"`
	EventID    string            `json:"eventId"`
	Event      *eventRecord      `json:"event"`
	Result     *validationResult `json:"result"`
	Actor      string            `json:"actor"`
	Reason     string            `json:"reason,omitempty"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// reviewRow flattens an audit record for table output.
type reviewRow struct {
	EventID    string    `json:"eventId"`
	EmployeeID string    `json:"employeeId"`
	Type       string    `json:"type"`
	Decision   string    `json:"decision"`
	Distance   float64   `json:"distanceMeters"`
	Flags      []string  `json:"flags"`
	Kind       string    `json:"kind" table:"wide"`
	Actor      string    `json:"actor" table:"wide"`
	RecordedAt time.Time `json:"recordedAt"`
}

func newReviewRow(r auditRecord) reviewRow {
	row := reviewRow{
		EventID:    r.EventID,
		Kind:       r.Kind,
		Actor:      r.Actor,
		RecordedAt: r.RecordedAt,
	}
	if r.Event != nil {
		row.EmployeeID = r.Event.EmployeeID
		row.Type = r.Event.Type
	}
	if r.Result != nil {
		row.Decision = r.Result.Decision
		row.Distance = r.Result.DistanceMeters
		row.Flags = r.Result.Flags
	}
	return row
}

type reviewResponse struct {
	Items []auditRecord `json:"items"`
	Total int           `json:"total"`
}

type sessionRecord struct {
	TenantID        string     `json:"tenantId" table:"wide"`
	EmployeeID      string     `json:"employeeId"`
	Date            string     `json:"date"`
	State           string     `json:"state"`
	CheckInEventID  string     `json:"checkInEventId,omitempty" table:"wide"`
	CheckOutEventID string     `json:"checkOutEventId,omitempty" table:"wide"`
	OpenedAt        *time.Time `json:"openedAt,omitempty"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	Version         uint64     `json:"version" table:"wide"`
}

type sessionList struct {
	Items []sessionRecord `json:"items"`
	Total int             `json:"total"`
}

type apiKeyRecord struct {
	KeyID       string     `json:"keyId"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	TenantID    string     `json:"tenantId,omitempty"`
	Status      string     `json:"status"`
	RateLimit   int        `json:"rateLimit"`
	Description string     `json:"description,omitempty" table:"wide"`
	CreatedAt   time.Time  `json:"createdAt" table:"wide"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty" table:"wide"`
}

type createdAPIKey struct {
	KeyID     string    `json:"keyId"`
	Secret    string    `json:"secret"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenantId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type healthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type zoneReload struct {
	Tenants    int       `json:"tenants"`
	ReloadedAt time.Time `json:"reloadedAt"`
}

type distanceResult struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	DistanceMeters float64 `json:"distanceMeters"`
	BearingDegrees float64 `json:"bearingDegrees"`
}
