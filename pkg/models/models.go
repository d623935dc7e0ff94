// Package models defines the entity types persisted by the EMPI store.
package models

import "time"

// Demographic is the primary record of a person as reported by one source
// system.
type Demographic struct {
	RecordID                  int64      `json:"record_id"`
	GivenName                 string     `json:"given_name"`
	MiddleName                string     `json:"middle_name"`
	FamilyName                string     `json:"family_name"`
	NameDay                   *time.Time `json:"name_day,omitempty"`
	Gender                    string     `json:"gender"`
	Address1                  string     `json:"address_1"`
	Address2                  string     `json:"address_2"`
	City                      string     `json:"city"`
	State                     string     `json:"state"`
	PostalCode                string     `json:"postal_code"`
	SSN                       string     `json:"ssn"`
	Organization              string     `json:"organization"`
	System                    string     `json:"system"`
	SystemID                  string     `json:"system_id"`
	IsActive                  bool       `json:"is_active"`
	UQHash                    string     `json:"uq_hash"`
	CompositeKey              string     `json:"composite_key"`
	CompositeName             string     `json:"composite_name"`
	CompositeNameDayPostal    string     `json:"composite_name_day_postal_code"`
	TouchedBy                 string     `json:"touched_by"`
	TouchedTS                 time.Time  `json:"touched_ts"`
	TransactionKey            string     `json:"transaction_key"`
}

// DemographicArchive is a pre-delete snapshot of a Demographic row.
type DemographicArchive struct {
	ArchiveID              int64     `json:"archive_id"`
	RecordID               int64     `json:"record_id"`
	GivenName              string    `json:"given_name"`
	MiddleName             string    `json:"middle_name"`
	FamilyName             string    `json:"family_name"`
	NameDay                *time.Time `json:"name_day,omitempty"`
	Gender                 string    `json:"gender"`
	Address1               string    `json:"address_1"`
	Address2               string    `json:"address_2"`
	City                   string    `json:"city"`
	State                  string    `json:"state"`
	PostalCode             string    `json:"postal_code"`
	SSN                    string    `json:"ssn"`
	Organization           string    `json:"organization"`
	System                 string    `json:"system"`
	SystemID               string    `json:"system_id"`
	UQHash                 string    `json:"uq_hash"`
	CompositeKey           string    `json:"composite_key"`
	CompositeName          string    `json:"composite_name"`
	CompositeNameDayPostal string    `json:"composite_name_day_postal_code"`
	ArchiveTransactionKey  string    `json:"archive_transaction_key"`
	TransactionKey         string    `json:"transaction_key"`
	TouchedBy              string    `json:"touched_by"`
	TouchedTS              time.Time `json:"touched_ts"`
}

// Telecom is a phone/email/fax contact record tied to a Demographic row.
type Telecom struct {
	TelecomID      int64     `json:"telecom_id"`
	RecordID       int64     `json:"record_id"`
	TelecomSystem  string    `json:"telecom_system"` // phone/email/fax
	Value          string    `json:"value"`
	Use            string    `json:"use"` // home/work/mobile
	TouchedBy      string    `json:"touched_by"`
	TouchedTS      time.Time `json:"touched_ts"`
	TransactionKey string    `json:"transaction_key"`
}

// Crosswalk holds one minted identity for an external reference.
type Crosswalk struct {
	CrosswalkID    int64     `json:"crosswalk_id"`
	TouchedBy      string    `json:"touched_by"`
	TouchedTS      time.Time `json:"touched_ts"`
	TransactionKey string    `json:"transaction_key"`
}

// CrosswalkBind binds a Crosswalk identity to a Demographic record_id.
type CrosswalkBind struct {
	BindID         int64     `json:"bind_id"`
	CrosswalkID    int64     `json:"crosswalk_id"`
	RecordID       int64     `json:"record_id"`
	SourceSystem   string    `json:"source_system"`
	TouchedBy      string    `json:"touched_by"`
	TouchedTS      time.Time `json:"touched_ts"`
	TransactionKey string    `json:"transaction_key"`
}

// EnterpriseMatch is an undirected edge between two demographic records,
// stored canonically with RecordIDLow < RecordIDHigh.
type EnterpriseMatch struct {
	MatchID        int64     `json:"match_id"`
	RecordIDLow    int64     `json:"record_id_low"`
	RecordIDHigh   int64     `json:"record_id_high"`
	MatchWeight    float64   `json:"match_weight"`
	IsValid        bool      `json:"is_valid"`
	TouchedBy      string    `json:"touched_by"`
	TouchedTS      time.Time `json:"touched_ts"`
	TransactionKey string    `json:"transaction_key"`
}

// EnterpriseGroup maps a record_id to the enterprise_id of its component.
type EnterpriseGroup struct {
	RecordID       int64     `json:"record_id"`
	EnterpriseID   int64     `json:"enterprise_id"`
	TouchedBy      string    `json:"touched_by"`
	TouchedTS      time.Time `json:"touched_ts"`
	TransactionKey string    `json:"transaction_key"`
}

// Bulletin is an append-only notification that a record's enterprise
// assignment changed.
type Bulletin struct {
	EtlID          int64     `json:"etl_id"`
	BatchID        int64     `json:"batch_id"`
	ProcID         int64     `json:"proc_id"`
	RecordID       int64     `json:"record_id"`
	EnterpriseID   int64     `json:"enterprise_id"`
	TouchedTS      time.Time `json:"touched_ts"`
}

// Batch states.
const (
	BatchStarting = "STARTING"
	BatchPending  = "PENDING"
	BatchComputed = "COMPUTED"
)

// Batch is opened once per API request.
type Batch struct {
	BatchID   int64     `json:"batch_id"`
	State     string    `json:"state"`
	User      string    `json:"user"`
	CreatedTS time.Time `json:"created_ts"`
}

// Process states.
const (
	ProcPending     = "PENDING"
	ProcPosted      = "POSTED"
	ProcActivated   = "ACTIVATED"
	ProcDeactivated = "DEACTIVATED"
	ProcArchived    = "ARCHIVED"
	ProcAffirmed    = "AFFIRMED"
	ProcDenied      = "DENIED"
)

// ProcDeleted builds the "DELETED <ENTITY>" terminal state string.
func ProcDeleted(entity string) string {
	return "DELETED " + entity
}

// Process is one row within a Batch.
type Process struct {
	ProcID         int64     `json:"proc_id"`
	BatchID        int64     `json:"batch_id"`
	RowIndex       int       `json:"row_index"`
	ProcRecordID   int64     `json:"proc_record_id"`
	State          string    `json:"state"`
	TransactionKey string    `json:"transaction_key"`
	CreatedTS      time.Time `json:"created_ts"`
}

// Action-log row kinds. One row is appended to the matching table per
// successfully applied action.
type ActionLog struct {
	EtlID          int64     `json:"etl_id"`
	RecordID       int64     `json:"record_id"`
	TransactionKey string    `json:"transaction_key"`
	TouchedBy      string    `json:"touched_by"`
	TouchedTS      time.Time `json:"touched_ts"`
}

// MatchActionLog is the action-log row for match_affirm/match_deny.
type MatchActionLog struct {
	EtlID          int64     `json:"etl_id"`
	RecordIDLow    int64     `json:"record_id_low"`
	RecordIDHigh   int64     `json:"record_id_high"`
	TransactionKey string    `json:"transaction_key"`
	TouchedBy      string    `json:"touched_by"`
	TouchedTS      time.Time `json:"touched_ts"`
}

// DeleteActionLog records delete_action undo requests.
type DeleteActionLog struct {
	EtlID          int64     `json:"etl_id"`
	BatchID        int64     `json:"batch_id"`
	ProcID         int64     `json:"proc_id"`
	Action         string    `json:"action"`
	TransactionKey string    `json:"transaction_key"`
	TouchedBy      string    `json:"touched_by"`
	TouchedTS      time.Time `json:"touched_ts"`
}

// ETLIDSource is the monotonic ID allocator; every mint inserts a row here.
type ETLIDSource struct {
	EtlID     int64     `json:"etl_id"`
	User      string    `json:"user"`
	Version   string    `json:"version"`
	CreatedTS time.Time `json:"created_ts"`
}

// Endpoint enumerates the tables/entity-kinds reachable through
// query_records and the HTTP/CLI front ends.
type Endpoint string

const (
	EndpointDemographic       Endpoint = "demographic"
	EndpointActivateDemo      Endpoint = "activate_demographic"
	EndpointDeactivateDemo    Endpoint = "deactivate_demographic"
	EndpointDeleteDemo        Endpoint = "delete_demographic"
	EndpointArchiveDemo       Endpoint = "archive_demographic"
	EndpointMatchAffirm       Endpoint = "match_affirm"
	EndpointMatchDeny         Endpoint = "match_deny"
	EndpointDeleteAction      Endpoint = "delete_action"
	EndpointBatch             Endpoint = "batch"
	EndpointBulletin          Endpoint = "bulletin"
	EndpointProcess           Endpoint = "process"
	EndpointEnterpriseGroup   Endpoint = "enterprise_group"
	EndpointEnterpriseMatch   Endpoint = "enterprise_match"
	EndpointEtlIDSource       Endpoint = "etl_id_source"
	EndpointTelecom           Endpoint = "telecom"
	EndpointCrosswalk         Endpoint = "crosswalk"
	EndpointCrosswalkBind     Endpoint = "crosswalk_bind"
)

// TableNames maps each Endpoint to its backing Postgres table.
var TableNames = map[Endpoint]string{
	EndpointDemographic:     "demographic",
	EndpointArchiveDemo:     "demographic_archive",
	EndpointMatchAffirm:     "match_affirm_log",
	EndpointMatchDeny:       "match_deny_log",
	EndpointDeleteAction:    "delete_action_log",
	EndpointBatch:           "batch",
	EndpointBulletin:        "bulletin",
	EndpointProcess:         "process",
	EndpointEnterpriseGroup: "enterprise_group",
	EndpointEnterpriseMatch: "enterprise_match",
	EndpointEtlIDSource:     "etl_id_source",
	EndpointTelecom:         "telecom",
	EndpointCrosswalk:       "crosswalk",
	EndpointCrosswalkBind:   "crosswalk_bind",
}
