// Package model defines the canonical data types shared across the ingest,
// storage, statistics, and anomaly-detection components.
package model

import "time"

// Severity is the normalized log level. Ordered from most to least urgent.
type Severity string

const (
	SeverityEmergency Severity = "EMERGENCY"
	SeverityAlert     Severity = "ALERT"
	SeverityCritical  Severity = "CRITICAL"
	SeverityError     Severity = "ERROR"
	SeverityWarn      Severity = "WARN"
	SeverityNotice    Severity = "NOTICE"
	SeverityInfo      Severity = "INFO"
	SeverityDebug     Severity = "DEBUG"
)

// syslogSeverityTable maps the standard syslog <N> priority's severity
// component (N mod 8) to our Severity enum.
var syslogSeverityTable = [8]Severity{
	SeverityEmergency, // 0
	SeverityAlert,     // 1
	SeverityCritical,  // 2
	SeverityError,     // 3
	SeverityWarn,      // 4
	SeverityNotice,    // 5
	SeverityInfo,      // 6
	SeverityDebug,     // 7
}

// SeverityFromSyslogPriority maps a syslog <N> priority value to a Severity
// using N mod 8 per RFC 3164/5424.
func SeverityFromSyslogPriority(n int) Severity {
	idx := n % 8
	if idx < 0 {
		idx += 8
	}
	return syslogSeverityTable[idx]
}

// NetworkInfo holds network entities extracted from a line, augmented from
// both structured captures and free-text scanning. Fields are unioned, never
// overwritten, across extraction passes.
type NetworkInfo struct {
	SrcIP       string   `json:"src_ip,omitempty" bson:"src_ip,omitempty"`
	DstIP       string   `json:"dst_ip,omitempty" bson:"dst_ip,omitempty"`
	SrcPort     int      `json:"src_port,omitempty" bson:"src_port,omitempty"`
	DstPort     int      `json:"dst_port,omitempty" bson:"dst_port,omitempty"`
	Protocols   []string `json:"protocols,omitempty" bson:"protocols,omitempty"`
	IPAddresses []string `json:"ip_addresses,omitempty" bson:"ip_addresses,omitempty"`
	MACAddrs    []string `json:"mac_addresses,omitempty" bson:"mac_addresses,omitempty"`
	Ports       []int    `json:"ports,omitempty" bson:"ports,omitempty"`
}

// HasInfo reports whether any network field was populated.
func (n *NetworkInfo) HasInfo() bool {
	if n == nil {
		return false
	}
	return n.SrcIP != "" || n.DstIP != "" || n.SrcPort != 0 || n.DstPort != 0 ||
		len(n.Protocols) > 0 || len(n.IPAddresses) > 0 || len(n.MACAddrs) > 0 || len(n.Ports) > 0
}

// LogRecord is the canonical persisted unit produced by the pipeline.
type LogRecord struct {
	ID           string            `json:"id" bson:"_id,omitempty"`
	IngestedAt   time.Time         `json:"ingested_at" bson:"ingested_at"`
	EventTime    time.Time         `json:"event_time" bson:"event_time"`
	Severity     Severity          `json:"severity" bson:"severity"`
	Message      string            `json:"message" bson:"message"`
	Source       string            `json:"source" bson:"source"`
	FormatTag    string            `json:"format_tag" bson:"format_tag"`
	TemplateID   string            `json:"template_id" bson:"template_id"`
	Template     string            `json:"template" bson:"template"`
	ClusterSize  int               `json:"cluster_size" bson:"cluster_size"`
	Network      NetworkInfo       `json:"network" bson:"network"`
	ParsedFields map[string]string `json:"parsed_fields,omitempty" bson:"parsed_fields,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	FileID       string            `json:"file_id,omitempty" bson:"file_id,omitempty"`

	// ClampedEventTime is set when EventTime was clamped to IngestedAt
	// because it violated the configured future-skew bound.
	ClampedEventTime bool `json:"clamped_event_time,omitempty" bson:"clamped_event_time,omitempty"`
}

// Template is the template miner's persisted catalog row.
type Template struct {
	TemplateID     string    `json:"template_id" bson:"_id"`
	TemplateString string    `json:"template_string" bson:"template_string"`
	FirstSeen      time.Time `json:"first_seen" bson:"first_seen"`
	LastSeen       time.Time `json:"last_seen" bson:"last_seen"`
	Count          int64     `json:"count" bson:"count"`
}

// FileUploadStatus enumerates the lifecycle of a FileUpload manifest.
type FileUploadStatus string

const (
	FileStatusProcessing FileUploadStatus = "processing"
	FileStatusCompleted  FileUploadStatus = "completed"
	FileStatusFailed     FileUploadStatus = "failed"
)

// FileUpload is the manifest row tracking one uploaded file's ingestion.
type FileUpload struct {
	FileID        string           `json:"file_id" bson:"_id"`
	OriginalName  string           `json:"original_name" bson:"original_name"`
	StoredName    string           `json:"stored_name" bson:"stored_name"`
	ByteSize      int64            `json:"byte_size" bson:"byte_size"`
	UploadedAt    time.Time        `json:"uploaded_at" bson:"uploaded_at"`
	Status        FileUploadStatus `json:"status" bson:"status"`
	ProcessedLogs int64            `json:"processed_logs" bson:"processed_logs"`
	FailedLogs    int64            `json:"failed_logs" bson:"failed_logs"`
	Error         string           `json:"error,omitempty" bson:"error,omitempty"`
}

// AnomalyKind enumerates the six detection strategies' output kinds.
type AnomalyKind string

const (
	AnomalyVolumeSpike      AnomalyKind = "VOLUME_SPIKE"
	AnomalyVolumeDrop       AnomalyKind = "VOLUME_DROP"
	AnomalyHighErrorRate    AnomalyKind = "HIGH_ERROR_RATE"
	AnomalyNewTemplateSurge AnomalyKind = "NEW_TEMPLATE_SURGE"
	AnomalyRareTemplate     AnomalyKind = "RARE_TEMPLATE_ACTIVITY"
	AnomalyMLDetected       AnomalyKind = "ML_DETECTED_ANOMALY"
	AnomalySourceSilence    AnomalyKind = "SOURCE_SILENCE"
)

// AnomalySeverity is the severity assigned to a detected anomaly.
type AnomalySeverity string

const (
	AnomalySeverityLow      AnomalySeverity = "LOW"
	AnomalySeverityMedium   AnomalySeverity = "MEDIUM"
	AnomalySeverityHigh     AnomalySeverity = "HIGH"
	AnomalySeverityCritical AnomalySeverity = "CRITICAL"
)

// Anomaly is an append-only detection finding.
type Anomaly struct {
	ID                string                 `json:"id,omitempty" bson:"_id,omitempty"`
	EventTime         time.Time              `json:"event_time" bson:"event_time"`
	Kind              AnomalyKind            `json:"kind" bson:"kind"`
	Severity          AnomalySeverity        `json:"severity" bson:"severity"`
	Description       string                 `json:"description" bson:"description"`
	AffectedTemplates []string               `json:"affected_templates,omitempty" bson:"affected_templates,omitempty"`
	LogCount          int64                  `json:"log_count" bson:"log_count"`
	Score             float64                `json:"score" bson:"score"`
	Details           map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt         time.Time              `json:"created_at" bson:"created_at"`
}
