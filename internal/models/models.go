// Package models defines the data structures shared across the mailscan service.
package models

import "time"

// Kind distinguishes the two supported request categories. Incoming mail is
// classified by matching its subject line against one of two configured
// constants, one per kind.
type Kind string

const (
	KindAnalyze  Kind = "analyze"
	KindEvaluate Kind = "evaluate"
)

// Status is the terminal-state field of an AnalysisRequest. The ledger only
// distinguishes pending from completed; a request that failed mid-pipeline
// still ends up completed, just without an output path.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// OriginMail marks requests created by the mailbox watcher, as opposed to
// requests created through other entry points outside this service.
const OriginMail = "mail"

// User is a registered account resolved from a sender address. Mail from
// addresses that do not resolve to a User is rejected during intake.
type User struct {
	ID    int64
	Name  string
	Email string
}

// Attachment is a single decoded file from an incoming message. Only
// attachments passing the intake validation rule are handed to the pipeline.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	Data        []byte
}

// Email is the decoded form of one fetched message. It is ephemeral: built
// per fetch, discarded once intake processing completes or fails.
type Email struct {
	FromName    string
	FromAddress string // lower-cased
	Subject     string
	ReceivedAt  time.Time
	BodyText    string
	Attachments []Attachment
	SeqNum      uint32
	UID         uint32
}

// AnalysisRequest is the persisted record tracking one attachment's journey
// from upload through result rendering.
type AnalysisRequest struct {
	ID            int64
	CorrelationID string
	UserID        int64
	InputFilename string
	InputPath     string
	OutputPath    *string // nil until a report has been rendered and uploaded
	Kind          Kind
	Origin        string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RequestDraft carries the fields known at creation time of an AnalysisRequest.
type RequestDraft struct {
	UserID        int64
	InputFilename string
	InputPath     string
	Kind          Kind
}
