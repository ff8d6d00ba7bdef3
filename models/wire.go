// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package models

// Wire request/response payloads understood by the record-store HTTP API.
// Shared by the client adapter and the reference server so the two cannot
// drift apart.

type SubmitRequest struct {
	Scope   Scope      `json:"scope"`
	Saves   []*Record  `json:"saves,omitempty"`
	Deletes []RecordID `json:"deletes,omitempty"`
}

type SubmitResponse struct {
	Outcomes []WireOutcome `json:"outcomes"`
}

type FetchRequest struct {
	Scope         Scope      `json:"scope"`
	IDs           []RecordID `json:"ids"`
	DesiredFields []string   `json:"desired_fields,omitempty"`
}

type FetchResponse struct {
	Outcomes []WireOutcome `json:"outcomes"`
}

type ZoneRequest struct {
	Scope Scope  `json:"scope"`
	Zone  string `json:"zone"`
}

type SubscriptionRequest struct {
	Scope Scope  `json:"scope"`
	Zone  string `json:"zone"`
}

// OperationState is the lifecycle of a long-lived asset transfer as tracked
// by the record store.
type OperationState string

const (
	OperationRunning   OperationState = "running"
	OperationDone      OperationState = "done"
	OperationCancelled OperationState = "cancelled"
)

// Long-lived operation kinds.
const (
	OperationUpload   = "upload"
	OperationDownload = "download"
)

// OperationStatus describes a long-lived operation known to the record
// store. Offset is the number of payload bytes the store has durably
// received, which is where a resumed upload continues from.
type OperationStatus struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"` // "upload" or "download"
	RecordID RecordID       `json:"record_id"`
	Field    string         `json:"field"`
	Offset   int64          `json:"offset"`
	Size     int64          `json:"size"`
	State    OperationState `json:"state"`
	Checksum string         `json:"checksum,omitempty"`
}

// TokenRequest and TokenResponse carry device-session authentication for
// the reference server.
type TokenRequest struct {
	Device    string `json:"device"`
	AccessKey string `json:"access_key"`
}

type TokenResponse struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
}
