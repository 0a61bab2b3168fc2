// Package core provides the pure data layer of the verifier.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	          Patterns: "file too large"
//	FILE002 - Invalid CSV: The file has no header row or no valid data rows
//	          Patterns: "malformed input"
//	FILE003 - Read failure: The upload could not be read
//	          Patterns: "read upload"
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//	FILE005 - Empty file: The uploaded file is empty
//	          Patterns: "empty file"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Required fields unmapped
//	         Patterns: "missing field mapping"
//	MAP002 - Mapping references unknown fields or columns
//	         Patterns: "invalid field mapping"
//	MAP003 - No saved mapping for the supplier
//	         Patterns: "mapping not found"
//	MAP004 - Supplier not selected
//	         Patterns: "no supplier selected"
//	MAP005 - Supplier code missing
//	         Patterns: "supplier code is required"
//
// # Verification Errors (EVT001-EVT099)
//
//	EVT001 - Malformed verification event (missing product identification)
//	         Patterns: "malformed event"
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Nothing to export: no verified or failed items yet
//	         Patterns: "no exportable items"
//	EXP002 - Report service failure
//	         Patterns: "report transport"
//	EXP003 - Export already running
//	         Patterns: "export busy"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - No CSV session loaded
//	         Patterns: "no active session"
//	SES002 - Mapping not applied yet
//	         Patterns: "mapping not applied"
//
// # Request and Infrastructure Errors
//
//	REQ001 - Request cancelled         Patterns: "context canceled"
//	REQ002 - Request timeout           Patterns: "context deadline exceeded"
//	DB001  - Database unavailable      Patterns: "connection refused"
//	RATE001 - Rate limited             Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the server logs for the
// technical error, correlated by request id.
//
// Patterns are matched case-insensitively using strings.Contains and the
// first match wins, so more specific patterns come first.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins; export and session patterns precede the
// infrastructure ones because their errors wrap lower-level causes.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Export Errors (EXP001-EXP003)
	// =========================================================================
	{
		pattern: "no exportable items",
		msg: UserMessage{
			Message: "No products to export",
			Action:  "Wait for verified or failed products before exporting",
			Code:    "EXP001",
		},
	},
	{
		pattern: "report transport",
		msg: UserMessage{
			Message: "Failed to export report",
			Action:  "Check the report service and try again",
			Code:    "EXP002",
		},
	},
	{
		pattern: "export busy",
		msg: UserMessage{
			Message: "Another export is still running",
			Action:  "Wait for the current export to finish",
			Code:    "EXP003",
		},
	},

	// =========================================================================
	// Verification Errors (EVT001)
	// =========================================================================
	{
		pattern: "malformed event",
		msg: UserMessage{
			Message: "Unknown product received",
			Action:  "Please scan the product again",
			Code:    "EVT001",
		},
	},

	// =========================================================================
	// Session Errors (SES001-SES002)
	// =========================================================================
	{
		pattern: "no active session",
		msg: UserMessage{
			Message: "No CSV file is loaded",
			Action:  "Upload a CSV file first",
			Code:    "SES001",
		},
	},
	{
		pattern: "mapping not applied",
		msg: UserMessage{
			Message: "The field mapping has not been applied",
			Action:  "Map the fields and apply the mapping first",
			Code:    "SES002",
		},
	},

	// =========================================================================
	// Mapping Errors (MAP001-MAP004)
	// =========================================================================
	{
		pattern: "missing field mapping",
		msg: UserMessage{
			Message: "Required fields are not mapped",
			Action:  "Map the item and name fields to CSV columns",
			Code:    "MAP001",
		},
	},
	{
		pattern: "invalid field mapping",
		msg: UserMessage{
			Message: "The field mapping does not match this file",
			Action:  "Select columns that exist in the uploaded CSV",
			Code:    "MAP002",
		},
	},
	{
		pattern: "mapping not found",
		msg: UserMessage{
			Message: "No saved mapping for this supplier",
			Action:  "Map the fields manually and save the mapping",
			Code:    "MAP003",
		},
	},
	{
		pattern: "no supplier selected",
		msg: UserMessage{
			Message: "No supplier is selected",
			Action:  "Search for and select a supplier first",
			Code:    "MAP004",
		},
	},
	{
		pattern: "supplier code is required",
		msg: UserMessage{
			Message: "A supplier code is required",
			Action:  "Enter the supplier code and try again",
			Code:    "MAP005",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "malformed input",
		msg: UserMessage{
			Message: "CSV file is empty or has no valid rows",
			Action:  "Ensure the file has a header row and at least one data row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "read upload",
		msg: UserMessage{
			Message: "Error reading file",
			Action:  "Please try uploading the file again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with data rows",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Request and Infrastructure Errors
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the generic ERR000 message is returned.
//
// Example:
//
//	msg := MapError(fmt.Errorf("export: %w", report.ErrNoExportableItems))
//	// msg.Code == "EXP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
