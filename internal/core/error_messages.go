package core

// # Error Codes Reference
//
// Every error logged by the transfer carries a code so operators can grep
// for a class of failure across runs. Codes are grouped by category:
//
//	DB001-DB007   destination write failures (constraints, connectivity, deadlocks)
//	VAL001-VAL006 row coercion failures; the row is dropped
//	TBL001-TBL002 table-level failures; the run aborts
//	CFG001        configuration rejected
//	SRC001-SRC002 source file problems
//	RUN001-RUN002 run cancelled or timed out
//	ERR000        fallback; check the logged technical error
//
// Patterns are matched case-insensitively using strings.Contains against the
// error text. The first matching pattern wins, so more specific patterns are
// listed before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is the operator-facing description of an error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Stable code for log searches
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Destination constraints
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "None; duplicates are skipped",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A unique constraint other than the conflict target was violated",
			Action:  "Check the destination's unique indexes",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced row does not exist in the destination",
			Action:  "Ensure referenced tables were transferred first",
			Code:    "DB003",
		},
	},

	// Destination connectivity
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the destination",
			Action:  "Check DB_HOST and DB_PORT and that PostgreSQL is running",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Destination connection was interrupted",
			Action:  "Re-run the transfer; committed batches are skipped",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Destination operation timed out",
			Action:  "Lower BATCH_SIZE or re-run the transfer",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Destination was busy with conflicting operations",
			Action:  "Re-run the transfer; committed batches are skipped",
			Code:    "DB007",
		},
	},
	{
		pattern: "no unique or exclusion constraint matching",
		msg: UserMessage{
			Message: "Destination has no unique index on the conflict columns",
			Action:  "Set CONFLICT_KEYS to the table's unique columns",
			Code:    "DB008",
		},
	},

	// Row coercion
	{
		pattern: "malformed identifier",
		msg: UserMessage{
			Message: "Identifier is not a valid UUID",
			Action:  "Fix the source row's id columns",
			Code:    "VAL001",
		},
	},
	{
		pattern: "malformed timestamp",
		msg: UserMessage{
			Message: "Timestamp could not be parsed",
			Action:  "Use RFC 3339 or YYYY-MM-DD HH:MM:SS+00",
			Code:    "VAL002",
		},
	},
	{
		pattern: "rating out of range",
		msg: UserMessage{
			Message: "Rating must be between 0 and 100",
			Action:  "Fix the source row's rating",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid film type",
		msg: UserMessage{
			Message: "Film type must be movie or tv_show",
			Action:  "Fix the source row's type",
			Code:    "VAL004",
		},
	},
	{
		pattern: "missing required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL005",
		},
	},
	{
		pattern: "malformed value",
		msg: UserMessage{
			Message: "Value has the wrong type",
			Action:  "Check the source column's affinity",
			Code:    "VAL006",
		},
	},

	// Tables
	{
		pattern: "unknown table",
		msg: UserMessage{
			Message: "Table is not registered",
			Action:  "Verify the table name is correct",
			Code:    "TBL001",
		},
	},
	{
		pattern: "query execution failed",
		msg: UserMessage{
			Message: "Source query failed",
			Action:  "Check the source schema matches the expected columns",
			Code:    "TBL002",
		},
	},

	// Configuration and source
	{
		pattern: "invalid configuration",
		msg: UserMessage{
			Message: "Configuration value rejected",
			Action:  "Check the environment and .env file",
			Code:    "CFG001",
		},
	},
	{
		pattern: "source file not found",
		msg: UserMessage{
			Message: "SQLite file does not exist",
			Action:  "Check FILE_PATH",
			Code:    "SRC001",
		},
	},
	{
		pattern: "source file not readable",
		msg: UserMessage{
			Message: "SQLite file cannot be read",
			Action:  "Check the file's permissions",
			Code:    "SRC002",
		},
	},

	// Run lifecycle
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Re-run the transfer when ready",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Run timed out",
			Action:  "Re-run the transfer",
			Code:    "RUN002",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logged error",
	Code:    "ERR000",
}

// Describe maps an error to its coded message.
// It returns the ERR000 fallback when no pattern matches and a zero value for nil.
func Describe(err error) UserMessage {
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

// FormatError renders err as "Message (Code: XXX). Action".
func FormatError(err error) string {
	msg := Describe(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsKnown reports whether err matches a specific pattern rather than the fallback.
func IsKnown(err error) bool {
	if err == nil {
		return false
	}
	return Describe(err).Code != defaultMessage.Code
}
