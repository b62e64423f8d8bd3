package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation
// and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Pipeline Records
	// ========================================================================
	KeySubmission = "submission" // Submission record ID
	KeyDeposit    = "deposit"    // Deposit record ID
	KeyCopy       = "copy"       // Repository copy record ID
	KeyRepository = "repository" // Repository key or record ID
	KeyOperation  = "operation"  // Pipeline phase: dispatch, package, transmit, poll, aggregate
	KeyStatus     = "status"     // Record status value
	KeyStatusRef  = "status_ref" // Deposit status reference (statement URL)

	// ========================================================================
	// Packaging
	// ========================================================================
	KeySpec        = "spec"         // Packaging specification URI
	KeyPackageName = "package_name" // Assembled package filename
	KeyArchive     = "archive"      // Archive format: zip, tar
	KeyCompression = "compression"  // Compression: none, gzip
	KeyChecksum    = "checksum"     // Checksum algorithm
	KeyFileCount   = "file_count"   // Number of custodial files in a package
	KeySize        = "size"         // Byte size

	// ========================================================================
	// Transport
	// ========================================================================
	KeyProtocol     = "protocol"      // Transport protocol: sword, ftp, filesystem, s3
	KeyServer       = "server"        // Remote server address
	KeyBucket       = "bucket"        // S3 bucket name
	KeyKey          = "key"           // Object key in cloud storage
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// ========================================================================
	// Client Identification (admin API)
	// ========================================================================
	KeyClientIP  = "client_ip" // Client IP address
	KeyUsername  = "username"  // Authenticated username
	KeyRequestID = "request_id" // HTTP request ID

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Record Store
	// ========================================================================
	KeyStoreType = "store_type" // Store backend: memory, badger, sql, postgres, http
	KeyKind      = "kind"       // Record kind: Submission, Repository, Deposit, RepositoryCopy
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Submission returns a slog.Attr for a submission record ID
func Submission(id string) slog.Attr {
	return slog.String(KeySubmission, id)
}

// Deposit returns a slog.Attr for a deposit record ID
func Deposit(id string) slog.Attr {
	return slog.String(KeyDeposit, id)
}

// Repository returns a slog.Attr for a repository key or record ID
func Repository(id string) slog.Attr {
	return slog.String(KeyRepository, id)
}

// Operation returns a slog.Attr for a pipeline phase
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Status returns a slog.Attr for a record status value
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// StatusRef returns a slog.Attr for a deposit status reference
func StatusRef(ref string) slog.Attr {
	return slog.String(KeyStatusRef, ref)
}

// Spec returns a slog.Attr for a packaging specification URI
func Spec(uri string) slog.Attr {
	return slog.String(KeySpec, uri)
}

// PackageName returns a slog.Attr for an assembled package filename
func PackageName(name string) slog.Attr {
	return slog.String(KeyPackageName, name)
}

// Size returns a slog.Attr for a byte size
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Protocol returns a slog.Attr for a transport protocol
func Protocol(proto string) slog.Attr {
	return slog.String(KeyProtocol, proto)
}

// Server returns a slog.Attr for a remote server address
func Server(addr string) slog.Attr {
	return slog.String(KeyServer, addr)
}

// Bucket returns a slog.Attr for an S3 bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key in cloud storage
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int64) slog.Attr {
	return slog.Int64(KeyBytesWritten, n)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Username returns a slog.Attr for an authenticated username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// RequestID returns a slog.Attr for an HTTP request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// StoreType returns a slog.Attr for the record store backend
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Kind returns a slog.Attr for a record kind
func Kind(k string) slog.Attr {
	return slog.String(KeyKind, k)
}
