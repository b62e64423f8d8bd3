package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for pipeline operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Pipeline-wide keys use "deposit." prefix, transport-specific use their own prefix.
const (
	// ========================================================================
	// Client attributes (admin API)
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"

	// ========================================================================
	// Pipeline attributes
	// ========================================================================
	AttrOperation   = "deposit.operation"  // Pipeline phase: dispatch, package, transmit, poll, aggregate
	AttrSubmission  = "deposit.submission" // Submission record ID
	AttrDeposit     = "deposit.id"         // Deposit record ID
	AttrCopy        = "deposit.copy"       // Repository copy record ID
	AttrRepository  = "deposit.repository" // Repository key
	AttrStatus      = "deposit.status"     // Record status value
	AttrStatusRef   = "deposit.status_ref" // Statement URL for status polling
	AttrAttempt     = "deposit.attempt"    // Retry attempt number

	// ========================================================================
	// Packaging attributes
	// ========================================================================
	AttrSpec        = "package.spec"        // Packaging specification URI
	AttrPackageName = "package.name"        // Assembled package filename
	AttrArchive     = "package.archive"     // zip, tar
	AttrCompression = "package.compression" // none, gzip
	AttrFileCount   = "package.file_count"  // Custodial files in the package
	AttrSize        = "package.size"        // Package size in bytes

	// ========================================================================
	// Transport attributes
	// ========================================================================
	AttrTransport    = "transport.protocol" // sword, ftp, filesystem, s3
	AttrServer       = "transport.server"   // Remote server address
	AttrBytesWritten = "transport.bytes_written"

	// ========================================================================
	// User/Auth attributes (admin API)
	// ========================================================================
	AttrUsername = "user.name"
	AttrAuth     = "auth.method"

	// ========================================================================
	// Record store attributes
	// ========================================================================
	AttrStoreType = "store.type" // memory, badger, sql, postgres, http
	AttrKind      = "store.kind" // Record kind
	AttrRecordID  = "store.record_id"

	// ========================================================================
	// Cloud storage attributes (S3 transport)
	// ========================================================================
	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrRegion = "storage.region"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// ========================================================================
	// Pipeline phase spans
	// ========================================================================
	SpanDispatch  = "pipeline.dispatch"
	SpanPackage   = "pipeline.package"
	SpanTransmit  = "pipeline.transmit"
	SpanPoll      = "pipeline.poll"
	SpanAggregate = "pipeline.aggregate"
	SpanRetry     = "pipeline.retry"

	// ========================================================================
	// Transport spans
	// ========================================================================
	SpanSwordDeposit   = "sword.deposit"
	SpanSwordStatement = "sword.statement"
	SpanFTPPut         = "ftp.put"
	SpanFilesystemCopy = "filesystem.copy"
	SpanS3Put          = "s3.put"

	// ========================================================================
	// Record store spans
	// ========================================================================
	SpanStoreCreate   = "store.create"
	SpanStoreRead     = "store.read"
	SpanStoreUpdate   = "store.update"
	SpanStoreFind     = "store.find"
	SpanStoreCritical = "store.critical"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Operation returns an attribute for a pipeline phase
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Submission returns an attribute for a submission record ID
func Submission(id string) attribute.KeyValue {
	return attribute.String(AttrSubmission, id)
}

// Deposit returns an attribute for a deposit record ID
func Deposit(id string) attribute.KeyValue {
	return attribute.String(AttrDeposit, id)
}

// Copy returns an attribute for a repository copy record ID
func Copy(id string) attribute.KeyValue {
	return attribute.String(AttrCopy, id)
}

// Repository returns an attribute for a repository key
func Repository(key string) attribute.KeyValue {
	return attribute.String(AttrRepository, key)
}

// Status returns an attribute for a record status value
func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// StatusRef returns an attribute for a statement URL
func StatusRef(ref string) attribute.KeyValue {
	return attribute.String(AttrStatusRef, ref)
}

// Attempt returns an attribute for retry attempt number
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// Spec returns an attribute for a packaging specification URI
func Spec(uri string) attribute.KeyValue {
	return attribute.String(AttrSpec, uri)
}

// PackageName returns an attribute for an assembled package filename
func PackageName(name string) attribute.KeyValue {
	return attribute.String(AttrPackageName, name)
}

// Archive returns an attribute for the archive format
func Archive(format string) attribute.KeyValue {
	return attribute.String(AttrArchive, format)
}

// Compression returns an attribute for the compression mode
func Compression(mode string) attribute.KeyValue {
	return attribute.String(AttrCompression, mode)
}

// FileCount returns an attribute for the custodial file count
func FileCount(n int) attribute.KeyValue {
	return attribute.Int(AttrFileCount, n)
}

// Size returns an attribute for a byte size
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// Transport returns an attribute for the transport protocol
func Transport(proto string) attribute.KeyValue {
	return attribute.String(AttrTransport, proto)
}

// Server returns an attribute for the remote server address
func Server(addr string) attribute.KeyValue {
	return attribute.String(AttrServer, addr)
}

// BytesWritten returns an attribute for actual bytes written
func BytesWritten(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytesWritten, n)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StoreType returns an attribute for store backend type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Kind returns an attribute for record kind
func Kind(k string) attribute.KeyValue {
	return attribute.String(AttrKind, k)
}

// RecordID returns an attribute for a record ID
func RecordID(id string) attribute.KeyValue {
	return attribute.String(AttrRecordID, id)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartPipelineSpan starts a span for a pipeline phase on a deposit.
// This is a convenience function that sets common attributes.
func StartPipelineSpan(ctx context.Context, operation string, depositID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Operation(operation),
	}
	if depositID != "" {
		allAttrs = append(allAttrs, Deposit(depositID))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "pipeline."+operation, trace.WithAttributes(allAttrs...))
}

// StartTransportSpan starts a span for a transport operation.
// Pass the protocol name (sword, ftp, filesystem, s3) and the operation.
func StartTransportSpan(ctx context.Context, protocol, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Transport(protocol),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, protocol+"."+operation, trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for a record store operation.
func StartStoreSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "store."+operation, trace.WithAttributes(attrs...))
}
