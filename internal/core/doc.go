// Package core provides the pure data layer of the verifier: parsing uploaded
// CSV text, the field mapping that ties source columns to the canonical
// schema, and projection of raw rows into canonical records.
//
// Nothing in this package holds state or performs I/O beyond the readers and
// writers passed in, so it is shared by the session service, the reconciler
// and the report exporter without creating import cycles.
//
// # Flow
//
//  1. [ParseCSV] reads the upload (BOM stripped, invalid UTF-8 replaced) into a
//     [Table] of field-keyed [RawRecord]s.
//  2. A [FieldMapping] names the source column for every canonical field.
//     [FieldMapping.Validate] enforces the required fields.
//  3. [Project] applies the mapping and yields immutable [CanonicalRecord]s.
//     Unmapped billing columns are resolved once through the alias table and
//     carried opaquely in [CanonicalRecord.Billing].
//  4. [WriteCSV] renders canonical records back to CSV for download.
//
// # Error Handling
//
// Errors are plain wrapped errors around package sentinels; [MapError] turns
// any error from this module into a [UserMessage] with a support code:
//
//   - FILE001-FILE005: upload and parsing errors
//   - MAP001-MAP002: field mapping errors
//   - EVT001: malformed verification events
//   - EXP001-EXP003: report export errors
//   - SES001: session errors
package core
