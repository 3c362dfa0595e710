// Package pipeline turns observed requests and account events into access
// records and hands them to the shipper.
//
// # Flow
//
// For a served page the pipeline runs, in order:
//  1. the skip policy (background triggers and JSON exchanges are ignored)
//  2. content classification (file extension and category)
//  3. page classification, only when no file was detected
//  4. synthetic size estimation and record formatting
//  5. fire-and-forget shipping
//
// Event entry points (login, logout, registration, subscriptions) skip steps
// 1-3 and format a fixed request line with an event tag.
//
// # Safety
//
// Every entry point recovers from panics and returns nothing the host has to
// handle. Delivery failures stay inside the shipper.
package pipeline
