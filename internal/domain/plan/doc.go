// Package plan turns untrusted model output into a typed edit plan.
//
// Parse runs three steps: Extract finds the JSON payload inside free text,
// Decode type-checks every element against its action, and CheckOverlaps
// rejects intersecting cut and speed-change intervals. A plan is accepted
// whole or not at all.
package plan
