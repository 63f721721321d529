// Package content models provider and buyer accounts, their publications, and
// the editorial Entry record with its publish state machine.
//
// Everything here is pure: persistence lives in the store package and
// orchestration (QItem recompute, publish fan-out) in editorial.
package content
