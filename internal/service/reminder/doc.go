// Package reminder implements follow-up scheduling: reminder rules that
// link a completed source campaign to a follow-up campaign, the queue
// items those rules produce, and the periodic processor that delivers due
// items.
//
// Rule CRUD, rule evaluation (scheduleForRule), and queue processing all
// live here; the dispatch service calls OnCampaignCompleted through its
// completion hook so the two packages stay decoupled.
package reminder
