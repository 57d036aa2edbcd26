package reminder

import "errors"

var (
	ErrRuleNotFound     = errors.New("reminder rule not found")
	ErrInvalidTrigger   = errors.New("unknown trigger type")
	ErrInvalidRule      = errors.New("invalid reminder rule")
	ErrCampaignMismatch = errors.New("source and reminder campaigns must belong to the rule owner")
)
