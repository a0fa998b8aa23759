package probe

import (
	"time"

	"handleprobe/internal/egress"
	"handleprobe/internal/fetch"
)

const (
	DefaultMaxSites          = 50
	DefaultBatchSize         = 10
	DefaultPriorityBatchSize = 15
	DefaultDelay             = 100 * time.Millisecond
	DefaultPriorityDelay     = 50 * time.Millisecond
)

// Options tunes how a search fans out.
type Options struct {
	// MaxSites caps outbound requests per search; zero means no cap.
	MaxSites          int
	BatchSize         int
	PriorityBatchSize int
	// Delay and PriorityDelay pause after regular and priority waves.
	Delay         time.Duration
	PriorityDelay time.Duration
	Timeout       time.Duration
	BackupTimeout time.Duration
	Priority      []string
}

func DefaultOptions() Options {
	return Options{
		MaxSites:          DefaultMaxSites,
		BatchSize:         DefaultBatchSize,
		PriorityBatchSize: DefaultPriorityBatchSize,
		Delay:             DefaultDelay,
		PriorityDelay:     DefaultPriorityDelay,
		Timeout:           fetch.DefaultTimeout,
		BackupTimeout:     egress.DefaultTimeout,
		Priority:          DefaultPriority,
	}
}

func (o Options) normalized() Options {
	if o.MaxSites < 0 {
		o.MaxSites = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PriorityBatchSize <= 0 {
		o.PriorityBatchSize = o.BatchSize
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.PriorityDelay < 0 {
		o.PriorityDelay = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = fetch.DefaultTimeout
	}
	if o.BackupTimeout <= 0 {
		o.BackupTimeout = egress.DefaultTimeout
	}
	return o
}
