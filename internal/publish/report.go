package publish

// Report summarizes one promotion cycle.
type Report struct {
	// Succeeded lists pending ids promoted and removed this cycle.
	Succeeded []int64
	// Failed lists pending ids moved to error status, with the reason.
	Failed []Failure
	// SkippedMedia records images that could not be resolved; their
	// articles still published.
	SkippedMedia []MediaSkip
	// Overlapped is set when the tick found a previous cycle still in
	// flight and did nothing.
	Overlapped bool
}

type Failure struct {
	ID     int64
	Reason string
}

type MediaSkip struct {
	ItemID       int64
	OriginalName string
}
