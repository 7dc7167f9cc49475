// File: internal/orchestrate/stage.go
package orchestrate

// Stage is one attempt strategy in the acquisition fallback chain.
type Stage int

const (
	// StageAPIDirect calls the target API over plain HTTP.
	StageAPIDirect Stage = iota
	// StageNetworkIntercept renders the page and reads the API responses the
	// page itself fetched.
	StageNetworkIntercept
	// StageDOMScrape extracts records from the rendered DOM.
	StageDOMScrape
	// StagePageInfo captures url/title/text as the last-resort deliverable.
	StagePageInfo
	// StageDone is terminal, reached by success or exhaustion.
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageAPIDirect:
		return "api_direct"
	case StageNetworkIntercept:
		return "network_intercept"
	case StageDOMScrape:
		return "dom_scrape"
	case StagePageInfo:
		return "page_info"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Next is the pure transition function of the fallback chain. A successful
// stage always terminates. A failed stage escalates to the next strategy,
// except that the browser-backed stages are unreachable when no browser is
// available, in which case the chain ends immediately.
func Next(s Stage, succeeded, browserAvailable bool) Stage {
	if succeeded {
		return StageDone
	}
	switch s {
	case StageAPIDirect:
		if !browserAvailable {
			return StageDone
		}
		return StageNetworkIntercept
	case StageNetworkIntercept:
		return StageDOMScrape
	case StageDOMScrape:
		return StagePageInfo
	default:
		return StageDone
	}
}
