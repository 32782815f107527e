package signals

// temporalMismatch flags a response claiming completion of something the
// user framed as future work.
func (d *Detectors) temporalMismatch(user, response string) bool {
	return d.futurePlan.Match(user) && d.alreadyHappened.Match(response)
}
